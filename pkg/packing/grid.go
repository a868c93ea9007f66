// Package packing places features in the domain. It generates features
// until the target volume is reached, drops each one onto a free point of a
// coarse packing grid and then relocates features to reduce the filling
// error, the count of packing points covered by zero or several features.
package packing

import (
	"gonum.org/v1/gonum/spatial/r3"

	"foamsynth/internal/models"
)

// Grid is the coarse occupancy grid used during packing. Its resolution is
// twice the voxel spacing.
type Grid struct {
	Res      [3]float64
	Points   [3]int
	Size     [3]float64
	Periodic bool

	// FeatureOwners counts the footprints covering each point
	FeatureOwners []int32

	// ExclusionOwners counts the footprints whose interior (insideness
	// above ExclusionThreshold) covers each point
	ExclusionOwners []int32
}

// ExclusionThreshold is the insideness above which a footprint point
// excludes other features
const ExclusionThreshold = 0.1

// NewGrid sizes a packing grid for a voxel geometry
func NewGrid(g models.Geometry, periodic bool) *Grid {
	grid := &Grid{Size: g.Size(), Periodic: periodic}
	for i := 0; i < 3; i++ {
		grid.Res[i] = 2 * g.Spacing[i]
		grid.Points[i] = g.Dims[i] / 2
		if grid.Points[i] == 0 {
			grid.Points[i] = 1
		}
	}
	n := grid.Total()
	grid.FeatureOwners = make([]int32, n)
	grid.ExclusionOwners = make([]int32, n)
	return grid
}

// Total returns the number of packing points
func (g *Grid) Total() int {
	return g.Points[0] * g.Points[1] * g.Points[2]
}

// Cell returns the packing cell containing a physical position
func (g *Grid) Cell(c r3.Vec) [3]int {
	return [3]int{
		int((c.X - g.Res[0]/2) / g.Res[0]),
		int((c.Y - g.Res[1]/2) / g.Res[1]),
		int((c.Z - g.Res[2]/2) / g.Res[2]),
	}
}

// Center returns the physical centre of a packing cell
func (g *Grid) Center(cell [3]int) r3.Vec {
	return r3.Vec{
		X: float64(cell[0])*g.Res[0] + g.Res[0]/2,
		Y: float64(cell[1])*g.Res[1] + g.Res[1]/2,
		Z: float64(cell[2])*g.Res[2] + g.Res[2]/2,
	}
}

// Index flattens an in-range cell
func (g *Grid) Index(cell [3]int) int {
	return cell[2]*g.Points[0]*g.Points[1] + cell[1]*g.Points[0] + cell[0]
}

// CellAt converts a flat index back into a cell
func (g *Grid) CellAt(i int) [3]int {
	return [3]int{
		i % g.Points[0],
		(i / g.Points[0]) % g.Points[1],
		i / (g.Points[0] * g.Points[1]),
	}
}

// resolve maps a footprint cell onto a grid index. Periodic grids wrap
// cells lying at most one domain copy away; other grids drop cells outside.
func (g *Grid) resolve(cell [3]int) (int, bool) {
	for i := 0; i < 3; i++ {
		if g.Periodic {
			if cell[i] < 0 {
				cell[i] += g.Points[i]
			}
			if cell[i] > g.Points[i]-1 {
				cell[i] -= g.Points[i]
			}
			continue
		}
		if cell[i] < 0 || cell[i] >= g.Points[i] {
			return 0, false
		}
	}
	return g.Index(cell), true
}

// FreePointCount returns the number of points no feature interior covers
func (g *Grid) FreePointCount() int {
	n := 0
	for _, e := range g.ExclusionOwners {
		if e == 0 {
			n++
		}
	}
	return n
}
