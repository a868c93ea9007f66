// Package raster turns packed features into a labelled voxel grid and fills
// the voxels no feature claimed.
package raster

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"foamsynth/internal/logging"
	"foamsynth/internal/models"
	"foamsynth/pkg/orientation"
	"foamsynth/pkg/parallel"
	"foamsynth/pkg/shapes"
)

// Result summarizes a rasterization pass
type Result struct {
	// Removed is the number of features that claimed no voxel and were
	// pruned from the table
	Removed int

	// PhaseCounts holds the number of surviving features per phase id
	PhaseCounts []int

	// Remap maps the id a feature had before pruning to its new id, or to 0
	// when it was removed
	Remap []int32
}

// Rasterizer writes feature shapes into the output grid. Every voxel keeps
// the feature that is most inside it; ties keep the first claim.
type Rasterizer struct {
	vol      *models.Volume
	table    *models.FeatureTable
	shapeOf  func(phase int32) models.ShapeType
	periodic bool
	exec     parallel.Executor

	owners []int32
	best   []float64
}

// NewRasterizer prepares a pass over vol. shapeOf returns the shape class
// of a phase.
func NewRasterizer(vol *models.Volume, table *models.FeatureTable, shapeOf func(phase int32) models.ShapeType, periodic bool, exec parallel.Executor) *Rasterizer {
	if exec == nil {
		exec = parallel.Serial{}
	}
	return &Rasterizer{
		vol:      vol,
		table:    table,
		shapeOf:  shapeOf,
		periodic: periodic,
		exec:     exec,
	}
}

// Run rasterizes every feature, assigns the winning owners, prunes features
// without voxels and sets the cell phases
func (r *Rasterizer) Run() (Result, error) {
	log := logging.Logger()
	n := r.vol.NumVoxels()
	r.owners = make([]int32, n)
	r.best = make([]float64, n)
	for i := range r.owners {
		r.owners[i] = models.Unassigned
		r.best[i] = -1
	}

	for id := int32(1); int(id) <= r.table.Count(); id++ {
		if err := r.feature(id); err != nil {
			return Result{}, err
		}
	}

	ids := r.vol.FeatureIds
	for i := range ids {
		if r.best[i] >= 0 {
			ids[i] = r.owners[i]
		}
	}

	before := r.table.Count()
	active := models.NewBitset(before + 1)
	for _, id := range ids {
		if id >= 0 {
			active.Set(int(id))
		}
	}
	remap, err := r.table.Compact(active, ids)
	if err != nil {
		return Result{}, fmt.Errorf("prune inactive features: %w", err)
	}

	res := Result{Removed: before - r.table.Count(), Remap: remap}
	res.PhaseCounts = countPhases(r.table)
	assignPhases(r.vol, r.table)

	r.owners, r.best = nil, nil
	log.Info("features rasterized",
		"features", r.table.Count(),
		"removed", res.Removed,
		"unassigned", r.vol.CountUnassigned())
	return res, nil
}

// feature scans the bounding box of one feature. The box is split into
// z-slabs on the executor when no two slabs can wrap onto the same plane.
func (r *Rasterizer) feature(id int32) error {
	f := r.table.Get(id)
	shape, err := shapes.New(r.shapeOf(f.Phase), f.Omega3)
	if err != nil {
		return fmt.Errorf("feature %d: %w", id, err)
	}
	r1 := shape.Radius(f.Volume, f.AxisLengths[1], f.AxisLengths[2])
	radii := r3.Vec{X: r1, Y: r1 * f.AxisLengths[1], Z: r1 * f.AxisLengths[2]}
	rot := orientation.Matrix(f.AxisEulerAngles)
	c := [3]float64{f.Centroid.X, f.Centroid.Y, f.Centroid.Z}

	dims := r.vol.Dims
	spacing := r.vol.Spacing
	var lo, hi [3]int
	for i := 0; i < 3; i++ {
		centre := float64(int(c[i] / spacing[i]))
		reach := r1/spacing[i] + 1
		lo[i] = int(centre - reach)
		hi[i] = int(centre + reach)
		if r.periodic {
			lo[i] = max(lo[i], -dims[i])
			hi[i] = min(hi[i], 2*dims[i]-1)
		} else {
			lo[i] = max(lo[i], 0)
			hi[i] = min(hi[i], dims[i]-1)
		}
	}
	if hi[2] < lo[2] {
		return nil
	}

	slab := func(zlo, zhi int) error {
		for z := lo[2] + zlo; z < lo[2]+zhi; z++ {
			zz := wrap(z, dims[2])
			for y := lo[1]; y <= hi[1]; y++ {
				yy := wrap(y, dims[1])
				for x := lo[0]; x <= hi[0]; x++ {
					xx := wrap(x, dims[0])
					offset := r3.Vec{
						X: float64(x)*spacing[0] - c[0],
						Y: float64(y)*spacing[1] - c[1],
						Z: float64(z)*spacing[2] - c[2],
					}
					local := rot.MulVec(offset)
					inside := shape.Inside(r3.Vec{X: local.X / radii.X, Y: local.Y / radii.Y, Z: local.Z / radii.Z})
					if inside < 0 {
						continue
					}
					i := r.vol.Index(xx, yy, zz)
					if r.owners[i] == models.Unassigned || inside > r.best[i] {
						r.owners[i] = id
						r.best[i] = inside
					}
				}
			}
		}
		return nil
	}

	span := hi[2] - lo[2] + 1
	if span > dims[2] {
		return parallel.Serial{}.For(span, slab)
	}
	return r.exec.For(span, slab)
}

// wrap maps a coordinate at most one domain copy outside [0, n) back inside
func wrap(v, n int) int {
	if v < 0 {
		return v + n
	}
	if v >= n {
		return v - n
	}
	return v
}

func countPhases(table *models.FeatureTable) []int {
	maxPhase := int32(0)
	for id := int32(1); int(id) <= table.Count(); id++ {
		if p := table.Get(id).Phase; p > maxPhase {
			maxPhase = p
		}
	}
	counts := make([]int, maxPhase+1)
	for id := int32(1); int(id) <= table.Count(); id++ {
		if p := table.Get(id).Phase; p >= 0 {
			counts[p]++
		}
	}
	return counts
}

// assignPhases copies the phase of each voxel's feature into the cell
// phases. Background and unassigned voxels get phase 0.
func assignPhases(vol *models.Volume, table *models.FeatureTable) {
	for i, id := range vol.FeatureIds {
		vol.CellPhases[i] = phaseOf(table, id)
	}
}

func phaseOf(table *models.FeatureTable, id int32) int32 {
	if f := table.Get(id); f != nil {
		return f.Phase
	}
	return 0
}

// VoxelCounts returns the number of voxels owned by each feature id
func VoxelCounts(vol *models.Volume, features int) []int {
	counts := make([]int, features+1)
	for _, id := range vol.FeatureIds {
		if id > 0 && int(id) <= features {
			counts[id]++
		}
	}
	return counts
}
