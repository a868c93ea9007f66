package packing

import (
	"gonum.org/v1/gonum/spatial/r3"

	"foamsynth/internal/models"
	"foamsynth/pkg/orientation"
	"foamsynth/pkg/shapes"
)

// Footprint is the set of packing cells a placed feature covers, with the
// insideness of the feature at each of them. Cells may lie outside the
// grid; they are wrapped or dropped when applied.
type Footprint struct {
	Cells  [][3]int
	Inside []float64
}

// NewFootprint samples the shape of f, centred on its centroid, at every
// packing cell of its bounding box. The box spans at most one extra domain
// copy on each side.
func NewFootprint(g *Grid, f *models.Feature, shape shapes.Shape) Footprint {
	r1 := shape.Radius(f.Volume, f.AxisLengths[1], f.AxisLengths[2])
	radii := r3.Vec{X: r1, Y: r1 * f.AxisLengths[1], Z: r1 * f.AxisLengths[2]}
	rot := orientation.Matrix(f.AxisEulerAngles)

	centre := g.Cell(f.Centroid)
	var lo, hi [3]int
	for i := 0; i < 3; i++ {
		reach := r1/g.Res[i] + 1
		lo[i] = int(float64(centre[i]) - reach)
		hi[i] = int(float64(centre[i]) + reach)
		if lo[i] < -g.Points[i] {
			lo[i] = -g.Points[i]
		}
		if hi[i] > 2*g.Points[i]-1 {
			hi[i] = 2*g.Points[i] - 1
		}
	}

	var fp Footprint
	for c := lo[0]; c <= hi[0]; c++ {
		for r := lo[1]; r <= hi[1]; r++ {
			for p := lo[2]; p <= hi[2]; p++ {
				offset := r3.Vec{
					X: float64(c)*g.Res[0] - f.Centroid.X,
					Y: float64(r)*g.Res[1] - f.Centroid.Y,
					Z: float64(p)*g.Res[2] - f.Centroid.Z,
				}
				local := rot.MulVec(offset)
				inside := shape.Inside(r3.Vec{X: local.X / radii.X, Y: local.Y / radii.Y, Z: local.Z / radii.Z})
				if inside >= 0 {
					fp.Cells = append(fp.Cells, [3]int{c, r, p})
					fp.Inside = append(fp.Inside, inside)
				}
			}
		}
	}
	return fp
}

// Shift translates every cell of the footprint
func (fp *Footprint) Shift(d [3]int) {
	for i := range fp.Cells {
		fp.Cells[i][0] += d[0]
		fp.Cells[i][1] += d[1]
		fp.Cells[i][2] += d[2]
	}
}
