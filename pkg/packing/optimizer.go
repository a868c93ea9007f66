package packing

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r3"

	"foamsynth/internal/logging"
	"foamsynth/internal/models"
	"foamsynth/pkg/shapes"
)

// TraceInterval is the number of refinement iterations between trace entries
const TraceInterval = 25

// TraceEntry is one sample of the refinement progress
type TraceEntry struct {
	Iteration    int
	FillingError float64
	FreePoints   int
	Features     int
	Accepted     int
}

// Optimizer places the features of a table on the packing grid and then
// relocates them to lower the filling error. It runs on one goroutine.
type Optimizer struct {
	grid       *Grid
	overlay    *Overlay
	free       *FreeSet
	table      *models.FeatureTable
	shapes     []shapes.Shape
	footprints []Footprint
	rng        *rand.Rand

	accepted int
	trace    []TraceEntry
}

// NewOptimizer prepares a packing run. shapeOf returns the shape class of
// a phase.
func NewOptimizer(g models.Geometry, periodic bool, table *models.FeatureTable, shapeOf func(phase int32) models.ShapeType, rng *rand.Rand) (*Optimizer, error) {
	grid := NewGrid(g, periodic)
	o := &Optimizer{
		grid:       grid,
		overlay:    NewOverlay(grid),
		table:      table,
		shapes:     make([]shapes.Shape, table.Count()+1),
		footprints: make([]Footprint, table.Count()+1),
		rng:        rng,
	}
	for id := int32(1); int(id) <= table.Count(); id++ {
		f := table.Get(id)
		s, err := shapes.New(shapeOf(f.Phase), f.Omega3)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", id, err)
		}
		o.shapes[id] = s
	}
	return o, nil
}

// Grid returns the packing grid
func (o *Optimizer) Grid() *Grid { return o.grid }

// FillingError returns the current filling error
func (o *Optimizer) FillingError() float64 { return o.overlay.Error() }

// FreePoints returns the number of points in the free set
func (o *Optimizer) FreePoints() int {
	if o.free == nil {
		return 0
	}
	return o.free.Len()
}

// Accepted returns the number of accepted refinement moves
func (o *Optimizer) Accepted() int { return o.accepted }

// Trace returns the recorded refinement samples
func (o *Optimizer) Trace() []TraceEntry { return o.trace }

// Footprint returns the current footprint of a feature
func (o *Optimizer) Footprint(id int32) *Footprint { return &o.footprints[id] }

// Place drops every feature on the grid. Each footprint is computed at the
// domain centre, away from the edges, and then moved to the first
// exclusion-free point found by walking forward from a random point.
func (o *Optimizer) Place() {
	g := o.grid
	centre := r3.Vec{X: g.Size[0] / 2, Y: g.Size[1] / 2, Z: g.Size[2] / 2}
	total := g.Total()

	for id := int32(1); int(id) <= o.table.Count(); id++ {
		f := o.table.Get(id)
		f.Centroid = centre
		o.footprints[id] = NewFootprint(g, f, o.shapes[id])

		start := r3.Vec{
			X: o.rng.Float64() * g.Size[0],
			Y: o.rng.Float64() * g.Size[1],
			Z: o.rng.Float64() * g.Size[2],
		}
		idx := g.Index(g.Cell(start))
		for count := 0; g.ExclusionOwners[idx] > 0 && count < total; count++ {
			idx++
			if idx >= total {
				idx = 0
			}
		}

		o.move(id, g.Center(g.CellAt(idx)))
		o.overlay.Add(&o.footprints[id])
	}

	o.free = NewFreeSet(g)
	o.overlay.Discard()
	logging.Logger().Info("features placed",
		"features", o.table.Count(),
		"filling_error", o.overlay.Error(),
		"free_points", o.free.Len())
}

// Refine runs 100 relocation proposals per feature
func (o *Optimizer) Refine() {
	n := 100 * o.table.Count()
	for it := 0; it < n; it++ {
		o.Step(it)
	}
	logging.Logger().Info("packing refined",
		"iterations", n,
		"filling_error", o.overlay.Error(),
		"accepted", o.accepted)
}

// Step runs one refinement proposal. Even iterations jump a feature to a
// random free point; odd iterations nudge it by up to two packing cells.
// The move is reverted when it raises the filling error.
func (o *Optimizer) Step(iteration int) {
	if o.free == nil || o.table.Count() == 0 {
		return
	}
	if iteration%TraceInterval == 0 {
		o.trace = append(o.trace, TraceEntry{
			Iteration:    iteration,
			FillingError: o.overlay.Error(),
			FreePoints:   o.free.Len(),
			Features:     o.table.Count(),
			Accepted:     o.accepted,
		})
	}

	id := o.pickFeature()
	f := o.table.Get(id)
	old := f.Centroid

	var target r3.Vec
	if iteration%2 == 0 {
		target = o.jumpTarget()
	} else {
		target = o.nudgeTarget(old)
	}

	before := o.overlay.Error()
	fp := &o.footprints[id]
	o.overlay.Remove(fp)
	o.move(id, target)
	after := o.overlay.Add(fp)

	if after > before {
		o.overlay.Remove(fp)
		o.move(id, old)
		o.overlay.Add(fp)
		o.overlay.Discard()
		return
	}
	o.overlay.Commit(o.free)
	o.accepted++
	if iteration%1000 == 0 {
		logging.Logger().Debug("refinement", "iteration", iteration, "filling_error", after, "free_points", o.free.Len())
	}
}

// pickFeature chooses a random feature and walks forward to the first one
// whose centre cell is covered more than once
func (o *Optimizer) pickFeature() int32 {
	n := o.table.Count()
	id := 1 + int32(o.rng.Float64()*float64(n))
	for count := 0; count < n; count++ {
		f := o.table.Get(id)
		if idx, ok := o.grid.resolve(o.grid.Cell(f.Centroid)); ok && o.grid.FeatureOwners[idx] > 1 {
			break
		}
		id++
		if int(id) > n {
			id = 1
		}
	}
	return id
}

// jumpTarget returns the centre of a random free point, or of a random
// point when none is free
func (o *Optimizer) jumpTarget() r3.Vec {
	var idx int
	if n := o.free.Len(); n > 0 {
		idx = o.free.At(int(o.rng.Float64() * float64(n-1)))
	} else {
		idx = int(o.rng.Float64() * float64(o.grid.Total()))
	}
	return o.grid.Center(o.grid.CellAt(idx))
}

// nudgeTarget shifts a position by up to two packing cells per axis. An
// axis whose shifted coordinate leaves the domain keeps its old value.
func (o *Optimizer) nudgeTarget(old r3.Vec) r3.Vec {
	g := o.grid
	shift := func(c, res, size float64) float64 {
		n := c + 2*(o.rng.Float64()-0.5)*2*res
		if n < size && n > 0 {
			return n
		}
		return c
	}
	return r3.Vec{
		X: shift(old.X, g.Res[0], g.Size[0]),
		Y: shift(old.Y, g.Res[1], g.Size[1]),
		Z: shift(old.Z, g.Res[2], g.Size[2]),
	}
}

// move sets a feature centroid and shifts its footprint by the change in
// packing cell
func (o *Optimizer) move(id int32, c r3.Vec) {
	f := o.table.Get(id)
	from := o.grid.Cell(f.Centroid)
	to := o.grid.Cell(c)
	f.Centroid = c
	o.footprints[id].Shift([3]int{to[0] - from[0], to[1] - from[1], to[2] - from[2]})
}
