package packing

// freeEvent records a packing point entering (freed) or leaving the set of
// exclusion-free points
type freeEvent struct {
	point int
	freed bool
}

// Overlay applies footprints to the owner counters of a grid and keeps the
// filling error up to date incrementally. The error starts at 1 and is
// stored as an integer numerator over the number of packing points, so a
// reverted proposal restores it exactly.
type Overlay struct {
	grid   *Grid
	sum    int64
	events []freeEvent
}

// NewOverlay wraps a grid whose counters are all zero
func NewOverlay(g *Grid) *Overlay {
	return &Overlay{grid: g, sum: int64(g.Total())}
}

// Error returns the current normalized filling error
func (o *Overlay) Error() float64 {
	return float64(o.sum) / float64(o.grid.Total())
}

// Add applies a footprint: each covered point changes the error by
// 2*owners - 1 before its owner count is incremented
func (o *Overlay) Add(fp *Footprint) float64 {
	g := o.grid
	for i, cell := range fp.Cells {
		idx, ok := g.resolve(cell)
		if !ok {
			continue
		}
		if fp.Inside[i] > ExclusionThreshold {
			if g.ExclusionOwners[idx] == 0 {
				o.events = append(o.events, freeEvent{point: idx})
			}
			g.ExclusionOwners[idx]++
		}
		owners := int64(g.FeatureOwners[idx])
		o.sum += 2*owners - 1
		g.FeatureOwners[idx]++
	}
	return o.Error()
}

// Remove withdraws a footprint: each covered point changes the error by
// 3 - 2*owners before its owner count is decremented
func (o *Overlay) Remove(fp *Footprint) float64 {
	g := o.grid
	for i, cell := range fp.Cells {
		idx, ok := g.resolve(cell)
		if !ok {
			continue
		}
		if fp.Inside[i] > ExclusionThreshold {
			g.ExclusionOwners[idx]--
			if g.ExclusionOwners[idx] == 0 {
				o.events = append(o.events, freeEvent{point: idx, freed: true})
			}
		}
		owners := int64(g.FeatureOwners[idx])
		o.sum += 3 - 2*owners
		g.FeatureOwners[idx]--
	}
	return o.Error()
}

// Commit replays the pending free-point changes, in order, onto a free set
func (o *Overlay) Commit(free *FreeSet) {
	for _, e := range o.events {
		if e.freed {
			free.Insert(e.point)
		} else {
			free.Delete(e.point)
		}
	}
	o.events = o.events[:0]
}

// Discard drops the pending free-point changes
func (o *Overlay) Discard() {
	o.events = o.events[:0]
}

// FreeSet is the set of packing points with no exclusion owner. Points
// live in a dense slice for uniform sampling and in a map from point to
// slot for removal.
type FreeSet struct {
	slot   map[int]int
	points []int
}

// NewFreeSet collects every point of the grid with a zero exclusion count
func NewFreeSet(g *Grid) *FreeSet {
	f := &FreeSet{slot: make(map[int]int)}
	for i, e := range g.ExclusionOwners {
		if e == 0 {
			f.Insert(i)
		}
	}
	return f
}

// Len returns the number of free points
func (f *FreeSet) Len() int { return len(f.points) }

// At returns the point stored in a slot
func (f *FreeSet) At(slot int) int { return f.points[slot] }

// Contains reports whether a point is free
func (f *FreeSet) Contains(point int) bool {
	_, ok := f.slot[point]
	return ok
}

// Insert adds a point; inserting a present point is a no-op
func (f *FreeSet) Insert(point int) {
	if _, ok := f.slot[point]; ok {
		return
	}
	f.slot[point] = len(f.points)
	f.points = append(f.points, point)
}

// Delete removes a point by moving the last slot into its place
func (f *FreeSet) Delete(point int) {
	s, ok := f.slot[point]
	if !ok {
		return
	}
	last := len(f.points) - 1
	moved := f.points[last]
	f.points[s] = moved
	f.slot[moved] = s
	f.points = f.points[:last]
	delete(f.slot, point)
}
