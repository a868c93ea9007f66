package models

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrTableSize is returned when the feature table is asked to take an
// impossible shape
var ErrTableSize = errors.New("invalid feature table size")

// Feature is one synthesized grain, pore or cell
type Feature struct {
	// Volume is the target physical volume of the feature
	Volume float64

	// EquivalentDiameter is the diameter of the sphere with the same volume
	EquivalentDiameter float64

	// AxisLengths holds 1, b/a and c/a
	AxisLengths [3]float64

	// AxisEulerAngles orients the principal axes (Bunge convention, radians)
	AxisEulerAngles [3]float64

	// Omega3 is the shape factor used by the super-ellipsoid family
	Omega3 float64

	// Phase is the ensemble phase id of the feature
	Phase int32

	// Neighborhood is the number of features whose centroids lie within one
	// equivalent diameter of this one
	Neighborhood int32

	// Centroid is the physical position of the feature centre
	Centroid r3.Vec
}

// FeatureTable stores features by dense id. Id 0 is reserved for the
// background and never holds a real feature.
type FeatureTable struct {
	features []Feature
}

// NewFeatureTable creates an empty table with room for capacity features
func NewFeatureTable(capacity int) *FeatureTable {
	if capacity < 0 {
		capacity = 0
	}
	t := &FeatureTable{features: make([]Feature, 1, capacity+1)}
	return t
}

// Append adds a feature and returns its id
func (t *FeatureTable) Append(f Feature) int32 {
	t.features = append(t.features, f)
	return int32(len(t.features) - 1)
}

// Count returns the number of features, not counting the reserved slot
func (t *FeatureTable) Count() int {
	return len(t.features) - 1
}

// Get returns the feature with the given id, or nil when it does not exist
func (t *FeatureTable) Get(id int32) *Feature {
	if id <= 0 || int(id) >= len(t.features) {
		return nil
	}
	return &t.features[id]
}

// Truncate drops every feature with an id greater than n
func (t *FeatureTable) Truncate(n int) error {
	if n < 0 || n > t.Count() {
		return fmt.Errorf("%w: truncate to %d with %d features", ErrTableSize, n, t.Count())
	}
	t.features = t.features[:n+1]
	return nil
}

// Compact removes every feature not marked in active and renumbers the
// survivors densely from 1, rewriting ids in place. active must hold one
// entry per id including the reserved slot 0. The returned slice maps old
// ids to new ids (0 for removed features).
func (t *FeatureTable) Compact(active *Bitset, featureIds []int32) ([]int32, error) {
	if active.Len() != len(t.features) {
		return nil, fmt.Errorf("%w: active set has %d entries for %d ids", ErrTableSize, active.Len(), len(t.features))
	}

	remap := make([]int32, len(t.features))
	kept := t.features[:1]
	for id := 1; id < len(t.features); id++ {
		if !active.Test(id) {
			continue
		}
		kept = append(kept, t.features[id])
		remap[id] = int32(len(kept) - 1)
	}
	t.features = kept

	for i, id := range featureIds {
		if id > 0 {
			featureIds[i] = remap[id]
		}
	}
	return remap, nil
}

// Bitset is a fixed-size set of small non-negative integers
type Bitset struct {
	words []uint64
	n     int
}

// NewBitset creates a set able to hold values in [0, n)
func NewBitset(n int) *Bitset {
	return &Bitset{words: make([]uint64, (n+63)/64), n: n}
}

// Len returns the capacity of the set
func (b *Bitset) Len() int { return b.n }

// Set adds i to the set
func (b *Bitset) Set(i int) { b.words[i>>6] |= 1 << (uint(i) & 63) }

// Test reports whether i is in the set
func (b *Bitset) Test(i int) bool { return b.words[i>>6]&(1<<(uint(i)&63)) != 0 }
