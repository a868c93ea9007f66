// Package orientation turns a discretized axis orientation distribution into
// Euler angles and Euler angles into rotation matrices.
//
// Axis orientations carry orthorhombic symmetry, so the distribution covers
// the reduced Euler cell [0, π/2)³ split into k bins per angle.
package orientation

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// cellSize is the extent of the orthorhombic Euler cell along each angle
const cellSize = math.Pi / 2

// Sampler draws Euler angles from a discretized orientation distribution
type Sampler struct {
	cumulative []float64
	binsPerDim int
}

// NewSampler builds a sampler from bin weights. The weights are normalized;
// an empty or all-zero table samples orientations uniformly.
func NewSampler(odf []float64) *Sampler {
	s := &Sampler{}
	if len(odf) == 0 {
		return s
	}
	total := floats.Sum(odf)
	if total <= 0 {
		return s
	}
	s.cumulative = make([]float64, len(odf))
	floats.CumSum(s.cumulative, odf)
	floats.Scale(1/total, s.cumulative)
	s.binsPerDim = int(math.Round(math.Cbrt(float64(len(odf)))))
	return s
}

// Uniform reports whether the sampler ignores bins
func (s *Sampler) Uniform() bool {
	return s.cumulative == nil
}

// Bin returns the bin whose cumulative interval contains u in [0, 1).
// Values past the last interval map to bin 0.
func (s *Sampler) Bin(u float64) int {
	lower := 0.0
	for j, upper := range s.cumulative {
		if u < upper && u >= lower {
			return j
		}
		lower = upper
	}
	return 0
}

// Euler returns random Bunge angles inside the given bin
func (s *Sampler) Euler(rng *rand.Rand, bin int) [3]float64 {
	if s.Uniform() {
		return [3]float64{
			2 * math.Pi * rng.Float64(),
			math.Acos(2*rng.Float64() - 1),
			2 * math.Pi * rng.Float64(),
		}
	}
	k := s.binsPerDim
	step := cellSize / float64(k)
	i1 := bin % k
	i2 := (bin / k) % k
	i3 := bin / (k * k)
	return [3]float64{
		step * (float64(i1) + rng.Float64()),
		step * (float64(i2) + rng.Float64()),
		step * (float64(i3) + rng.Float64()),
	}
}

// Sample picks a bin with one uniform draw and then angles inside it
func (s *Sampler) Sample(rng *rand.Rand) [3]float64 {
	bin := 0
	if !s.Uniform() {
		bin = s.Bin(rng.Float64())
	}
	return s.Euler(rng, bin)
}

// Matrix returns the passive Bunge rotation matrix of the angles. It maps
// sample-frame vectors into the principal frame of the feature.
func Matrix(euler [3]float64) *r3.Mat {
	s1, c1 := math.Sincos(euler[0])
	sp, cp := math.Sincos(euler[1])
	s2, c2 := math.Sincos(euler[2])
	return r3.NewMat([]float64{
		c1*c2 - s1*s2*cp, s1*c2 + c1*s2*cp, s2 * sp,
		-c1*s2 - s1*c2*cp, -s1*s2 + c1*c2*cp, c2 * sp,
		s1 * sp, -c1 * sp, cp,
	})
}
