// Package stats draws candidate features from the ensemble statistics and
// scores how well a set of features matches the target distributions.
package stats

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"foamsynth/internal/logging"
	"foamsynth/internal/models"
	"foamsynth/pkg/orientation"
)

// maxRatioDraws caps the axis ratio retry loop. After the cap the smaller
// ratio is used for both axes.
const maxRatioDraws = 10000

// SeedSequence hands out a fresh deterministic generator per proposal.
// Every call to Next advances the seed by one.
type SeedSequence struct {
	seed uint64
}

// NewSeedSequence starts a sequence at seed
func NewSeedSequence(seed uint64) *SeedSequence {
	return &SeedSequence{seed: seed}
}

// Next advances the seed and returns a generator seeded with it
func (s *SeedSequence) Next() *rand.Rand {
	s.seed++
	return rand.New(rand.NewSource(s.seed))
}

// Seed returns the current seed
func (s *SeedSequence) Seed() uint64 { return s.seed }

// Sampler draws candidate features for one phase
type Sampler struct {
	id    int32
	stats *models.PhaseStats
	odf   *orientation.Sampler
}

// NewSampler creates a sampler for the phase with the given id
func NewSampler(id int32, p *models.PhaseStats) *Sampler {
	return &Sampler{id: id, stats: p, odf: orientation.NewSampler(p.AxisODF)}
}

// Phase returns the phase id of the features this sampler draws
func (s *Sampler) Phase() int32 { return s.id }

// Sample draws one feature. The centroid is left at the origin and the
// neighbourhood count at zero.
func (s *Sampler) Sample(rng *rand.Rand) models.Feature {
	p := s.stats
	minD, maxD := p.MinDiameter(), p.MaxDiameter()

	size := distuv.LogNormal{Mu: p.FeatureSize.Mu, Sigma: p.FeatureSize.Sigma, Src: rng}
	diam := size.Rand()
	for diam >= maxD || diam < minD {
		diam = size.Rand()
	}
	vol := math.Pi / 6 * diam * diam * diam

	bin := int((diam - minD) / p.BinStepSize)
	if n := len(p.BOverA); bin >= n {
		bin = n - 1
	}

	r2, r3 := s.axisRatios(rng, bin)

	euler := s.odf.Sample(rng)

	omega3 := 1.0
	if p.Shape != models.Ellipsoid {
		if bp := p.Omega3[bin]; !bp.Degenerate() {
			omega3 = distuv.Beta{Alpha: bp.Alpha, Beta: bp.Beta, Src: rng}.Rand()
		}
	}

	return models.Feature{
		Volume:             vol,
		EquivalentDiameter: diam,
		AxisLengths:        [3]float64{1, r2, r3},
		AxisEulerAngles:    euler,
		Omega3:             omega3,
		Phase:              s.id,
	}
}

// axisRatios draws b/a and c/a at a diameter bin, redrawing while b/a < c/a
func (s *Sampler) axisRatios(rng *rand.Rand, bin int) (float64, float64) {
	bOverA, cOverA, ok := s.ratioParams(bin)
	if !ok {
		return 1, 1
	}
	b := distuv.Beta{Alpha: bOverA.Alpha, Beta: bOverA.Beta, Src: rng}
	c := distuv.Beta{Alpha: cOverA.Alpha, Beta: cOverA.Beta, Src: rng}

	r2, r3 := 0.0, 1.0
	for draws := 0; r2 < r3; draws++ {
		if draws == maxRatioDraws {
			logging.Logger().Warn("axis ratio retry cap reached", "phase", s.id, "bin", bin)
			return r2, r2
		}
		r2 = b.Rand()
		r3 = c.Rand()
	}
	return r2, r3
}

// ratioParams finds usable beta parameters for both ratios, searching
// downwards from bin first and then upwards from bin+1. ok is false when
// the whole table is degenerate.
func (s *Sampler) ratioParams(bin int) (bOverA, cOverA models.BetaParams, ok bool) {
	p := s.stats
	n := len(p.BOverA)
	cur, step := bin, -1
	for {
		bOverA, cOverA = p.BOverA[cur], p.COverA[cur]
		if !bOverA.Degenerate() && !cOverA.Degenerate() {
			return bOverA, cOverA, true
		}
		cur += step
		if cur < 0 {
			cur, step = bin+1, 1
		}
		if cur >= n {
			return bOverA, cOverA, false
		}
	}
}

// EstimateFeatureCount predicts how many features fill the geometry. The
// estimate pre-sizes the feature table and is never used as a limit.
func EstimateFeatureCount(g models.Geometry, phases []models.FillablePhase, rng *rand.Rand) int {
	size := g.Size()
	total := size[0] * size[1] * size[2]
	if total == 0 {
		return 1
	}

	count := 1
	current := 0.0
	for _, fp := range phases {
		p := fp.Stats
		if p.FeatureSize.Sigma <= 0 {
			continue
		}
		minD, maxD := p.MinDiameter(), p.MaxDiameter()
		dist := distuv.LogNormal{Mu: p.FeatureSize.Mu, Sigma: p.FeatureSize.Sigma, Src: rng}
		target := total * fp.Fraction
		for current < target {
			d := dist.Rand()
			for d >= maxD || d < minD {
				d = dist.Rand()
			}
			current += math.Pi / 6 * d * d * d
			count++
		}
	}
	return count
}
