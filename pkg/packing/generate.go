package packing

import (
	"math"

	"foamsynth/internal/logging"
	"foamsynth/internal/models"
	"foamsynth/pkg/stats"
)

// GenerationStats summarizes a generation run
type GenerationStats struct {
	// Candidates is the number of features drawn
	Candidates int

	// Accepted is the number of features kept
	Accepted int

	// SizeError is the final size-distribution similarity
	SizeError float64

	// PhaseVolumes is the generated volume per fillable phase
	PhaseVolumes []float64

	// PeriodicFactor is the extra volume allowance used for periodic runs
	PeriodicFactor float64
}

// Generate draws features for every fillable phase until each phase reaches
// its share of targetVolume. Every candidate gets a fresh generator from
// seeds. A candidate is kept when it improves the size distribution, when
// the score beats a tolerance that loosens with each rejection, or while
// the phase is below three quarters of its target. Periodic domains run a
// second pass up to (1+factor) of the target to make up for features that
// wrap.
func Generate(g models.Geometry, phases []models.FillablePhase, targetVolume float64, periodic bool, seeds *stats.SeedSequence) (*models.FeatureTable, GenerationStats) {
	log := logging.Logger()

	estimate := stats.EstimateFeatureCount(g, phases, seeds.Next())
	table := models.NewFeatureTable(estimate)
	dist := stats.NewSizeDistribution(phases)
	samplers := make([]*stats.Sampler, len(phases))
	for j, fp := range phases {
		samplers[j] = stats.NewSampler(fp.ID, fp.Stats)
	}

	st := GenerationStats{PhaseVolumes: make([]float64, len(phases))}
	oldError := 0.0

	fill := func(j int, limit, factor float64) {
		target := targetVolume * phases[j].Fraction
		iter := 0
		for st.PhaseVolumes[j] < limit*target {
			iter++
			f := samplers[j].Sample(seeds.Next())
			st.Candidates++

			current := dist.Error(&f)
			change := current - oldError
			if change > 0 || current > 1-float64(iter)*0.001 || st.PhaseVolumes[j] < 0.75*factor*target {
				table.Append(f)
				dist.Add(&f)
				oldError = current
				st.PhaseVolumes[j] += f.Volume
				iter = 0
			}
		}
	}

	for j := range phases {
		fill(j, 1, 1)
	}

	if periodic {
		st.PeriodicFactor = PeriodicFactor(table.Count(), g.Size())
		for j := range phases {
			fill(j, 1+st.PeriodicFactor, st.PeriodicFactor)
		}
	}

	st.Accepted = table.Count()
	st.SizeError = oldError
	log.Info("features generated",
		"estimate", estimate,
		"features", st.Accepted,
		"candidates", st.Candidates,
		"size_error", st.SizeError)
	return table, st
}

// PeriodicFactor estimates the fraction of n features that touch the domain
// surface, from the number of features along each axis
func PeriodicFactor(n int, size [3]float64) float64 {
	x := int(math.Cbrt(float64(n)*(size[0]/size[1])*(size[0]/size[2])) + 1)
	y := int(float64(x)*(size[1]/size[0]) + 1)
	z := int(float64(x)*(size[2]/size[0]) + 1)
	interior := float64((x - 2) * (y - 2) * (z - 2))
	return 0.25 * (1 - interior/float64(x*y*z))
}
