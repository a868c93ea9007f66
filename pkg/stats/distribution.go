package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"foamsynth/internal/models"
)

// SizeBins is the number of bins of the size and neighbourhood histograms
const SizeBins = 40

// SizeHistogram is the goal diameter histogram of one phase. Bins start at
// half the minimum diameter and span up to twice the maximum.
type SizeHistogram struct {
	Goal   []float64
	Step   float64
	Offset float64
}

// GoalSizeHistogram integrates the log-normal size distribution of a phase
// over the histogram bins
func GoalSizeHistogram(p *models.PhaseStats) SizeHistogram {
	h := SizeHistogram{
		Goal:   make([]float64, SizeBins),
		Step:   (2*p.MaxDiameter() - p.MinDiameter()/2) / SizeBins,
		Offset: p.MinDiameter() / 2,
	}
	dist := distuv.LogNormal{Mu: p.FeatureSize.Mu, Sigma: p.FeatureSize.Sigma}
	previous := 0.0
	for j := range h.Goal {
		upper := float64(j+1)*h.Step + h.Offset
		h.Goal[j] = dist.CDF(upper) - previous
		previous += h.Goal[j]
	}
	return h
}

// Bin maps a diameter onto its histogram bin
func (h SizeHistogram) Bin(d float64) int {
	b := (d - h.Offset) / h.Step
	if b < 0 {
		b = 0
	}
	if b > SizeBins-1 {
		b = SizeBins - 1
	}
	return int(b)
}

// Similarity returns the Bhattacharyya coefficient of two histograms. The
// simulated histogram is normalized first; an empty one scores 0.
func Similarity(sim, goal []float64) float64 {
	total := floats.Sum(sim)
	if total == 0 {
		return 0
	}
	norm := make([]float64, len(sim))
	floats.ScaleTo(norm, 1/total, sim)
	return math.Exp(-stat.Bhattacharyya(norm, goal))
}

// SizeDistribution tracks the simulated size histograms of the fillable
// phases and scores candidate features against the goal histograms.
// Higher scores are better; a perfect match of every phase scores the
// number of phases.
type SizeDistribution struct {
	phases  map[int32]int
	goals   []SizeHistogram
	sim     [][]float64
	scratch []float64
}

// NewSizeDistribution builds goal histograms for the fillable phases
func NewSizeDistribution(phases []models.FillablePhase) *SizeDistribution {
	d := &SizeDistribution{
		phases:  make(map[int32]int, len(phases)),
		goals:   make([]SizeHistogram, len(phases)),
		sim:     make([][]float64, len(phases)),
		scratch: make([]float64, SizeBins),
	}
	for i, fp := range phases {
		d.phases[fp.ID] = i
		d.goals[i] = GoalSizeHistogram(fp.Stats)
		d.sim[i] = make([]float64, SizeBins)
	}
	return d
}

// Goal returns the goal histogram of a phase
func (d *SizeDistribution) Goal(phase int32) (SizeHistogram, bool) {
	i, ok := d.phases[phase]
	if !ok {
		return SizeHistogram{}, false
	}
	return d.goals[i], true
}

// Error scores the current histograms as if f had been added, without
// recording it
func (d *SizeDistribution) Error(f *models.Feature) float64 {
	candidate, hasCandidate := d.phases[f.Phase]
	total := 0.0
	for i := range d.sim {
		sim := d.sim[i]
		if hasCandidate && i == candidate {
			copy(d.scratch, sim)
			d.scratch[d.goals[i].Bin(f.EquivalentDiameter)]++
			sim = d.scratch
		}
		total += Similarity(sim, d.goals[i].Goal)
	}
	return total
}

// Add records an accepted feature
func (d *SizeDistribution) Add(f *models.Feature) {
	if i, ok := d.phases[f.Phase]; ok {
		d.sim[i][d.goals[i].Bin(f.EquivalentDiameter)]++
	}
}

// NeighborhoodDistribution compares the neighbourhood counts of placed
// features with the goal count distribution of their diameter bin
type NeighborhoodDistribution struct {
	order  []int32
	phases map[int32]*models.PhaseStats
	goals  map[int32][][]float64
}

// NewNeighborhoodDistribution builds goal count histograms (one count per
// bin) for every fillable phase that carries neighbourhood statistics
func NewNeighborhoodDistribution(phases []models.FillablePhase) *NeighborhoodDistribution {
	d := &NeighborhoodDistribution{
		phases: make(map[int32]*models.PhaseStats),
		goals:  make(map[int32][][]float64),
	}
	for _, fp := range phases {
		if len(fp.Stats.Neighborhood) == 0 {
			continue
		}
		d.order = append(d.order, fp.ID)
		d.phases[fp.ID] = fp.Stats
		goals := make([][]float64, len(fp.Stats.Neighborhood))
		for i, ln := range fp.Stats.Neighborhood {
			goals[i] = make([]float64, SizeBins)
			if ln.Sigma <= 0 {
				continue
			}
			dist := distuv.LogNormal{Mu: ln.Mu, Sigma: ln.Sigma}
			previous := 0.0
			for j := 0; j < SizeBins-1; j++ {
				goals[i][j] = dist.CDF(float64(j+1)) - previous
				previous += goals[i][j]
			}
			goals[i][SizeBins-1] = math.Max(0, 1-previous)
		}
		d.goals[fp.ID] = goals
	}
	return d
}

// Error returns the mean Bhattacharyya coefficient over every (phase,
// diameter bin) pair that holds at least one feature. It is 0 when no
// feature can be compared.
func (d *NeighborhoodDistribution) Error(table *models.FeatureTable) float64 {
	sims := make(map[int32][][]float64, len(d.goals))
	for phase, goals := range d.goals {
		sim := make([][]float64, len(goals))
		for i := range sim {
			sim[i] = make([]float64, SizeBins)
		}
		sims[phase] = sim
	}

	for id := int32(1); int(id) <= table.Count(); id++ {
		f := table.Get(id)
		p, ok := d.phases[f.Phase]
		if !ok {
			continue
		}
		bin := p.DiameterBin(f.EquivalentDiameter)
		if bin >= len(sims[f.Phase]) {
			bin = len(sims[f.Phase]) - 1
		}
		n := int(f.Neighborhood)
		if n >= SizeBins {
			n = SizeBins - 1
		}
		sims[f.Phase][bin][n]++
	}

	total, pairs := 0.0, 0
	for _, phase := range d.order {
		for i, h := range sims[phase] {
			if floats.Sum(h) == 0 {
				continue
			}
			total += Similarity(h, d.goals[phase][i])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}
