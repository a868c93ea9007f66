package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"foamsynth/internal/models"
)

func testPhase(shape models.ShapeType) *models.PhaseStats {
	p := &models.PhaseStats{
		Name:          "cells",
		Type:          models.PrecipitatePhase,
		Shape:         shape,
		PhaseFraction: 1,
		FeatureSize:   models.LogNormalParams{Mu: 1.6, Sigma: 0.2},
		MinCutOff:     2,
		MaxCutOff:     2,
		BinStepSize:   0.5,
	}
	for i := 0; i < p.NumBins(); i++ {
		p.BOverA = append(p.BOverA, models.BetaParams{Alpha: 15, Beta: 2})
		p.COverA = append(p.COverA, models.BetaParams{Alpha: 15, Beta: 2})
		p.Omega3 = append(p.Omega3, models.BetaParams{Alpha: 10, Beta: 1.5})
		p.Neighborhood = append(p.Neighborhood, models.LogNormalParams{Mu: 2, Sigma: 0.3})
	}
	return p
}

func TestSeedSequence(t *testing.T) {
	a := NewSeedSequence(41)
	b := NewSeedSequence(41)
	ra, rb := a.Next(), b.Next()
	assert.Equal(t, uint64(42), a.Seed())
	assert.Equal(t, ra.Uint64(), rb.Uint64())

	next := a.Next()
	assert.Equal(t, uint64(43), a.Seed())
	assert.NotEqual(t, rand.New(rand.NewSource(42)).Uint64(), next.Uint64())
}

func TestSampleRespectsBounds(t *testing.T) {
	p := testPhase(models.SuperEllipsoid)
	s := NewSampler(3, p)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		f := s.Sample(rng)
		assert.Equal(t, int32(3), f.Phase)
		assert.GreaterOrEqual(t, f.EquivalentDiameter, p.MinDiameter())
		assert.Less(t, f.EquivalentDiameter, p.MaxDiameter())
		assert.GreaterOrEqual(t, f.AxisLengths[1], f.AxisLengths[2])
		assert.Equal(t, 1.0, f.AxisLengths[0])
		assert.LessOrEqual(t, f.Omega3, 1.0)
		assert.Zero(t, f.Neighborhood)
	}
}

func TestSampleDeterministic(t *testing.T) {
	s := NewSampler(1, testPhase(models.Ellipsoid))
	a := s.Sample(rand.New(rand.NewSource(9)))
	b := s.Sample(rand.New(rand.NewSource(9)))
	assert.Equal(t, a, b)
}

func TestEllipsoidShapeFactorIsOne(t *testing.T) {
	s := NewSampler(1, testPhase(models.Ellipsoid))
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 50; i++ {
		assert.Equal(t, 1.0, s.Sample(rng).Omega3)
	}
}

func TestRatioParamsSearch(t *testing.T) {
	p := testPhase(models.Ellipsoid)
	n := len(p.BOverA)
	require.GreaterOrEqual(t, n, 3)
	for i := range p.BOverA {
		p.BOverA[i] = models.BetaParams{}
	}
	p.BOverA[n-1] = models.BetaParams{Alpha: 3, Beta: 4}

	s := NewSampler(1, p)
	b, _, ok := s.ratioParams(1)
	assert.True(t, ok)
	assert.Equal(t, 3.0, b.Alpha)

	p.BOverA[n-1] = models.BetaParams{}
	_, _, ok = s.ratioParams(1)
	assert.False(t, ok)

	r2, r3 := s.axisRatios(rand.New(rand.NewSource(1)), 1)
	assert.Equal(t, 1.0, r2)
	assert.Equal(t, 1.0, r3)
}

func TestGoalSizeHistogram(t *testing.T) {
	p := testPhase(models.Ellipsoid)
	h := GoalSizeHistogram(p)
	require.Len(t, h.Goal, SizeBins)
	assert.InDelta(t, (2*p.MaxDiameter()-p.MinDiameter()/2)/SizeBins, h.Step, 1e-12)
	assert.InDelta(t, 1, floats.Sum(h.Goal), 1e-6)
	for _, g := range h.Goal {
		assert.GreaterOrEqual(t, g, 0.0)
	}
	assert.Equal(t, 0, h.Bin(0))
	assert.Equal(t, SizeBins-1, h.Bin(1e9))
}

func TestSimilarity(t *testing.T) {
	goal := []float64{0.25, 0.25, 0.5}
	assert.InDelta(t, 1, Similarity([]float64{1, 1, 2}, goal), 1e-12)
	assert.Zero(t, Similarity([]float64{0, 0, 0}, goal))
	assert.Zero(t, Similarity([]float64{0, 0, 0}, []float64{1, 0, 0}))
	assert.Less(t, Similarity([]float64{5, 0, 0}, goal), 1.0)
}

func TestSizeDistributionErrorIsTentative(t *testing.T) {
	p := testPhase(models.Ellipsoid)
	d := NewSizeDistribution([]models.FillablePhase{{ID: 1, Fraction: 1, Stats: p}})
	f := &models.Feature{Phase: 1, EquivalentDiameter: 5}

	first := d.Error(f)
	assert.Positive(t, first)
	assert.Equal(t, first, d.Error(f))

	d.Add(f)
	other := &models.Feature{Phase: 2, EquivalentDiameter: 5}
	assert.Equal(t, first, d.Error(other))
}

func TestNeighborhoodError(t *testing.T) {
	p := testPhase(models.Ellipsoid)
	d := NewNeighborhoodDistribution([]models.FillablePhase{{ID: 1, Fraction: 1, Stats: p}})

	table := models.NewFeatureTable(2)
	assert.Zero(t, d.Error(table))

	table.Append(models.Feature{Phase: 1, EquivalentDiameter: 5, Neighborhood: 7})
	table.Append(models.Feature{Phase: 1, EquivalentDiameter: 5, Neighborhood: 8})
	e := d.Error(table)
	assert.Positive(t, e)
	assert.LessOrEqual(t, e, 1.0)

	table.Get(1).Neighborhood = 39
	table.Get(2).Neighborhood = 39
	assert.Less(t, d.Error(table), e)
}

func TestEstimateFeatureCount(t *testing.T) {
	p := testPhase(models.Ellipsoid)
	g := models.Geometry{Dims: [3]int{32, 32, 32}, Spacing: [3]float64{1, 1, 1}}
	n := EstimateFeatureCount(g, []models.FillablePhase{{ID: 1, Fraction: 1, Stats: p}}, rand.New(rand.NewSource(3)))

	// Diameters near e^1.6 ~ 5 fill 32768 units with a few hundred spheres
	assert.Greater(t, n, 100)
	assert.Less(t, n, 2000)

	assert.Equal(t, 1, EstimateFeatureCount(models.Geometry{}, nil, rand.New(rand.NewSource(1))))
}

func BenchmarkSample(b *testing.B) {
	s := NewSampler(1, testPhase(models.SuperEllipsoid))
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < b.N; i++ {
		s.Sample(rng)
	}
}
