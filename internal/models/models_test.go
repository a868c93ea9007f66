package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestGeometryIndexRoundTrip(t *testing.T) {
	g := Geometry{Dims: [3]int{4, 3, 2}, Spacing: [3]float64{1, 1, 1}}
	require.Equal(t, 24, g.NumVoxels())

	for i := 0; i < g.NumVoxels(); i++ {
		x, y, z := g.Coords(i)
		assert.Equal(t, i, g.Index(x, y, z))
	}
	assert.Equal(t, 1*4*3+2*4+3, g.Index(3, 2, 1))
}

func TestNewVolumeStartsUnassigned(t *testing.T) {
	v := NewVolume(Geometry{Dims: [3]int{2, 2, 2}, Spacing: [3]float64{0.5, 0.5, 0.5}})
	assert.Equal(t, 8, v.CountUnassigned())
	assert.InDelta(t, 0.125, v.VoxelVolume(), 1e-12)
	for i := range v.GBDistances {
		assert.Equal(t, float32(-1), v.QPDistances[i])
	}
}

func TestFeatureTableCompact(t *testing.T) {
	table := NewFeatureTable(3)
	for i := 0; i < 4; i++ {
		table.Append(Feature{Volume: float64(i + 1)})
	}
	require.Equal(t, 4, table.Count())

	active := NewBitset(table.Count() + 1)
	active.Set(2)
	active.Set(4)

	ids := []int32{0, 1, 2, 3, 4, -1}
	remap, err := table.Compact(active, ids)
	require.NoError(t, err)

	assert.Equal(t, 2, table.Count())
	assert.Equal(t, []int32{0, 0, 1, 0, 2}, remap)
	assert.Equal(t, []int32{0, 0, 1, 0, 2, -1}, ids)
	assert.Equal(t, 2.0, table.Get(1).Volume)
	assert.Equal(t, 4.0, table.Get(2).Volume)
	assert.Nil(t, table.Get(3))
}

func TestFeatureTableSizeErrors(t *testing.T) {
	table := NewFeatureTable(0)
	table.Append(Feature{})

	_, err := table.Compact(NewBitset(5), nil)
	assert.ErrorIs(t, err, ErrTableSize)
	assert.ErrorIs(t, table.Truncate(-1), ErrTableSize)
	assert.ErrorIs(t, table.Truncate(2), ErrTableSize)
	assert.NoError(t, table.Truncate(0))
	assert.Equal(t, 0, table.Count())
}

func testPhase() PhaseStats {
	p := PhaseStats{
		Name:          "pores",
		Type:          PrecipitatePhase,
		Shape:         Ellipsoid,
		PhaseFraction: 0.5,
		FeatureSize:   LogNormalParams{Mu: 1.5, Sigma: 0.2},
		MinCutOff:     3,
		MaxCutOff:     3,
		BinStepSize:   1,
	}
	n := p.NumBins()
	for i := 0; i < n; i++ {
		p.BOverA = append(p.BOverA, BetaParams{Alpha: 15, Beta: 2})
		p.COverA = append(p.COverA, BetaParams{Alpha: 15, Beta: 2})
		p.Omega3 = append(p.Omega3, BetaParams{Alpha: 10, Beta: 1.5})
	}
	return p
}

func TestEnsembleFillablePhases(t *testing.T) {
	e := Ensemble{Phases: []PhaseStats{
		{Name: "matrix", Type: PrimaryPhase, PhaseFraction: 0.5},
		testPhase(),
		testPhase(),
	}}
	e.Phases[2].PhaseFraction = 1.5

	fill := e.FillablePhases()
	require.Len(t, fill, 2)
	assert.Equal(t, int32(2), fill[0].ID)
	assert.Equal(t, int32(3), fill[1].ID)
	assert.InDelta(t, 0.25, fill[0].Fraction, 1e-12)
	assert.InDelta(t, 0.75, fill[1].Fraction, 1e-12)
	assert.NoError(t, e.Validate())
}

func TestEnsembleValidate(t *testing.T) {
	assert.ErrorIs(t, (&Ensemble{}).Validate(), ErrEnsemble)

	onlyPrimary := Ensemble{Phases: []PhaseStats{{Type: PrimaryPhase}}}
	assert.ErrorIs(t, onlyPrimary.Validate(), ErrEnsemble)

	short := Ensemble{Phases: []PhaseStats{testPhase()}}
	short.Phases[0].BOverA = short.Phases[0].BOverA[:1]
	assert.ErrorIs(t, short.Validate(), ErrEnsemble)

	badODF := Ensemble{Phases: []PhaseStats{testPhase()}}
	badODF.Phases[0].AxisODF = make([]float64, 10)
	assert.ErrorIs(t, badODF.Validate(), ErrEnsemble)

	badShape := Ensemble{Phases: []PhaseStats{testPhase()}}
	badShape.Phases[0].Shape = ShapeType(7)
	assert.ErrorIs(t, badShape.Validate(), ErrShapeClass)
}

func TestDiameterBinClamps(t *testing.T) {
	p := testPhase()
	assert.Equal(t, 0, p.DiameterBin(p.MinDiameter()-1))
	assert.Equal(t, p.NumBins()-1, p.DiameterBin(p.MaxDiameter()*10))
}

func TestTypesYAML(t *testing.T) {
	in := PhaseStats{Type: PrecipitatePhase, Shape: CubeOctahedron}
	data, err := yaml.Marshal(&in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "type: precipitate")
	assert.Contains(t, string(data), "shape: cubeoctahedron")

	var out PhaseStats
	require.NoError(t, yaml.Unmarshal(data, &out))
	assert.Equal(t, PrecipitatePhase, out.Type)
	assert.Equal(t, CubeOctahedron, out.Shape)

	assert.Error(t, yaml.Unmarshal([]byte("shape: sphere\n"), &out))
}
