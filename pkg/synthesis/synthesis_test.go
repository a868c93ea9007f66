package synthesis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foamsynth/internal/models"
	"foamsynth/pkg/config"
	"foamsynth/pkg/struts"
)

func smallPhase() models.PhaseStats {
	p := config.DefaultPhase()
	p.FeatureSize = models.LogNormalParams{Mu: 1.5, Sigma: 0.1}
	p.MinCutOff, p.MaxCutOff, p.BinStepSize = 3, 3, 0.5
	p.BOverA, p.COverA, p.Omega3, p.Neighborhood = nil, nil, nil, nil
	for i := 0; i < p.NumBins(); i++ {
		p.BOverA = append(p.BOverA, models.BetaParams{Alpha: 15, Beta: 2})
		p.COverA = append(p.COverA, models.BetaParams{Alpha: 15, Beta: 2})
		p.Omega3 = append(p.Omega3, models.BetaParams{Alpha: 10, Beta: 1.5})
		p.Neighborhood = append(p.Neighborhood, models.LogNormalParams{Mu: 2, Sigma: 0.3})
	}
	return p
}

func smallParams(cores int) *Params {
	return &Params{
		Geometry: models.Geometry{Dims: [3]int{16, 16, 16}, Spacing: [3]float64{1, 1, 1}},
		Ensemble: models.Ensemble{Phases: []models.PhaseStats{smallPhase()}},
		Seed:     11,
		Struts:   config.DefaultConfig().Struts,
		NumCores: cores,
	}
}

// halves returns a 4x4x4 grid split along x into features 1 and 2
func halves() (models.Geometry, []int32) {
	g := models.Geometry{Dims: [3]int{4, 4, 4}, Spacing: [3]float64{1, 1, 1}}
	ids := make([]int32, g.NumVoxels())
	for i := range ids {
		if x, _, _ := g.Coords(i); x < 2 {
			ids[i] = 1
		} else {
			ids[i] = 2
		}
	}
	return g, ids
}

func TestProcessEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping full synthesis in short mode")
	}
	dir := t.TempDir()
	p := smallParams(4)
	p.CsvFile = filepath.Join(dir, "goal.csv")
	p.TraceFile = filepath.Join(dir, "trace.txt")
	p.ChartsDir = filepath.Join(dir, "charts")
	p.SlicesDir = filepath.Join(dir, "slices")
	p.StlFile = filepath.Join(dir, "struts.stl")
	p.IdsFile = filepath.Join(dir, "ids.raw")

	s := NewSynthesizer(p)
	require.NoError(t, s.Process(context.Background()))

	m := s.GetMetrics()
	assert.Equal(t, uint64(11), m.Seed)
	assert.Positive(t, m.Generated)
	assert.GreaterOrEqual(t, m.Candidates, m.Generated)
	assert.Equal(t, m.Generated-m.Pruned, m.Features)
	assert.Equal(t, s.GetFeatures().Count(), m.Features)
	assert.Positive(t, m.BoundaryVoxels)
	assert.Len(t, m.StageTimes, 8)
	assert.Equal(t, []string{"", "cells"}, m.PhaseNames)
	assert.NotEmpty(t, s.GetTrace())

	vol := s.GetVolume()
	for i, id := range vol.FeatureIds {
		require.GreaterOrEqual(t, id, int32(0))
		require.LessOrEqual(t, int(id), m.Features)
		switch {
		case vol.Mask[i]:
			require.Equal(t, models.Background, id)
		case id > 0:
			require.Equal(t, s.GetFeatures().Get(id).Phase, vol.CellPhases[i], "voxel %d", i)
		default:
			require.Equal(t, int32(0), vol.CellPhases[i], "voxel %d", i)
		}
	}

	for _, name := range []string{
		"goal.csv", "trace.txt", "struts.stl", "ids.raw",
		filepath.Join("charts", "filling_error.png"),
		filepath.Join("charts", "size_distribution.png"),
		filepath.Join("slices", "labels", "z", "labels_z_000.tif"),
		filepath.Join("slices", "struts", "x", "struts_x_015.tif"),
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	f, err := os.Open(p.CsvFile)
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	assert.Equal(t, strconv.Itoa(m.Features), sc.Text())

	ids, err := LoadFeatureIds(p.IdsFile, p.Geometry)
	require.NoError(t, err)
	if diff := cmp.Diff(vol.FeatureIds, ids); diff != "" {
		t.Errorf("saved feature ids differ (-volume +file):\n%s", diff)
	}
}

func TestProcessSerialMatchesPool(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping full synthesis in short mode")
	}
	a := NewSynthesizer(smallParams(1))
	require.NoError(t, a.Process(context.Background()))
	b := NewSynthesizer(smallParams(4))
	require.NoError(t, b.Process(context.Background()))

	assert.NotEqual(t, a.GetMetrics().RunID, b.GetMetrics().RunID)
	if diff := cmp.Diff(a.GetVolume().FeatureIds, b.GetVolume().FeatureIds); diff != "" {
		t.Errorf("feature ids differ (-serial +pool):\n%s", diff)
	}
	if diff := cmp.Diff(a.GetVolume().Mask, b.GetVolume().Mask); diff != "" {
		t.Errorf("strut mask differs (-serial +pool):\n%s", diff)
	}
}

func TestHaveFeatures(t *testing.T) {
	g, ids := halves()
	path := filepath.Join(t.TempDir(), "in", "ids.raw")
	require.NoError(t, SaveFeatureIds(path, ids))
	loaded, err := LoadFeatureIds(path, g)
	require.NoError(t, err)
	require.Equal(t, ids, loaded)

	s := NewSynthesizer(&Params{
		Geometry:   g,
		FeatureIds: loaded,
		Struts:     config.DefaultConfig().Struts,
		NumCores:   2,
	})
	require.NoError(t, s.Process(context.Background()))

	m := s.GetMetrics()
	var stages []string
	for _, st := range m.StageTimes {
		stages = append(stages, st.Name)
	}
	assert.Equal(t, []string{"load features", "distance transform", "form struts", "finalize", "write outputs"}, stages)

	table := s.GetFeatures()
	require.Equal(t, 2, table.Count())
	assert.Equal(t, 32.0, table.Get(1).Volume)
	assert.InDelta(t, 1.0, table.Get(1).Centroid.X, 1e-12)
	assert.InDelta(t, 3.0, table.Get(2).Centroid.X, 1e-12)
	assert.InDelta(t, 2.0, table.Get(2).Centroid.Y, 1e-12)
	assert.Equal(t, 32, m.BoundaryVoxels)
	assert.Zero(t, m.TripleJunctionVoxels)

	// Without triple junctions every voxel is thinner than the minimum strut
	assert.Equal(t, g.NumVoxels(), m.VoidVoxels)
	for _, id := range s.GetVolume().FeatureIds {
		assert.Equal(t, models.Background, id)
	}
}

func TestHaveFeaturesClearsUnassigned(t *testing.T) {
	g, ids := halves()
	ids[0] = models.Unassigned
	s := NewSynthesizer(&Params{
		Geometry:   g,
		FeatureIds: ids,
		Struts:     struts0(),
	})
	require.NoError(t, s.Process(context.Background()))
	assert.Equal(t, models.Background, s.GetVolume().FeatureIds[0])
	assert.Equal(t, int32(1), s.GetVolume().FeatureIds[g.Index(1, 1, 1)])
}

func TestStatusCodes(t *testing.T) {
	g, ids := halves()
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	badShape := smallParams(1)
	badShape.Ensemble.Phases[0].Shape = models.ShapeType(9)

	cases := []struct {
		name   string
		params *Params
		code   int
		stage  string
	}{
		{"empty ensemble", &Params{Geometry: g}, CodeEnsemble, "validate"},
		{"undefined shape", badShape, CodeShapeClass, "validate"},
		{"bad geometry", &Params{Geometry: models.Geometry{Dims: [3]int{0, 4, 4}, Spacing: [3]float64{1, 1, 1}}}, CodeConfig, "validate"},
		{"short grid", &Params{Geometry: g, FeatureIds: ids[:10]}, CodeConfig, "validate"},
		{"unwritable csv", &Params{Geometry: g, FeatureIds: ids, Struts: struts0(), CsvFile: filepath.Join(blocker, "goal.csv")}, CodeOutput, "write outputs"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewSynthesizer(tc.params).Process(context.Background())
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.code, se.Code)
			assert.Equal(t, tc.stage, se.Stage)
			assert.Contains(t, err.Error(), fmt.Sprintf("code %d", tc.code))
		})
	}
}

func TestStatusCodeMapping(t *testing.T) {
	assert.Equal(t, CodeResource, statusCode(fmt.Errorf("prune: %w", models.ErrTableSize)))
	assert.Equal(t, CodeEnsemble, statusCode(fmt.Errorf("x: %w", models.ErrEnsemble)))
	assert.Equal(t, CodeOutput, statusCode(fmt.Errorf("%w: disk full", ErrOutput)))
	assert.Equal(t, CodeConfig, statusCode(errors.New("anything else")))

	inner := &StatusError{Code: CodeShapeClass, Stage: "pack features", Err: models.ErrShapeClass}
	assert.Same(t, inner, fail("outer", inner))
}

func TestProcessCancelled(t *testing.T) {
	g, ids := halves()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSynthesizer(&Params{Geometry: g, FeatureIds: ids})
	err := s.Process(ctx)
	require.ErrorIs(t, err, context.Canceled)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
	assert.Empty(t, s.GetMetrics().StageTimes)
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Output.Dir = dir
	cfg.Output.WriteGoalAttributes = true
	cfg.Output.ExtractSlices = true
	cfg.Synthesis.Seed = 5

	p, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "goal_attributes.csv"), p.CsvFile)
	assert.Equal(t, filepath.Join(dir, "slices"), p.SlicesDir)
	assert.Empty(t, p.ChartsDir)
	assert.Empty(t, p.StlFile)
	assert.False(t, p.HaveFeatures())
	assert.Equal(t, uint64(5), p.Seed)

	cfg.Synthesis.HaveFeatures = true
	cfg.Synthesis.FeatureIdsFile = filepath.Join(dir, "missing.raw")
	_, err = FromConfig(cfg)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeConfig, se.Code)

	cfg = config.DefaultConfig()
	cfg.Ensemble.Phases = nil
	_, err = FromConfig(cfg)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeEnsemble, se.Code)
}

func TestLoadFeatureIdsSizeMismatch(t *testing.T) {
	g, ids := halves()
	path := filepath.Join(t.TempDir(), "ids.raw")
	require.NoError(t, SaveFeatureIds(path, ids[:20]))
	_, err := LoadFeatureIds(path, g)
	assert.ErrorIs(t, err, ErrConfig)
}

// struts0 keeps every voxel of a grid without quadruple points
func struts0() struts.Thresholds {
	return struts.Thresholds{MinThickness: -2}
}
