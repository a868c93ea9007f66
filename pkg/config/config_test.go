package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foamsynth/internal/models"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1.0, cfg.Struts.MinThickness)
	assert.Equal(t, 0.5, cfg.Struts.ThicknessVariability)
	assert.Equal(t, 0.5, cfg.Struts.ShapeVariability)
	assert.False(t, cfg.Synthesis.PeriodicBoundaries)
	assert.False(t, cfg.Synthesis.HaveFeatures)
	assert.False(t, cfg.Output.WriteGoalAttributes)
	assert.Positive(t, cfg.Processing.NumCores)
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "foamsynth.yaml")
	cfg := DefaultConfig()
	cfg.Volume.Dims = [3]int{32, 40, 48}
	cfg.Synthesis.Seed = 99
	cfg.Synthesis.PeriodicBoundaries = true
	cfg.Ensemble.Phases[0].Shape = models.SuperEllipsoid
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Volume, loaded.Volume)
	assert.Equal(t, uint64(99), loaded.Synthesis.Seed)
	assert.True(t, loaded.Synthesis.PeriodicBoundaries)
	assert.Equal(t, cfg.Ensemble, loaded.Ensemble)
	require.NoError(t, loaded.Validate())
}

func TestLoadMissingConfigReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Volume, cfg.Volume)
}

func TestLoadPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := "volume:\n  dims: [16, 16, 8]\n  spacing: [1, 1, 2]\nstruts:\n  minStrutThickness: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, [3]int{16, 16, 8}, cfg.Volume.Dims)
	assert.Equal(t, 2.0, cfg.Struts.MinThickness)
	assert.Equal(t, 0.5, cfg.Struts.ShapeVariability)
	assert.Len(t, cfg.Ensemble.Phases, 1)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("volume: [oops"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Volume.Dims[1] = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)

	cfg = DefaultConfig()
	cfg.Output.WriteGoalAttributes = true
	cfg.Output.CsvFile = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)

	cfg = DefaultConfig()
	cfg.Synthesis.HaveFeatures = true
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
	cfg.Synthesis.FeatureIdsFile = "ids.raw"
	cfg.Ensemble.Phases = nil
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Ensemble.Phases = nil
	assert.ErrorIs(t, cfg.Validate(), models.ErrEnsemble)
}

func TestOutputPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Dir = "runs"
	assert.Equal(t, filepath.Join("runs", "a.csv"), cfg.OutputPath("a.csv"))
	assert.Equal(t, "/tmp/a.csv", cfg.OutputPath("/tmp/a.csv"))
	assert.Equal(t, "", cfg.OutputPath(""))
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Ensemble, cfg.Ensemble)
}
