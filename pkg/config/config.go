// Package config provides configuration loading and management for foamsynth.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"foamsynth/internal/models"
	"foamsynth/pkg/struts"
)

// ErrInvalid is returned by Validate for settings that cannot drive a run
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Volume is the geometry of the output grid
	Volume models.Geometry `yaml:"volume"`

	// Synthesis parameters
	Synthesis struct {
		// Seed initializes the random sequence; 0 picks a time-based seed
		Seed uint64 `yaml:"seed"`

		// PeriodicBoundaries wraps features across the domain faces
		PeriodicBoundaries bool `yaml:"periodicBoundaries"`

		// HaveFeatures skips generation, packing, rasterization and gap
		// filling and starts from the grid in FeatureIdsFile
		HaveFeatures bool `yaml:"haveFeatures"`

		// FeatureIdsFile holds little-endian int32 feature ids, x fastest
		FeatureIdsFile string `yaml:"featureIdsFile"`

		// MaxGapSweeps caps the gap filler; 0 means no cap
		MaxGapSweeps int `yaml:"maxGapSweeps"`
	} `yaml:"synthesis"`

	// Struts holds the strut formation thresholds
	Struts struts.Thresholds `yaml:"struts"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Dir is the directory every relative output path is resolved against
		Dir string `yaml:"dir"`

		// WriteGoalAttributes enables the per-feature CSV export
		WriteGoalAttributes bool `yaml:"writeGoalAttributes"`

		// CsvFile is the goal attribute CSV path
		CsvFile string `yaml:"csvFile"`

		// ErrorTraceFile, when set, receives the packing refinement trace
		ErrorTraceFile string `yaml:"errorTraceFile"`

		// Charts writes PNG charts of the refinement trace and size
		// distribution
		Charts bool `yaml:"charts"`

		// ExtractSlices saves TIFF slices of the result along every axis
		ExtractSlices bool `yaml:"extractSlices"`

		// SlicesDir is the directory for extracted slices
		SlicesDir string `yaml:"slicesDir"`

		// StlFile, when set, receives the surface of the strut network
		StlFile string `yaml:"stlFile"`

		// IdsFile, when set, receives the final feature id grid in the
		// format read by haveFeatures runs
		IdsFile string `yaml:"idsFile"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Ensemble holds the target statistics of every phase
	Ensemble models.Ensemble `yaml:"ensemble"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Volume = models.Geometry{
		Dims:    [3]int{64, 64, 64},
		Spacing: [3]float64{1, 1, 1},
	}

	cfg.Synthesis.Seed = 0
	cfg.Synthesis.PeriodicBoundaries = false
	cfg.Synthesis.HaveFeatures = false
	cfg.Synthesis.MaxGapSweeps = 0

	cfg.Struts = struts.Thresholds{
		MinThickness:         1.0,
		ThicknessVariability: 0.5,
		ShapeVariability:     0.5,
	}

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Output.Dir = "output"
	cfg.Output.WriteGoalAttributes = false
	cfg.Output.CsvFile = "goal_attributes.csv"
	cfg.Output.Charts = false
	cfg.Output.ExtractSlices = false
	cfg.Output.SlicesDir = "slices"
	cfg.Output.Verbose = false

	cfg.Ensemble = models.Ensemble{Phases: []models.PhaseStats{DefaultPhase()}}
	return cfg
}

// DefaultPhase returns an equiaxed ellipsoidal cell phase with a mean
// diameter of about ten voxels
func DefaultPhase() models.PhaseStats {
	p := models.PhaseStats{
		Name:          "cells",
		Type:          models.PrecipitatePhase,
		Shape:         models.Ellipsoid,
		PhaseFraction: 1,
		FeatureSize:   models.LogNormalParams{Mu: 2.3, Sigma: 0.2},
		MinCutOff:     5,
		MaxCutOff:     5,
		BinStepSize:   2,
	}
	for i := 0; i < p.NumBins(); i++ {
		p.BOverA = append(p.BOverA, models.BetaParams{Alpha: 15, Beta: 2})
		p.COverA = append(p.COverA, models.BetaParams{Alpha: 15, Beta: 2})
		p.Omega3 = append(p.Omega3, models.BetaParams{Alpha: 10, Beta: 1.5})
		p.Neighborhood = append(p.Neighborhood, models.LogNormalParams{Mu: 2.5, Sigma: 0.3})
	}
	return p
}

// Validate checks the settings a run needs before any stage starts.
// Ensemble problems are reported with the models sentinel errors.
func (c *Config) Validate() error {
	for i := 0; i < 3; i++ {
		if c.Volume.Dims[i] <= 0 {
			return fmt.Errorf("%w: volume dimension %d is %d", ErrInvalid, i, c.Volume.Dims[i])
		}
		if c.Volume.Spacing[i] <= 0 {
			return fmt.Errorf("%w: volume spacing %d is %g", ErrInvalid, i, c.Volume.Spacing[i])
		}
	}
	if c.Output.WriteGoalAttributes && c.Output.CsvFile == "" {
		return fmt.Errorf("%w: the csv output file must be set", ErrInvalid)
	}
	if c.Synthesis.MaxGapSweeps < 0 {
		return fmt.Errorf("%w: negative gap sweep cap", ErrInvalid)
	}
	if c.Synthesis.HaveFeatures {
		if c.Synthesis.FeatureIdsFile == "" {
			return fmt.Errorf("%w: haveFeatures needs a feature ids file", ErrInvalid)
		}
		return nil
	}
	return c.Ensemble.Validate()
}

// OutputPath resolves a configured output file against the output directory
func (c *Config) OutputPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Output.Dir, name)
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// A file that lists its own phases replaces the default ensemble
	cfg.Ensemble.Phases = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if len(cfg.Ensemble.Phases) == 0 {
		cfg.Ensemble = DefaultConfig().Ensemble
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
