package synthesis

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"foamsynth/internal/models"
	"foamsynth/pkg/config"
	"foamsynth/pkg/struts"
)

// Params holds everything a synthesis run reads
type Params struct {
	// Geometry is the output grid
	Geometry models.Geometry

	// Ensemble holds the target statistics of every phase
	Ensemble models.Ensemble

	// Seed initializes the random sequence. 0 picks a time-based seed.
	Seed uint64

	// Periodic wraps features across the domain faces
	Periodic bool

	// FeatureIds, when set, is used as the labelled grid and the run skips
	// generation, packing, rasterization and gap filling
	FeatureIds []int32

	// Struts holds the strut formation thresholds
	Struts struts.Thresholds

	// MaxGapSweeps caps the gap filler; 0 means no cap
	MaxGapSweeps int

	// NumCores specifies how many CPU cores the parallel stages may use
	NumCores int

	// Output files. Empty paths are skipped.
	CsvFile   string
	TraceFile string
	ChartsDir string
	SlicesDir string
	StlFile   string
	IdsFile   string
}

// HaveFeatures reports whether the run starts from an existing labelled grid
func (p *Params) HaveFeatures() bool {
	return p.FeatureIds != nil
}

// FromConfig builds run parameters from a validated configuration. In
// haveFeatures mode the feature id grid is read from disk.
func FromConfig(cfg *config.Config) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fail("configuration", err)
	}
	p := &Params{
		Geometry:     cfg.Volume,
		Ensemble:     cfg.Ensemble,
		Seed:         cfg.Synthesis.Seed,
		Periodic:     cfg.Synthesis.PeriodicBoundaries,
		Struts:       cfg.Struts,
		MaxGapSweeps: cfg.Synthesis.MaxGapSweeps,
		NumCores:     cfg.Processing.NumCores,
		TraceFile:    cfg.OutputPath(cfg.Output.ErrorTraceFile),
		StlFile:      cfg.OutputPath(cfg.Output.StlFile),
		IdsFile:      cfg.OutputPath(cfg.Output.IdsFile),
	}
	if cfg.Output.WriteGoalAttributes {
		p.CsvFile = cfg.OutputPath(cfg.Output.CsvFile)
	}
	if cfg.Output.Charts {
		p.ChartsDir = cfg.Output.Dir
	}
	if cfg.Output.ExtractSlices {
		p.SlicesDir = cfg.OutputPath(cfg.Output.SlicesDir)
	}
	if cfg.Synthesis.HaveFeatures {
		ids, err := LoadFeatureIds(cfg.Synthesis.FeatureIdsFile, cfg.Volume)
		if err != nil {
			return nil, fail("configuration", err)
		}
		p.FeatureIds = ids
	}
	return p, nil
}

// LoadFeatureIds reads a raw grid of little-endian int32 feature ids, x
// fastest, sized for g
func LoadFeatureIds(path string, g models.Geometry) ([]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: error opening feature ids: %v", ErrConfig, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: error reading feature ids: %v", ErrConfig, err)
	}
	n := g.NumVoxels()
	if info.Size() != int64(4*n) {
		return nil, fmt.Errorf("%w: feature ids file holds %d bytes, want %d for %v voxels", ErrConfig, info.Size(), 4*n, g.Dims)
	}

	ids := make([]int32, n)
	if err := binary.Read(bufio.NewReader(f), binary.LittleEndian, ids); err != nil {
		return nil, fmt.Errorf("%w: error reading feature ids: %v", ErrConfig, err)
	}
	return ids, nil
}

// SaveFeatureIds writes the grid in the format LoadFeatureIds reads
func SaveFeatureIds(path string, ids []int32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, ids); err != nil {
		f.Close()
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	return f.Close()
}
