// Package synthesis runs the foam synthesis pipeline: feature generation,
// packing, rasterization, gap filling, the distance transform and strut
// formation, followed by the optional outputs.
package synthesis

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"foamsynth/internal/logging"
	"foamsynth/internal/models"
	"foamsynth/pkg/distance"
	"foamsynth/pkg/export"
	"foamsynth/pkg/packing"
	"foamsynth/pkg/parallel"
	"foamsynth/pkg/raster"
	"foamsynth/pkg/report"
	"foamsynth/pkg/stats"
	"foamsynth/pkg/stl"
	"foamsynth/pkg/struts"
	"foamsynth/pkg/visualization"
)

// SynthesisMetrics holds what a run measured along the way
type SynthesisMetrics struct {
	// RunID identifies the run in logs and results
	RunID uuid.UUID

	// Seed is the seed the random sequence started from
	Seed uint64

	// Candidates is the number of features drawn during generation
	Candidates int

	// Generated is the number of features accepted during generation
	Generated int

	// SizeError is the size-distribution similarity after generation.
	// Higher is closer to the goal.
	SizeError float64

	// NeighborhoodError is the neighbourhood-distribution similarity after
	// packing
	NeighborhoodError float64

	// FillingError, FreePoints and AcceptedMoves describe the packing grid
	// at the end of refinement
	FillingError  float64
	FreePoints    int
	AcceptedMoves int

	// Pruned is the number of features that claimed no voxel
	Pruned int

	// Features is the number of features in the final table
	Features int

	// PhaseFeatures holds the number of features per phase id
	PhaseFeatures []int

	// PhaseNames holds the name of every phase, indexed by phase id
	PhaseNames []string

	// GapSweeps and ForcedBackground describe the gap filler
	GapSweeps        int
	ForcedBackground int

	// BoundaryVoxels, TripleJunctionVoxels and QuadruplePointVoxels count
	// the seeds of each distance field
	BoundaryVoxels       int
	TripleJunctionVoxels int
	QuadruplePointVoxels int

	// VoidVoxels is the number of voxels removed by strut formation
	VoidVoxels int

	// StageTimes records how long each completed stage took
	StageTimes []StageTime
}

// StageTime is the duration of one pipeline stage
type StageTime struct {
	Name     string
	Duration time.Duration
}

// Synthesizer runs one synthesis. The volume and feature table it builds
// are owned by the synthesizer until Process returns.
type Synthesizer struct {
	params *Params
	exec   parallel.Executor
	seeds  *stats.SeedSequence

	vol    *models.Volume
	table  *models.FeatureTable
	phases []models.FillablePhase
	trace  []packing.TraceEntry

	// packingPoints is the number of packing grid points, for the trace chart
	packingPoints int

	metrics SynthesisMetrics
}

// NewSynthesizer creates a synthesizer for the given parameters
func NewSynthesizer(params *Params) *Synthesizer {
	seed := params.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	s := &Synthesizer{
		params: params,
		exec:   parallel.New(params.NumCores),
		seeds:  stats.NewSeedSequence(seed),
	}
	s.metrics.RunID = uuid.New()
	s.metrics.Seed = seed
	return s
}

type stage struct {
	name string
	run  func() error
}

// Process runs the complete pipeline. Cancellation of ctx is checked
// between stages; a stage that has started always runs to completion.
func (s *Synthesizer) Process(ctx context.Context) error {
	log := logging.Logger().With("run", s.metrics.RunID.String())

	if err := s.validate(); err != nil {
		return fail("validate", err)
	}

	var stages []stage
	if s.params.HaveFeatures() {
		stages = append(stages, stage{"load features", s.loadFeatures})
	} else {
		stages = append(stages,
			stage{"generate features", s.generateFeatures},
			stage{"pack features", s.packFeatures},
			stage{"assign voxels", s.assignVoxels},
			stage{"fill gaps", s.fillGaps},
		)
	}
	stages = append(stages,
		stage{"distance transform", s.distanceTransform},
		stage{"form struts", s.formStruts},
		stage{"finalize", s.finalize},
		stage{"write outputs", s.writeOutputs},
	)

	start := time.Now()
	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("synthesis cancelled before %s: %w", st.name, err)
		}
		log.Info("stage started", "step", i+1, "stage", st.name)
		t := time.Now()
		if err := st.run(); err != nil {
			return fail(st.name, err)
		}
		s.metrics.StageTimes = append(s.metrics.StageTimes, StageTime{Name: st.name, Duration: time.Since(t)})
	}

	log.Info("synthesis complete",
		"features", s.metrics.Features,
		"void_voxels", s.metrics.VoidVoxels,
		"elapsed", time.Since(start))
	return nil
}

// validate checks the inputs once before any stage runs
func (s *Synthesizer) validate() error {
	g := s.params.Geometry
	for i := 0; i < 3; i++ {
		if g.Dims[i] <= 0 || g.Spacing[i] <= 0 {
			return fmt.Errorf("%w: volume dims %v spacing %v", ErrConfig, g.Dims, g.Spacing)
		}
	}
	if s.params.HaveFeatures() {
		if len(s.params.FeatureIds) != g.NumVoxels() {
			return fmt.Errorf("%w: %d feature ids for %d voxels", ErrConfig, len(s.params.FeatureIds), g.NumVoxels())
		}
		return nil
	}
	return s.params.Ensemble.Validate()
}

func (s *Synthesizer) shapeOf(phase int32) models.ShapeType {
	if p := s.params.Ensemble.Phase(phase); p != nil {
		return p.Shape
	}
	return models.Ellipsoid
}

func (s *Synthesizer) generateFeatures() error {
	g := s.params.Geometry
	s.phases = s.params.Ensemble.FillablePhases()
	size := g.Size()

	table, st := packing.Generate(g, s.phases, size[0]*size[1]*size[2], s.params.Periodic, s.seeds)
	if table.Count() == 0 {
		return fmt.Errorf("%w: generation produced no features", models.ErrEnsemble)
	}
	s.table = table
	s.metrics.Candidates = st.Candidates
	s.metrics.Generated = st.Accepted
	s.metrics.SizeError = st.SizeError
	return nil
}

func (s *Synthesizer) packFeatures() error {
	opt, err := packing.NewOptimizer(s.params.Geometry, s.params.Periodic, s.table, s.shapeOf, s.seeds.Next())
	if err != nil {
		return err
	}
	opt.Place()
	opt.Refine()

	packing.CountNeighborhoods(s.table)
	s.metrics.NeighborhoodError = stats.NewNeighborhoodDistribution(s.phases).Error(s.table)
	s.metrics.FillingError = opt.FillingError()
	s.metrics.FreePoints = opt.FreePoints()
	s.metrics.AcceptedMoves = opt.Accepted()
	s.trace = opt.Trace()
	s.packingPoints = opt.Grid().Total()
	return nil
}

func (s *Synthesizer) assignVoxels() error {
	s.vol = models.NewVolume(s.params.Geometry)
	res, err := raster.NewRasterizer(s.vol, s.table, s.shapeOf, s.params.Periodic, s.exec).Run()
	if err != nil {
		return err
	}
	s.metrics.Pruned = res.Removed
	s.metrics.PhaseFeatures = res.PhaseCounts
	return nil
}

func (s *Synthesizer) fillGaps() error {
	res, err := raster.NewGapFiller(s.params.MaxGapSweeps, s.exec).Fill(s.vol, s.table)
	if err != nil {
		return err
	}
	s.metrics.GapSweeps = res.Sweeps
	s.metrics.ForcedBackground = res.Forced
	return nil
}

// loadFeatures wraps the supplied grid and measures a feature record for
// every id in it
func (s *Synthesizer) loadFeatures() error {
	s.vol = models.NewVolumeFromFeatureIds(s.params.Geometry, s.params.FeatureIds)
	table, err := measureFeatures(s.vol)
	if err != nil {
		return err
	}
	s.table = table
	return nil
}

func (s *Synthesizer) distanceTransform() error {
	st, err := distance.NewTransform(s.exec).Run(s.vol)
	if err != nil {
		return err
	}
	s.metrics.BoundaryVoxels = st.Seeds[distance.Boundary]
	s.metrics.TripleJunctionVoxels = st.Seeds[distance.TripleJunction]
	s.metrics.QuadruplePointVoxels = st.Seeds[distance.QuadruplePoint]
	return nil
}

func (s *Synthesizer) formStruts() error {
	n, err := struts.Form(s.vol, s.params.Struts, s.exec)
	if err != nil {
		return err
	}
	s.metrics.VoidVoxels = n
	return nil
}

// finalize turns any id still unassigned into background and records the
// final feature counts
func (s *Synthesizer) finalize() error {
	for i, id := range s.vol.FeatureIds {
		if id < 0 {
			s.vol.FeatureIds[i] = models.Background
			s.vol.CellPhases[i] = 0
		}
	}
	s.metrics.Features = s.table.Count()
	s.metrics.PhaseNames = make([]string, len(s.params.Ensemble.Phases)+1)
	for i, p := range s.params.Ensemble.Phases {
		s.metrics.PhaseNames[i+1] = p.Name
	}
	return nil
}

func (s *Synthesizer) writeOutputs() error {
	p := s.params
	if p.CsvFile != "" {
		if err := export.SaveGoalAttributes(p.CsvFile, s.table); err != nil {
			return fmt.Errorf("%w: %w", ErrOutput, err)
		}
	}
	if p.TraceFile != "" {
		if err := report.SaveTrace(p.TraceFile, s.trace); err != nil {
			return fmt.Errorf("%w: %w", ErrOutput, err)
		}
	}
	if p.ChartsDir != "" {
		if err := s.saveCharts(p.ChartsDir); err != nil {
			return fmt.Errorf("%w: %w", ErrOutput, err)
		}
	}
	if p.SlicesDir != "" {
		viewer := visualization.NewViewer(s.vol)
		for _, axis := range []string{"x", "y", "z"} {
			if err := viewer.SaveSliceSequence(visualization.Labels, axis, filepath.Join(p.SlicesDir, "labels", axis)); err != nil {
				return fmt.Errorf("%w: %w", ErrOutput, err)
			}
			if err := viewer.SaveSliceSequence(visualization.Struts, axis, filepath.Join(p.SlicesDir, "struts", axis)); err != nil {
				return fmt.Errorf("%w: %w", ErrOutput, err)
			}
		}
	}
	if p.StlFile != "" {
		solid := make([]bool, s.vol.NumVoxels())
		for i, id := range s.vol.FeatureIds {
			solid[i] = id > 0
		}
		triangles := stl.NewMesher(solid, s.vol.Geometry).GenerateTriangles()
		if err := stl.SaveToSTL(p.StlFile, triangles); err != nil {
			return fmt.Errorf("%w: %w", ErrOutput, err)
		}
		logging.Logger().Info("surface written", "triangles", len(triangles), "path", p.StlFile)
	}
	if p.IdsFile != "" {
		if err := SaveFeatureIds(p.IdsFile, s.vol.FeatureIds); err != nil {
			return err
		}
	}
	return nil
}

// saveCharts writes the refinement and size distribution charts. Runs that
// start from an existing grid have neither.
func (s *Synthesizer) saveCharts(dir string) error {
	if s.params.HaveFeatures() {
		return nil
	}
	if len(s.trace) > 0 {
		c, err := report.TraceChart(s.trace, s.packingPoints)
		if err != nil {
			return err
		}
		if err := report.Save(c, filepath.Join(dir, "filling_error.png")); err != nil {
			return err
		}
	}
	c, err := report.SizeChart(s.table, s.phases)
	if err != nil {
		return err
	}
	return report.Save(c, filepath.Join(dir, "size_distribution.png"))
}

// measureFeatures builds a feature table from a labelled grid: one record
// per id up to the largest, with the voxel volume, equivalent diameter and
// centroid of its voxels
func measureFeatures(vol *models.Volume) (*models.FeatureTable, error) {
	maxID := int32(0)
	for _, id := range vol.FeatureIds {
		if id > maxID {
			maxID = id
		}
	}
	counts := raster.VoxelCounts(vol, int(maxID))
	sums := make([]r3.Vec, maxID+1)
	for i, id := range vol.FeatureIds {
		if id <= 0 {
			continue
		}
		x, y, z := vol.Coords(i)
		sums[id] = r3.Add(sums[id], r3.Vec{
			X: (float64(x) + 0.5) * vol.Spacing[0],
			Y: (float64(y) + 0.5) * vol.Spacing[1],
			Z: (float64(z) + 0.5) * vol.Spacing[2],
		})
	}

	table := models.NewFeatureTable(int(maxID))
	for id := int32(1); id <= maxID; id++ {
		f := models.Feature{AxisLengths: [3]float64{1, 1, 1}, Omega3: 1}
		if n := counts[id]; n > 0 {
			f.Volume = float64(n) * vol.VoxelVolume()
			f.EquivalentDiameter = math.Cbrt(6 * f.Volume / math.Pi)
			f.Centroid = r3.Scale(1/float64(n), sums[id])
		}
		if got := table.Append(f); got != id {
			return nil, fmt.Errorf("%w: feature %d stored as %d", ErrResource, id, got)
		}
	}
	return table, nil
}

// GetMetrics returns the metrics of the last run
func (s *Synthesizer) GetMetrics() SynthesisMetrics {
	return s.metrics
}

// GetVolume returns the output grid after Process
func (s *Synthesizer) GetVolume() *models.Volume {
	return s.vol
}

// GetFeatures returns the final feature table after Process
func (s *Synthesizer) GetFeatures() *models.FeatureTable {
	return s.table
}

// GetTrace returns the refinement trace of the packing optimizer
func (s *Synthesizer) GetTrace() []packing.TraceEntry {
	return s.trace
}
