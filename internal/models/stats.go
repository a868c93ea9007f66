package models

import (
	"errors"
	"fmt"
	"math"
)

// ErrEnsemble is returned when ensemble statistics cannot drive a synthesis
var ErrEnsemble = errors.New("invalid ensemble statistics")

// ErrShapeClass is returned when a phase names a shape class that does not
// exist
var ErrShapeClass = errors.New("undefined shape class")

// PhaseType tags how a phase takes part in the synthesis
type PhaseType int

const (
	PrimaryPhase PhaseType = iota
	PrecipitatePhase
	MatrixPhase
	BoundaryPhase
)

var phaseTypeNames = []string{"primary", "precipitate", "matrix", "boundary"}

func (p PhaseType) String() string {
	if p < 0 || int(p) >= len(phaseTypeNames) {
		return fmt.Sprintf("PhaseType(%d)", int(p))
	}
	return phaseTypeNames[p]
}

// MarshalYAML writes the phase type by name
func (p PhaseType) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// UnmarshalYAML reads the phase type by name
func (p *PhaseType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	for i, name := range phaseTypeNames {
		if name == s {
			*p = PhaseType(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown phase type %q", ErrEnsemble, s)
}

// ShapeType selects the insideness function used to rasterize a feature
type ShapeType int

const (
	Ellipsoid ShapeType = iota
	SuperEllipsoid
	CubeOctahedron
	Cylinder
)

var shapeTypeNames = []string{"ellipsoid", "superellipsoid", "cubeoctahedron", "cylinder"}

func (s ShapeType) String() string {
	if s < 0 || int(s) >= len(shapeTypeNames) {
		return fmt.Sprintf("ShapeType(%d)", int(s))
	}
	return shapeTypeNames[s]
}

// MarshalYAML writes the shape type by name
func (s ShapeType) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML reads the shape type by name
func (s *ShapeType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	for i, n := range shapeTypeNames {
		if n == name {
			*s = ShapeType(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown shape type %q", ErrEnsemble, name)
}

// BetaParams are the two shape parameters of a beta distribution
type BetaParams struct {
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
}

// Degenerate reports whether either parameter is zero or negative
func (b BetaParams) Degenerate() bool {
	return b.Alpha <= 0 || b.Beta <= 0
}

// LogNormalParams are the mean and standard deviation of the log of a value
type LogNormalParams struct {
	Mu    float64 `yaml:"mu"`
	Sigma float64 `yaml:"sigma"`
}

// PhaseStats holds the target statistics of one phase
type PhaseStats struct {
	Name          string    `yaml:"name"`
	Type          PhaseType `yaml:"type"`
	Shape         ShapeType `yaml:"shape"`
	PhaseFraction float64   `yaml:"phaseFraction"`

	// FeatureSize is the log-normal distribution of equivalent diameters
	FeatureSize LogNormalParams `yaml:"featureSize"`

	// MinCutOff and MaxCutOff bound diameters to exp(mu -/+ cutoff*sigma)
	MinCutOff float64 `yaml:"minCutOff"`
	MaxCutOff float64 `yaml:"maxCutOff"`

	// BinStepSize is the width of a diameter bin
	BinStepSize float64 `yaml:"binStepSize"`

	// Per diameter bin distributions
	BOverA       []BetaParams      `yaml:"bOverA"`
	COverA       []BetaParams      `yaml:"cOverA"`
	Omega3       []BetaParams      `yaml:"omega3"`
	Neighborhood []LogNormalParams `yaml:"neighborhood"`

	// AxisODF is the discretized axis orientation distribution. Its length
	// must be a perfect cube; empty means uniform orientations.
	AxisODF []float64 `yaml:"axisODF,omitempty"`
}

// MinDiameter is the smallest diameter the phase may produce
func (p *PhaseStats) MinDiameter() float64 {
	return math.Exp(p.FeatureSize.Mu - p.MinCutOff*p.FeatureSize.Sigma)
}

// MaxDiameter is the exclusive upper bound on diameters
func (p *PhaseStats) MaxDiameter() float64 {
	return math.Exp(p.FeatureSize.Mu + p.MaxCutOff*p.FeatureSize.Sigma)
}

// NumBins returns the number of diameter bins covering [min, max)
func (p *PhaseStats) NumBins() int {
	if p.BinStepSize <= 0 {
		return 1
	}
	return int((p.MaxDiameter()-p.MinDiameter())/p.BinStepSize) + 1
}

// DiameterBin maps a diameter onto its bin, clamped to the table
func (p *PhaseStats) DiameterBin(d float64) int {
	if p.BinStepSize <= 0 {
		return 0
	}
	bin := int((d - p.MinDiameter()) / p.BinStepSize)
	if bin < 0 {
		bin = 0
	}
	if n := p.NumBins(); bin >= n {
		bin = n - 1
	}
	return bin
}

// Ensemble is the set of phases of a run. Phase ids start at 1 and follow
// the order of Phases.
type Ensemble struct {
	Phases []PhaseStats `yaml:"phases"`
}

// Phase returns the statistics of the phase with the given id
func (e *Ensemble) Phase(id int32) *PhaseStats {
	if id < 1 || int(id) > len(e.Phases) {
		return nil
	}
	return &e.Phases[id-1]
}

// FillablePhase is a phase that the optimizer generates features for,
// with its fraction normalized over all fillable phases
type FillablePhase struct {
	ID       int32
	Fraction float64
	Stats    *PhaseStats
}

// FillablePhases returns the precipitate phases with normalized fractions
func (e *Ensemble) FillablePhases() []FillablePhase {
	var out []FillablePhase
	total := 0.0
	for i := range e.Phases {
		if e.Phases[i].Type != PrecipitatePhase {
			continue
		}
		out = append(out, FillablePhase{ID: int32(i + 1), Fraction: e.Phases[i].PhaseFraction, Stats: &e.Phases[i]})
		total += e.Phases[i].PhaseFraction
	}
	if total > 0 {
		for i := range out {
			out[i].Fraction /= total
		}
	}
	return out
}

// Validate checks that the ensemble can drive generation
func (e *Ensemble) Validate() error {
	if len(e.Phases) == 0 {
		return fmt.Errorf("%w: no phases", ErrEnsemble)
	}
	fillable := e.FillablePhases()
	if len(fillable) == 0 {
		return fmt.Errorf("%w: no precipitate phases to fill", ErrEnsemble)
	}
	total := 0.0
	for _, fp := range fillable {
		total += fp.Stats.PhaseFraction
	}
	if total <= 0 {
		return fmt.Errorf("%w: precipitate phase fractions sum to %g", ErrEnsemble, total)
	}

	for _, fp := range fillable {
		p := fp.Stats
		if p.Shape < Ellipsoid || p.Shape > Cylinder {
			return fmt.Errorf("%w: phase %d has shape %v", ErrShapeClass, fp.ID, p.Shape)
		}
		if p.FeatureSize.Sigma <= 0 {
			return fmt.Errorf("%w: phase %d has non-positive size sigma", ErrEnsemble, fp.ID)
		}
		if p.BinStepSize <= 0 {
			return fmt.Errorf("%w: phase %d has non-positive bin step", ErrEnsemble, fp.ID)
		}
		if p.MaxDiameter() <= p.MinDiameter() {
			return fmt.Errorf("%w: phase %d has empty diameter range", ErrEnsemble, fp.ID)
		}
		n := p.NumBins()
		if len(p.BOverA) != n || len(p.COverA) != n || len(p.Omega3) != n {
			return fmt.Errorf("%w: phase %d needs %d diameter bins of shape statistics", ErrEnsemble, fp.ID, n)
		}
		if len(p.Neighborhood) != 0 && len(p.Neighborhood) != n {
			return fmt.Errorf("%w: phase %d needs %d neighborhood bins", ErrEnsemble, fp.ID, n)
		}
		if m := len(p.AxisODF); m > 0 {
			k := int(math.Round(math.Cbrt(float64(m))))
			if k*k*k != m {
				return fmt.Errorf("%w: phase %d axis ODF length %d is not a cube", ErrEnsemble, fp.ID, m)
			}
		}
	}
	return nil
}
