// Package report writes diagnostics of a synthesis run: the refinement
// trace of the packing optimizer and charts comparing the generated
// features with their goal distributions.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"foamsynth/internal/models"
	"foamsynth/pkg/packing"
	"foamsynth/pkg/stats"
)

// ErrEmptyTrace is returned when charting a run that recorded no trace
var ErrEmptyTrace = errors.New("empty refinement trace")

// Chart dimensions
const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 5 * vg.Inch
)

// WriteTrace writes one line per trace entry: iteration, filling error,
// free points, features and accepted moves, separated by spaces
func WriteTrace(w io.Writer, trace []packing.TraceEntry) error {
	bw := bufio.NewWriter(w)
	for _, e := range trace {
		if _, err := fmt.Fprintf(bw, "%d %g %d %d %d\n", e.Iteration, e.FillingError, e.FreePoints, e.Features, e.Accepted); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveTrace writes the trace to a file, creating its parent directory
func SaveTrace(path string, trace []packing.TraceEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating trace file: %w", err)
	}
	if err := WriteTrace(f, trace); err != nil {
		f.Close()
		return fmt.Errorf("error writing trace file: %w", err)
	}
	return f.Close()
}

// TraceChart plots the filling error and the free point fraction against
// the refinement iteration
func TraceChart(trace []packing.TraceEntry, totalPoints int) (*plot.Plot, error) {
	if len(trace) == 0 {
		return nil, ErrEmptyTrace
	}
	p := plot.New()
	p.Title.Text = "Packing refinement"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Fraction"

	errPts := make(plotter.XYs, len(trace))
	freePts := make(plotter.XYs, len(trace))
	for i, e := range trace {
		errPts[i] = plotter.XY{X: float64(e.Iteration), Y: e.FillingError}
		free := 0.0
		if totalPoints > 0 {
			free = float64(e.FreePoints) / float64(totalPoints)
		}
		freePts[i] = plotter.XY{X: float64(e.Iteration), Y: free}
	}

	for i, series := range []struct {
		name string
		pts  plotter.XYs
	}{
		{"filling error", errPts},
		{"free points", freePts},
	} {
		line, err := plotter.NewLine(series.pts)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(series.name, line)
	}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p, nil
}

// SizeChart plots, for every fillable phase, the goal diameter histogram
// next to the normalized histogram of the generated features
func SizeChart(table *models.FeatureTable, phases []models.FillablePhase) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Feature size distribution"
	p.X.Label.Text = "Equivalent diameter"
	p.Y.Label.Text = "Frequency"

	for j, fp := range phases {
		h := stats.GoalSizeHistogram(fp.Stats)
		sim := make([]float64, stats.SizeBins)
		for id := int32(1); int(id) <= table.Count(); id++ {
			if f := table.Get(id); f.Phase == fp.ID {
				sim[h.Bin(f.EquivalentDiameter)]++
			}
		}
		if total := floats.Sum(sim); total > 0 {
			floats.Scale(1/total, sim)
		}

		goalPts := make(plotter.XYs, stats.SizeBins)
		simPts := make(plotter.XYs, stats.SizeBins)
		for b := range goalPts {
			x := h.Offset + (float64(b)+0.5)*h.Step
			goalPts[b] = plotter.XY{X: x, Y: h.Goal[b]}
			simPts[b] = plotter.XY{X: x, Y: sim[b]}
		}

		name := fp.Stats.Name
		if name == "" {
			name = fmt.Sprintf("phase %d", fp.ID)
		}
		goal, err := plotter.NewLine(goalPts)
		if err != nil {
			return nil, err
		}
		goal.Color = plotutil.Color(2 * j)
		goal.Dashes = plotutil.Dashes(1)
		synth, points, err := plotter.NewLinePoints(simPts)
		if err != nil {
			return nil, err
		}
		synth.Color = plotutil.Color(2*j + 1)
		points.Color = synth.Color
		p.Add(goal, synth, points)
		p.Legend.Add(name+" goal", goal)
		p.Legend.Add(name+" generated", synth, points)
	}
	p.Legend.Top = true
	return p, nil
}

// Save renders a chart to path; the format follows the file extension
func Save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	if err := p.Save(chartWidth, chartHeight, path); err != nil {
		return fmt.Errorf("error saving chart: %w", err)
	}
	return nil
}
