// Package export writes the per-feature goal attributes of a synthesized
// microstructure as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"foamsynth/internal/models"
)

// Header returns the CSV column names. Multi-component attributes get one
// column per component, suffixed with the component index.
func Header() []string {
	header := []string{"Feature_ID", "Phases", "EquivalentDiameters", "Volumes", "Omega3s"}
	for _, name := range []string{"AxisLengths", "AxisEulerAngles", "Centroids"} {
		for k := 0; k < 3; k++ {
			header = append(header, fmt.Sprintf("%s_%d", name, k))
		}
	}
	return append(header, "Neighborhoods")
}

// WriteGoalAttributes writes the feature count on the first line, then the
// header, then one row per feature starting at id 1
func WriteGoalAttributes(w io.Writer, table *models.FeatureTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{strconv.Itoa(table.Count())}); err != nil {
		return err
	}
	if err := cw.Write(Header()); err != nil {
		return err
	}

	row := make([]string, 0, len(Header()))
	for id := int32(1); int(id) <= table.Count(); id++ {
		f := table.Get(id)
		row = append(row[:0],
			strconv.Itoa(int(id)),
			strconv.Itoa(int(f.Phase)),
			formatFloat(f.EquivalentDiameter),
			formatFloat(f.Volume),
			formatFloat(f.Omega3),
		)
		for _, v := range f.AxisLengths {
			row = append(row, formatFloat(v))
		}
		for _, v := range f.AxisEulerAngles {
			row = append(row, formatFloat(v))
		}
		row = append(row,
			formatFloat(f.Centroid.X),
			formatFloat(f.Centroid.Y),
			formatFloat(f.Centroid.Z),
			strconv.Itoa(int(f.Neighborhood)),
		)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("feature %d: %w", id, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveGoalAttributes writes the goal attributes to path, creating its
// parent directory
func SaveGoalAttributes(path string, table *models.FeatureTable) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating csv file: %w", err)
	}
	if err := WriteGoalAttributes(f, table); err != nil {
		f.Close()
		return fmt.Errorf("error writing csv file: %w", err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
