// Package struts thins a labelled foam into its ligament network using the
// boundary, triple junction and quadruple point distance fields.
package struts

import (
	"sync/atomic"

	"foamsynth/internal/logging"
	"foamsynth/internal/models"
	"foamsynth/pkg/parallel"
)

// Thresholds control which voxels are removed
type Thresholds struct {
	// MinThickness removes voxels this close to a triple junction
	MinThickness float64 `yaml:"minStrutThickness"`

	// ThicknessVariability bounds the product of the quadruple point and
	// triple junction distances
	ThicknessVariability float64 `yaml:"strutThicknessVariability"`

	// ShapeVariability bounds the product of the triple junction and
	// boundary distances
	ShapeVariability float64 `yaml:"strutShapeVariability"`
}

// Void reports whether a voxel with the given distances becomes void
func (th Thresholds) Void(gb, tj, qp float32) bool {
	if qp == 0 || float64(tj) <= th.MinThickness {
		return true
	}
	return float64(qp*tj) < th.ThicknessVariability && float64(tj*gb) < th.ShapeVariability
}

// Form sets every void voxel of vol to the background id and marks it in
// the mask. Other voxels are left untouched. It returns the number of void
// voxels.
func Form(vol *models.Volume, th Thresholds, exec parallel.Executor) (int, error) {
	if exec == nil {
		exec = parallel.Serial{}
	}
	var removed atomic.Int64
	err := exec.For(vol.NumVoxels(), func(lo, hi int) error {
		n := 0
		for i := lo; i < hi; i++ {
			if th.Void(vol.GBDistances[i], vol.TJDistances[i], vol.QPDistances[i]) {
				vol.FeatureIds[i] = models.Background
				vol.Mask[i] = true
				n++
			}
		}
		removed.Add(int64(n))
		return nil
	})
	if err != nil {
		return 0, err
	}
	logging.Logger().Info("struts formed", "void_voxels", removed.Load(), "voxels", vol.NumVoxels())
	return int(removed.Load()), nil
}
