// Package visualization extracts 2D slices of a synthesized volume and
// writes them as TIFF images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"foamsynth/internal/models"
)

// Field selects the per-voxel array a slice is drawn from
type Field int

const (
	// Labels draws feature ids, scaled by the largest id
	Labels Field = iota

	// Struts draws the strut network white and void voxels black
	Struts

	// BoundaryDistance, TripleJunctionDistance and QuadruplePointDistance
	// draw a distance field scaled by its largest value. Unreachable voxels
	// are black.
	BoundaryDistance
	TripleJunctionDistance
	QuadruplePointDistance
)

// String returns the field name used in file names
func (f Field) String() string {
	switch f {
	case Labels:
		return "labels"
	case Struts:
		return "struts"
	case BoundaryDistance:
		return "gb"
	case TripleJunctionDistance:
		return "tj"
	case QuadruplePointDistance:
		return "qp"
	}
	return fmt.Sprintf("field%d", int(f))
}

// Viewer reads slices out of a volume
type Viewer struct {
	vol *models.Volume
}

// NewViewer creates a viewer over vol
func NewViewer(vol *models.Volume) *Viewer {
	return &Viewer{vol: vol}
}

// values returns the intensity in [0, 1] of each voxel for field f
func (v *Viewer) values(f Field) (func(i int) float64, error) {
	switch f {
	case Labels:
		maxID := int32(0)
		for _, id := range v.vol.FeatureIds {
			if id > maxID {
				maxID = id
			}
		}
		return func(i int) float64 {
			id := v.vol.FeatureIds[i]
			if id <= 0 || maxID == 0 {
				return 0
			}
			return float64(id) / float64(maxID)
		}, nil
	case Struts:
		return func(i int) float64 {
			if v.vol.Mask[i] || v.vol.FeatureIds[i] <= 0 {
				return 0
			}
			return 1
		}, nil
	case BoundaryDistance:
		return distanceValues(v.vol.GBDistances), nil
	case TripleJunctionDistance:
		return distanceValues(v.vol.TJDistances), nil
	case QuadruplePointDistance:
		return distanceValues(v.vol.QPDistances), nil
	}
	return nil, fmt.Errorf("unknown field %d", int(f))
}

func distanceValues(field []float32) func(i int) float64 {
	var maxD float32
	for _, d := range field {
		if d > maxD {
			maxD = d
		}
	}
	return func(i int) float64 {
		if field[i] <= 0 || maxD == 0 {
			return 0
		}
		return float64(field[i] / maxD)
	}
}

// ExtractSlice extracts a 2D slice of field f along the specified axis.
// x slices are depth wide and height tall, y slices width wide and depth
// tall, z slices width wide and height tall.
func (v *Viewer) ExtractSlice(f Field, axis string, position int) (image.Image, error) {
	value, err := v.values(f)
	if err != nil {
		return nil, err
	}
	return v.extract(value, axis, position)
}

func (v *Viewer) extract(value func(i int) float64, axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	w, h, d := v.vol.Dims[0], v.vol.Dims[1], v.vol.Dims[2]
	gray := func(i int) color.Gray16 {
		return color.Gray16{Y: uint16(math.Round(math.Max(0, math.Min(1, value(i))) * 65535))}
	}

	var img *image.Gray16
	switch axis {
	case "x", "X":
		if position >= w {
			return nil, fmt.Errorf("position %d exceeds width %d", position, w)
		}
		img = image.NewGray16(image.Rect(0, 0, d, h))
		for y := 0; y < h; y++ {
			for z := 0; z < d; z++ {
				img.SetGray16(z, y, gray(v.vol.Index(position, y, z)))
			}
		}

	case "y", "Y":
		if position >= h {
			return nil, fmt.Errorf("position %d exceeds height %d", position, h)
		}
		img = image.NewGray16(image.Rect(0, 0, w, d))
		for z := 0; z < d; z++ {
			for x := 0; x < w; x++ {
				img.SetGray16(x, z, gray(v.vol.Index(x, position, z)))
			}
		}

	case "z", "Z":
		if position >= d {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, d)
		}
		img = image.NewGray16(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetGray16(x, y, gray(v.vol.Index(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a deflate-compressed TIFF image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence extracts and saves every slice of field f along the
// specified axis
func (v *Viewer) SaveSliceSequence(f Field, axis string, outputDir string) error {
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.vol.Dims[0]
	case "y", "Y":
		maxPos = v.vol.Dims[1]
	case "z", "Z":
		maxPos = v.vol.Dims[2]
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	value, err := v.values(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.extract(value, axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_%03d.tif", f, axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
