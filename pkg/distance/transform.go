// Package distance computes, for every voxel, the Euclidean distance to the
// nearest grain boundary, triple junction and quadruple point.
package distance

import (
	"fmt"
	"math"

	"foamsynth/internal/logging"
	"foamsynth/internal/models"
	"foamsynth/pkg/parallel"
)

// Class is a topological class of boundary voxel
type Class int

const (
	// Boundary voxels touch one other feature
	Boundary Class = iota
	// TripleJunction voxels touch two other features
	TripleJunction
	// QuadruplePoint voxels touch three or more other features
	QuadruplePoint

	numClasses = 3
)

func (c Class) String() string {
	switch c {
	case Boundary:
		return "boundary"
	case TripleJunction:
		return "triple_junction"
	case QuadruplePoint:
		return "quadruple_point"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Stats summarizes a transform
type Stats struct {
	// Seeds is the number of voxels of each class
	Seeds [numClasses]int

	// Sweeps is the number of propagation sweeps run for each class
	Sweeps [numClasses]int
}

// Transform fills the three distance fields of a volume
type Transform struct {
	exec parallel.Executor
}

// NewTransform creates a transform that runs the classification and the
// three class passes on exec
func NewTransform(exec parallel.Executor) *Transform {
	if exec == nil {
		exec = parallel.Serial{}
	}
	return &Transform{exec: exec}
}

// Run classifies the feature voxels of vol and computes the distance of
// every feature voxel to the nearest voxel of each class. Voxels that cannot
// reach a class, and voxels outside every feature, keep -1.
func (t *Transform) Run(vol *models.Volume) (Stats, error) {
	log := logging.Logger()
	vol.ResetDistances()

	var seeds [numClasses][]bool
	for c := range seeds {
		seeds[c] = make([]bool, vol.NumVoxels())
	}
	err := t.exec.For(vol.Dims[2], func(zlo, zhi int) error {
		classify(vol, zlo, zhi, &seeds)
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	fields := [numClasses][]float32{vol.GBDistances, vol.TJDistances, vol.QPDistances}
	tasks := make([]func() error, numClasses)
	for c := range tasks {
		tasks[c] = func() error {
			st.Seeds[c], st.Sweeps[c] = propagate(vol, seeds[c], fields[c])
			return nil
		}
	}
	if err := t.exec.Run(tasks...); err != nil {
		return st, err
	}

	for c := Class(0); c < numClasses; c++ {
		log.Debug("distance field", "class", c, "seeds", st.Seeds[c], "sweeps", st.Sweeps[c])
	}
	log.Info("distance fields computed",
		"boundary_voxels", st.Seeds[Boundary],
		"triple_junction_voxels", st.Seeds[TripleJunction],
		"quadruple_point_voxels", st.Seeds[QuadruplePoint])
	return st, nil
}

// classify marks the feature voxels in planes [zlo, zhi) by the number of
// distinct feature ids, background included, among their face neighbours.
// A voxel of a higher class also seeds every lower one.
func classify(vol *models.Volume, zlo, zhi int, seeds *[numClasses][]bool) {
	ids := vol.FeatureIds
	offsets := vol.FaceOffsets()
	var seen [6]int32

	for z := zlo; z < zhi; z++ {
		for y := 0; y < vol.Dims[1]; y++ {
			for x := 0; x < vol.Dims[0]; x++ {
				i := vol.Index(x, y, z)
				own := ids[i]
				if own <= 0 {
					continue
				}
				valid := vol.FaceMask(x, y, z)
				distinct := 0
				for k, off := range offsets {
					if !valid[k] {
						continue
					}
					nb := ids[i+off]
					if nb < 0 || nb == own || contains(seen[:distinct], nb) {
						continue
					}
					seen[distinct] = nb
					distinct++
				}
				for c := 0; c < numClasses && c < distinct; c++ {
					seeds[c][i] = true
				}
			}
		}
	}
}

func contains(ids []int32, id int32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// propagate computes one distance field. Every sweep hands the nearest seed
// of resolved voxels to their unresolved face neighbours, one ring at a
// time, until a sweep resolves nothing. The ring distance is then replaced
// by the physical distance to the recorded seed.
func propagate(vol *models.Volume, seeds []bool, field []float32) (numSeeds, sweeps int) {
	ids := vol.FeatureIds
	n := len(ids)
	nearest := make([]int, n)
	ring := make([]float64, n)
	for i := range nearest {
		nearest[i] = -1
		ring[i] = -1
		if seeds[i] {
			nearest[i] = i
			ring[i] = 0
			numSeeds++
		}
	}

	offsets := vol.FaceOffsets()
	distance := 0.0
	pending, changed := 1, 1
	for pending > 0 && changed > 0 {
		sweeps++
		pending, changed = 0, 0
		distance++

		for z := 0; z < vol.Dims[2]; z++ {
			for y := 0; y < vol.Dims[1]; y++ {
				for x := 0; x < vol.Dims[0]; x++ {
					i := vol.Index(x, y, z)
					if nearest[i] != -1 || ids[i] <= 0 {
						continue
					}
					pending++
					valid := vol.FaceMask(x, y, z)
					for k, off := range offsets {
						if valid[k] && ring[i+off] != -1 {
							nearest[i] = nearest[i+off]
						}
					}
				}
			}
		}
		for i := range nearest {
			if nearest[i] != -1 && ring[i] == -1 && ids[i] > 0 {
				ring[i] = distance
				changed++
			}
		}
	}

	sx, sy, sz := vol.Spacing[0], vol.Spacing[1], vol.Spacing[2]
	for i, nb := range nearest {
		if nb < 0 {
			continue
		}
		x1, y1, z1 := vol.Coords(i)
		x2, y2, z2 := vol.Coords(nb)
		dx := float64(x1-x2) * sx
		dy := float64(y1-y2) * sy
		dz := float64(z1-z2) * sz
		field[i] = float32(math.Sqrt(dx*dx + dy*dy + dz*dz))
	}
	return numSeeds, sweeps
}
