package raster

import (
	"sync/atomic"

	"foamsynth/internal/logging"
	"foamsynth/internal/models"
	"foamsynth/pkg/parallel"
)

// GapResult summarizes a gap filling run
type GapResult struct {
	// Sweeps is the number of vote sweeps run
	Sweeps int

	// Forced is the number of voxels that could not be reached and were set
	// to the background id
	Forced int
}

// GapFiller assigns unassigned voxels to the feature most represented among
// their face neighbours, sweep after sweep, until every voxel is assigned or
// a sweep leaves the unassigned count unchanged
type GapFiller struct {
	// MaxSweeps stops filling after this many sweeps; 0 means no limit
	MaxSweeps int

	exec parallel.Executor
}

// NewGapFiller creates a filler that runs its vote sweeps on exec
func NewGapFiller(maxSweeps int, exec parallel.Executor) *GapFiller {
	if exec == nil {
		exec = parallel.Serial{}
	}
	return &GapFiller{MaxSweeps: maxSweeps, exec: exec}
}

// Fill runs the sweeps on vol. Cell phases of newly assigned voxels follow
// their feature; voxels left unassigned become background.
func (g *GapFiller) Fill(vol *models.Volume, table *models.FeatureTable) (GapResult, error) {
	log := logging.Logger()
	ids := vol.FeatureIds
	n := len(ids)

	maxID := int32(0)
	for _, id := range ids {
		maxID = max(maxID, id)
	}

	best := make([]int, n)
	for i := range best {
		best[i] = -1
	}

	var res GapResult
	gaps, previous := int64(1), int64(0)
	for gaps != 0 && gaps != previous {
		if g.MaxSweeps > 0 && res.Sweeps >= g.MaxSweeps {
			log.Warn("gap filling stopped at sweep limit", "sweeps", res.Sweeps, "unassigned", gaps)
			break
		}
		res.Sweeps++
		previous = gaps

		var counted atomic.Int64
		err := g.exec.For(vol.Dims[2], func(zlo, zhi int) error {
			votes := make([]int32, maxID+1)
			counted.Add(int64(vote(vol, zlo, zhi, votes, best)))
			return nil
		})
		if err != nil {
			return res, err
		}
		gaps = counted.Load()

		for i, id := range ids {
			if id >= 0 {
				continue
			}
			if nb := best[i]; nb != -1 && ids[nb] > 0 {
				ids[i] = ids[nb]
				vol.CellPhases[i] = phaseOf(table, ids[nb])
			}
		}
		log.Debug("gap sweep", "sweep", res.Sweeps, "unassigned", gaps)
	}

	for i, id := range ids {
		if id < 0 {
			ids[i] = models.Background
			vol.CellPhases[i] = 0
			res.Forced++
		}
	}
	log.Info("gaps filled", "sweeps", res.Sweeps, "forced_background", res.Forced)
	return res, nil
}

// vote records, for every unassigned voxel in planes [zlo, zhi), the face
// neighbour whose feature appears most often around it. The first neighbour
// to reach the highest count wins. It returns the number of unassigned
// voxels seen.
func vote(vol *models.Volume, zlo, zhi int, votes []int32, best []int) int {
	ids := vol.FeatureIds
	w, h := vol.Dims[0], vol.Dims[1]
	offsets := vol.FaceOffsets()

	gaps := 0
	for z := zlo; z < zhi; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := vol.Index(x, y, z)
				if ids[i] >= 0 {
					continue
				}
				gaps++
				valid := vol.FaceMask(x, y, z)
				most := int32(0)
				for k, off := range offsets {
					if !valid[k] {
						continue
					}
					if f := ids[i+off]; f > 0 {
						votes[f]++
						if votes[f] > most {
							most = votes[f]
							best[i] = i + off
						}
					}
				}
				for k, off := range offsets {
					if valid[k] {
						if f := ids[i+off]; f > 0 {
							votes[f] = 0
						}
					}
				}
			}
		}
	}
	return gaps
}
