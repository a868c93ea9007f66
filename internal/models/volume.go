package models

// Feature id conventions shared by every stage of the pipeline
const (
	// Unassigned marks a voxel that no feature has claimed yet
	Unassigned int32 = -1

	// Background is the id of void voxels and of gaps that could not be filled
	Background int32 = 0
)

// Geometry describes a regular voxel grid
type Geometry struct {
	// Dims is the number of voxels along x, y and z
	Dims [3]int `yaml:"dims"`

	// Spacing is the physical edge length of a voxel along x, y and z
	Spacing [3]float64 `yaml:"spacing"`
}

// NumVoxels returns the total number of voxels in the grid
func (g Geometry) NumVoxels() int {
	return g.Dims[0] * g.Dims[1] * g.Dims[2]
}

// Index converts a voxel coordinate into a flat index (x varies fastest)
func (g Geometry) Index(x, y, z int) int {
	return z*g.Dims[0]*g.Dims[1] + y*g.Dims[0] + x
}

// Coords converts a flat index back into a voxel coordinate
func (g Geometry) Coords(i int) (x, y, z int) {
	x = i % g.Dims[0]
	y = (i / g.Dims[0]) % g.Dims[1]
	z = i / (g.Dims[0] * g.Dims[1])
	return x, y, z
}

// FaceOffsets returns the flat index offsets of the six face neighbours of
// a voxel, ordered -z, -y, -x, +x, +y, +z
func (g Geometry) FaceOffsets() [6]int {
	w, h := g.Dims[0], g.Dims[1]
	return [6]int{-w * h, -w, -1, 1, w, w * h}
}

// FaceMask reports which face neighbours of a voxel lie inside the grid, in
// FaceOffsets order. Neighbours never wrap around the grid edges.
func (g Geometry) FaceMask(x, y, z int) [6]bool {
	return [6]bool{z > 0, y > 0, x > 0, x < g.Dims[0]-1, y < g.Dims[1]-1, z < g.Dims[2]-1}
}

// Size returns the physical extent of the grid along each axis
func (g Geometry) Size() [3]float64 {
	return [3]float64{
		float64(g.Dims[0]) * g.Spacing[0],
		float64(g.Dims[1]) * g.Spacing[1],
		float64(g.Dims[2]) * g.Spacing[2],
	}
}

// VoxelVolume returns the physical volume of one voxel
func (g Geometry) VoxelVolume() float64 {
	return g.Spacing[0] * g.Spacing[1] * g.Spacing[2]
}

// Volume is the output grid of a synthesis run together with its parallel
// per-voxel arrays. All arrays are indexed with Geometry.Index.
type Volume struct {
	Geometry

	// FeatureIds holds the owning feature of each voxel
	FeatureIds []int32

	// CellPhases holds the phase of each voxel
	CellPhases []int32

	// Mask is true for voxels removed by strut formation
	Mask []bool

	// GBDistances, TJDistances and QPDistances hold the distance of each
	// voxel to the nearest grain boundary, triple junction and quadruple
	// point. -1 means no such topology is reachable.
	GBDistances []float32
	TJDistances []float32
	QPDistances []float32
}

// NewVolume allocates a volume with every voxel unassigned
func NewVolume(g Geometry) *Volume {
	n := g.NumVoxels()
	v := &Volume{
		Geometry:    g,
		FeatureIds:  make([]int32, n),
		CellPhases:  make([]int32, n),
		Mask:        make([]bool, n),
		GBDistances: make([]float32, n),
		TJDistances: make([]float32, n),
		QPDistances: make([]float32, n),
	}
	for i := range v.FeatureIds {
		v.FeatureIds[i] = Unassigned
	}
	v.ResetDistances()
	return v
}

// NewVolumeFromFeatureIds wraps an existing feature id grid. The ids are
// copied and every other array starts as in NewVolume.
func NewVolumeFromFeatureIds(g Geometry, ids []int32) *Volume {
	v := NewVolume(g)
	copy(v.FeatureIds, ids)
	return v
}

// ResetDistances sets all three distance fields back to -1
func (v *Volume) ResetDistances() {
	for i := range v.GBDistances {
		v.GBDistances[i] = -1
		v.TJDistances[i] = -1
		v.QPDistances[i] = -1
	}
}

// CountUnassigned returns the number of voxels with a negative feature id
func (v *Volume) CountUnassigned() int {
	n := 0
	for _, id := range v.FeatureIds {
		if id < 0 {
			n++
		}
	}
	return n
}
