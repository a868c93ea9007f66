// Package stl extracts the boundary surface of a voxel solid and writes it as
// binary STL.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"foamsynth/internal/models"
)

// Triangle is one facet of the surface
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// faceNormals follows models.Geometry.FaceOffsets: -z, -y, -x, +x, +y, +z
var faceNormals = [6][3]float32{
	{0, 0, -1}, {0, -1, 0}, {-1, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1},
}

// faceCorners lists the corners of each voxel face, counter-clockwise seen
// from outside, as offsets from the voxel's lower corner
var faceCorners = [6][4][3]float32{
	{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}},
	{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}},
	{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}},
	{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}},
	{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}},
	{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}},
}

// Mesher emits two triangles for every face a solid voxel shares with an
// empty voxel or the domain boundary. The result is closed and its normals
// point out of the solid.
type Mesher struct {
	solid []bool
	geom  models.Geometry
	scale [3]float32
}

// NewMesher creates a mesher over solid, indexed like geom. Vertices are
// scaled by the voxel spacing.
func NewMesher(solid []bool, geom models.Geometry) *Mesher {
	return &Mesher{
		solid: solid,
		geom:  geom,
		scale: [3]float32{float32(geom.Spacing[0]), float32(geom.Spacing[1]), float32(geom.Spacing[2])},
	}
}

// SetScale overrides the size of a voxel along each axis
func (m *Mesher) SetScale(x, y, z float32) {
	m.scale = [3]float32{x, y, z}
}

// GenerateTriangles walks the grid in index order and returns the surface
func (m *Mesher) GenerateTriangles() []Triangle {
	var triangles []Triangle
	offsets := m.geom.FaceOffsets()
	for i, s := range m.solid {
		if !s {
			continue
		}
		x, y, z := m.geom.Coords(i)
		mask := m.geom.FaceMask(x, y, z)
		for f := 0; f < 6; f++ {
			if mask[f] && m.solid[i+offsets[f]] {
				continue
			}
			var c [4][3]float32
			for k, corner := range faceCorners[f] {
				c[k] = [3]float32{
					(float32(x) + corner[0]) * m.scale[0],
					(float32(y) + corner[1]) * m.scale[1],
					(float32(z) + corner[2]) * m.scale[2],
				}
			}
			triangles = append(triangles,
				Triangle{Normal: faceNormals[f], Vertex1: c[0], Vertex2: c[1], Vertex3: c[2]},
				Triangle{Normal: faceNormals[f], Vertex1: c[0], Vertex2: c[2], Vertex3: c[3]},
			)
		}
	}
	return triangles
}

// WriteSTL writes triangles in binary STL: an 80 byte header, the triangle
// count and 50 bytes per triangle
func WriteSTL(w io.Writer, triangles []Triangle) error {
	if uint64(len(triangles)) > math.MaxUint32 {
		return fmt.Errorf("too many triangles for STL: %d", len(triangles))
	}
	bw := bufio.NewWriter(w)

	var header [80]byte
	copy(header[:], "foamsynth strut surface")
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}

	var rec [50]byte
	for _, t := range triangles {
		off := 0
		for _, v := range [4][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			for _, c := range v {
				binary.LittleEndian.PutUint32(rec[off:], math.Float32bits(c))
				off += 4
			}
		}
		// attribute byte count stays zero
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveToSTL writes triangles to a binary STL file, creating its directory
func SaveToSTL(filename string, triangles []Triangle) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}
	if err := WriteSTL(file, triangles); err != nil {
		file.Close()
		return fmt.Errorf("failed to write STL file: %w", err)
	}
	return file.Close()
}
