package shapes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"foamsynth/internal/models"
)

func TestEllipsoid(t *testing.T) {
	e := Ellipsoid{}
	assert.Equal(t, 1.0, e.Inside(r3.Vec{}))
	assert.InDelta(t, 0, e.Inside(r3.Vec{X: 1}), 1e-12)
	assert.Negative(t, e.Inside(r3.Vec{X: 0.8, Y: 0.8}))

	r := e.Radius(4.0/3.0*math.Pi*8, 1, 1)
	assert.InDelta(t, 2, r, 1e-9)
}

func TestCylinder(t *testing.T) {
	c := Cylinder{}
	assert.Positive(t, c.Inside(r3.Vec{X: 0.9, Y: 0.1}))
	assert.Negative(t, c.Inside(r3.Vec{X: 1.1}))
	assert.Negative(t, c.Inside(r3.Vec{Y: 0.8, Z: 0.8}))

	r := c.Radius(2*math.Pi, 1, 1)
	assert.InDelta(t, 1, r, 1e-9)
}

func TestSuperEllipsoidOmega3(t *testing.T) {
	assert.InDelta(t, 1, SuperEllipsoidOmega3(2), 1e-12)

	prev := 1.0
	for n := 2.5; n <= 10; n += 0.5 {
		w := SuperEllipsoidOmega3(n)
		assert.Less(t, w, prev, "omega3 must decrease with exponent, n=%g", n)
		prev = w
	}

	// The cube limit is about 0.9246
	assert.InDelta(t, 0.925, SuperEllipsoidOmega3(60), 0.01)
}

func TestNewSuperEllipsoid(t *testing.T) {
	assert.Equal(t, minExponent, NewSuperEllipsoid(1).N)
	assert.Equal(t, maxExponent, NewSuperEllipsoid(0.1).N)

	target := SuperEllipsoidOmega3(4)
	s := NewSuperEllipsoid(target)
	assert.InDelta(t, 4, s.N, 1e-6)
}

func TestSuperEllipsoidSphereMatchesEllipsoid(t *testing.T) {
	s := NewSuperEllipsoid(1)
	vol := 10.0
	assert.InDelta(t, Ellipsoid{}.Radius(vol, 0.8, 0.6), s.Radius(vol, 0.8, 0.6), 1e-9)

	p := r3.Vec{X: 0.3, Y: -0.4, Z: 0.2}
	assert.InDelta(t, Ellipsoid{}.Inside(p), s.Inside(p), 1e-12)
}

func TestCubeOctahedron(t *testing.T) {
	cube := NewCubeOctahedron(1)
	assert.Equal(t, 3.0, cube.G)
	assert.InDelta(t, 8, cube.unitVolume(), 1e-12)
	assert.InDelta(t, 1, cube.Radius(8, 1, 1), 1e-12)
	assert.Positive(t, cube.Inside(r3.Vec{X: 0.9, Y: 0.9, Z: 0.9}))

	octa := NewCubeOctahedron(0)
	assert.InDelta(t, 4.0/3.0, octa.unitVolume(), 1e-12)
	assert.Negative(t, octa.Inside(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}))

	cubocta := NewCubeOctahedron(0.5)
	assert.InDelta(t, 20.0/3.0, cubocta.unitVolume(), 1e-12)

	assert.Equal(t, 1.0, NewCubeOctahedron(-3).G)
}

func TestNew(t *testing.T) {
	for _, st := range []models.ShapeType{models.Ellipsoid, models.SuperEllipsoid, models.CubeOctahedron, models.Cylinder} {
		s, err := New(st, 0.9)
		require.NoError(t, err)
		assert.Positive(t, s.Inside(r3.Vec{}), "shape %v", st)
	}
	_, err := New(models.ShapeType(9), 1)
	assert.ErrorIs(t, err, models.ErrShapeClass)
}
