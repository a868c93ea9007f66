// Package shapes implements the shape classes a feature can be rasterized
// as. Every shape is evaluated in the feature's principal frame with each
// coordinate already divided by the matching semi-axis, so the unit shape is
// scaled to the feature by the caller.
package shapes

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"foamsynth/internal/models"
)

// Shape is an implicit solid. Inside is non-negative for points in the
// solid and grows towards its centre.
type Shape interface {
	// Inside evaluates the insideness of a normalized principal-frame point
	Inside(p r3.Vec) float64

	// Radius returns the first semi-axis of a solid with the given volume
	// and axis ratios b/a and c/a
	Radius(volume, bOverA, cOverA float64) float64
}

// New builds the shape for a shape class. omega3 only affects the
// super-ellipsoid and cube-octahedron families.
func New(t models.ShapeType, omega3 float64) (Shape, error) {
	switch t {
	case models.Ellipsoid:
		return Ellipsoid{}, nil
	case models.SuperEllipsoid:
		return NewSuperEllipsoid(omega3), nil
	case models.CubeOctahedron:
		return NewCubeOctahedron(omega3), nil
	case models.Cylinder:
		return Cylinder{}, nil
	}
	return nil, fmt.Errorf("%w: %v", models.ErrShapeClass, t)
}

// Ellipsoid is the solid a1² + a2² + a3² <= 1
type Ellipsoid struct{}

func (Ellipsoid) Inside(p r3.Vec) float64 {
	return 1 - p.X*p.X - p.Y*p.Y - p.Z*p.Z
}

func (Ellipsoid) Radius(volume, bOverA, cOverA float64) float64 {
	return math.Cbrt(0.75 * volume / (math.Pi * bOverA * cOverA))
}

// Cylinder is a circular-section prism with its axis along the first
// principal direction
type Cylinder struct{}

func (Cylinder) Inside(p r3.Vec) float64 {
	return math.Min(1-math.Abs(p.X), 1-p.Y*p.Y-p.Z*p.Z)
}

func (Cylinder) Radius(volume, bOverA, cOverA float64) float64 {
	return math.Cbrt(volume / (2 * math.Pi * bOverA * cOverA))
}

// SuperEllipsoid is the solid |a1|^N + |a2|^N + |a3|^N <= 1, N >= 2
type SuperEllipsoid struct {
	N float64
}

// Exponent bounds for the super-ellipsoid family
const (
	minExponent = 2.0
	maxExponent = 10.0
)

// NewSuperEllipsoid picks the exponent whose shape has the requested
// omega3 moment invariant. omega3 = 1 is the sphere; values at or below
// the invariant of the largest exponent give that exponent.
func NewSuperEllipsoid(omega3 float64) SuperEllipsoid {
	if omega3 >= 1 || math.IsNaN(omega3) {
		return SuperEllipsoid{N: minExponent}
	}
	if omega3 <= SuperEllipsoidOmega3(maxExponent) {
		return SuperEllipsoid{N: maxExponent}
	}
	lo, hi := minExponent, maxExponent
	for i := 0; i < 60; i++ {
		mid := 0.5 * (lo + hi)
		if SuperEllipsoidOmega3(mid) > omega3 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return SuperEllipsoid{N: 0.5 * (lo + hi)}
}

func (s SuperEllipsoid) Inside(p r3.Vec) float64 {
	return 1 - math.Pow(math.Abs(p.X), s.N) - math.Pow(math.Abs(p.Y), s.N) - math.Pow(math.Abs(p.Z), s.N)
}

func (s SuperEllipsoid) Radius(volume, bOverA, cOverA float64) float64 {
	return math.Cbrt(volume / (bOverA * cOverA * superVolume(s.N)))
}

// superVolume is the volume of |x|^n + |y|^n + |z|^n <= 1
func superVolume(n float64) float64 {
	g := math.Gamma(1 + 1/n)
	return 8 * g * g * g / math.Gamma(1+3/n)
}

// superMoment is the second moment about one axis of the same solid
func superMoment(n float64) float64 {
	g := math.Gamma(1 / n)
	return 8 * math.Gamma(3/n) * g * g / (n * n * n * math.Gamma(1+5/n))
}

// SuperEllipsoidOmega3 returns the normalized moment invariant of the
// exponent-n solid: the sphere's moment-to-volume^(5/3) ratio divided by
// the solid's. It is 1 at n = 2 and decreases towards the cube.
func SuperEllipsoidOmega3(n float64) float64 {
	ratio := func(n float64) float64 {
		return superMoment(n) / math.Pow(superVolume(n), 5.0/3.0)
	}
	return ratio(2) / ratio(n)
}

// CubeOctahedron is the intersection of the cube max|ai| <= 1 with the
// octahedron Σ|ai| <= G, 1 <= G <= 3
type CubeOctahedron struct {
	G float64
}

// NewCubeOctahedron maps omega3 in [0, 1] onto the truncation parameter:
// 0 gives the octahedron, 0.5 the cuboctahedron and 1 the cube
func NewCubeOctahedron(omega3 float64) CubeOctahedron {
	g := 1 + 2*omega3
	if g < 1 || math.IsNaN(g) {
		g = 1
	}
	if g > 3 {
		g = 3
	}
	return CubeOctahedron{G: g}
}

func (c CubeOctahedron) Inside(p r3.Vec) float64 {
	ax, ay, az := math.Abs(p.X), math.Abs(p.Y), math.Abs(p.Z)
	cube := 1 - math.Max(ax, math.Max(ay, az))
	octa := (c.G - ax - ay - az) / c.G
	return math.Min(cube, octa)
}

func (c CubeOctahedron) Radius(volume, bOverA, cOverA float64) float64 {
	return math.Cbrt(volume / (bOverA * cOverA * c.unitVolume()))
}

func (c CubeOctahedron) unitVolume() float64 {
	g := c.G
	if g <= 2 {
		return 4.0/3.0*g*g*g - 4*math.Pow(g-1, 3)
	}
	return 8 - 4*math.Pow(3-g, 3)/3
}
