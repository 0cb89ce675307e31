package geometry

import (
	"math"

	"gocv.io/x/gocv"
)

// Point represents a 2D point in pixel or normalized space
type Point struct {
	X, Y float64
}

// Sub returns p - q
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dist returns the Euclidean distance between p and q
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Midpoint returns the point halfway between p and q
func Midpoint(p, q Point) Point {
	return Point{X: (p.X + q.X) / 2, Y: (p.Y + q.Y) / 2}
}

// Affine is a 2x3 affine transform in row-major order:
//
//	| A[0] A[1] A[2] |
//	| A[3] A[4] A[5] |
//
// Points map as x' = A[0]*x + A[1]*y + A[2], y' = A[3]*x + A[4]*y + A[5].
type Affine [6]float64

// Identity returns the identity transform
func Identity() Affine {
	return Affine{1, 0, 0, 0, 1, 0}
}

// Similarity builds a transform that scales uniformly by s, rotates
// counter-clockwise (in image coordinates, y down) by theta and translates by (tx, ty).
func Similarity(s, theta, tx, ty float64) Affine {
	c, sn := math.Cos(theta), math.Sin(theta)
	return Affine{
		s * c, -s * sn, tx,
		s * sn, s * c, ty,
	}
}

// Translation returns a pure translation
func Translation(tx, ty float64) Affine {
	return Affine{1, 0, tx, 0, 1, ty}
}

// Apply maps p through the transform
func (a Affine) Apply(p Point) Point {
	return Point{
		X: a[0]*p.X + a[1]*p.Y + a[2],
		Y: a[3]*p.X + a[4]*p.Y + a[5],
	}
}

// Then returns the transform that applies a first and b second
func (a Affine) Then(b Affine) Affine {
	return Affine{
		b[0]*a[0] + b[1]*a[3],
		b[0]*a[1] + b[1]*a[4],
		b[0]*a[2] + b[1]*a[5] + b[2],
		b[3]*a[0] + b[4]*a[3],
		b[3]*a[1] + b[4]*a[4],
		b[3]*a[2] + b[4]*a[5] + b[5],
	}
}

// Det returns the determinant of the linear part
func (a Affine) Det() float64 {
	return a[0]*a[4] - a[1]*a[3]
}

// Invert returns the algebraic inverse of the transform
func (a Affine) Invert() (Affine, error) {
	det := a.Det()
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Affine{}, &InvalidInputError{Op: "invert affine", Reason: "singular transform"}
	}

	inv := 1 / det
	i0 := a[4] * inv
	i1 := -a[1] * inv
	i3 := -a[3] * inv
	i4 := a[0] * inv

	return Affine{
		i0, i1, -(i0*a[2] + i1*a[5]),
		i3, i4, -(i3*a[2] + i4*a[5]),
	}, nil
}

// Scale returns the uniform scale factor of a similarity transform
func (a Affine) Scale() float64 {
	return math.Sqrt(math.Abs(a.Det()))
}

// ToMat converts the transform into a 2x3 CV64F Mat (caller must Close)
func (a Affine) ToMat() gocv.Mat {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	for i := 0; i < 6; i++ {
		m.SetDoubleAt(i/3, i%3, a[i])
	}
	return m
}
