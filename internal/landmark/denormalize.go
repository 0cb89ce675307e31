// Package landmark runs the second-stage landmark regressor on ROI patches
// and maps its output back to source pixels.
package landmark

import (
	"fmt"

	"github.com/dudu/blazelive/internal/domain"
	"github.com/dudu/blazelive/internal/geometry"
)

// Point3 is a landmark; X and Y are normalized to the patch or in source
// pixels depending on the stage, Z is relative depth.
type Point3 struct {
	X, Y, Z float64
}

// XY drops depth
func (p Point3) XY() geometry.Point {
	return geometry.Point{X: p.X, Y: p.Y}
}

// Set is the landmark output for one ROI
type Set struct {
	Points   []Point3
	Presence float32
}

// Denormalize maps patch-normalized landmarks into source pixels with the
// per-ROI patch->source affines. sets[i] is paired with affines[i].
func Denormalize(sets []Set, affines []geometry.Affine, resolution int, z domain.ZScaling) ([]Set, error) {
	if len(sets) != len(affines) {
		return nil, &geometry.InvalidInputError{
			Op:     "denormalize landmarks",
			Reason: fmt.Sprintf("%d landmark sets but %d affines", len(sets), len(affines)),
		}
	}
	if resolution <= 0 {
		return nil, &geometry.InvalidInputError{Op: "denormalize landmarks", Reason: "resolution must be positive"}
	}

	res := float64(resolution)
	out := make([]Set, len(sets))
	for i, s := range sets {
		a := affines[i]
		zScale := 1.0
		if z == domain.ZScaleWithROI {
			zScale = res * a.Scale()
		}

		pts := make([]Point3, len(s.Points))
		for j, p := range s.Points {
			xy := a.Apply(geometry.Point{X: p.X * res, Y: p.Y * res})
			pts[j] = Point3{X: xy.X, Y: xy.Y, Z: p.Z * zScale}
		}
		out[i] = Set{Points: pts, Presence: s.Presence}
	}
	return out, nil
}
