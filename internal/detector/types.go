package detector

import "github.com/dudu/blazelive/internal/geometry"

// BoundingBox represents a detection box
type BoundingBox struct {
	X1, Y1 float64 // top-left
	X2, Y2 float64 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float64 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float64 {
	return b.Y2 - b.Y1
}

// Center returns box center point
func (b BoundingBox) Center() geometry.Point {
	return geometry.Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area
func (b BoundingBox) Area() float64 {
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return 0
	}
	return b.Width() * b.Height()
}

// Detection is one candidate region: a box, the coarse anchor keypoints used
// to orient the ROI, and a confidence score. Coordinates are either
// normalized to the letterboxed detector input or in source pixels,
// depending on the stage that produced it.
type Detection struct {
	BoundingBox BoundingBox
	Keypoints   []geometry.Point
	Score       float32
}

// Clone returns a deep copy
func (d Detection) Clone() Detection {
	out := d
	out.Keypoints = append([]geometry.Point(nil), d.Keypoints...)
	return out
}

// Keypoint returns keypoint i, or false when the detection has fewer keypoints
func (d Detection) Keypoint(i int) (geometry.Point, bool) {
	if i < 0 || i >= len(d.Keypoints) {
		return geometry.Point{}, false
	}
	return d.Keypoints[i], true
}
