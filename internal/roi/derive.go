// Package roi turns detections into rotated square regions of interest and
// crops them into fixed-size patches for the landmark stage.
package roi

import (
	"fmt"
	"math"

	"github.com/dudu/blazelive/internal/detector"
	"github.com/dudu/blazelive/internal/domain"
	"github.com/dudu/blazelive/internal/geometry"
)

// ROI is a rotated square in source pixel space
type ROI struct {
	XCenter float64
	YCenter float64
	Theta   float64 // radians, counter-clockwise in image coordinates
	Scale   float64 // side length in pixels
}

// Center returns the ROI center
func (r ROI) Center() geometry.Point {
	return geometry.Point{X: r.XCenter, Y: r.YCenter}
}

// FromDetections derives one ROI per detection, in order. Detections must be
// in source pixel space.
func FromDetections(dets []detector.Detection, rule domain.ROIRule) ([]ROI, error) {
	rois := make([]ROI, 0, len(dets))
	for i, d := range dets {
		r, err := fromDetection(d, rule)
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		rois = append(rois, r)
	}
	return rois, nil
}

func fromDetection(d detector.Detection, rule domain.ROIRule) (ROI, error) {
	from, ok := d.Keypoint(rule.From)
	if !ok {
		return ROI{}, &geometry.InvalidInputError{Op: "derive roi", Reason: fmt.Sprintf("missing keypoint %d", rule.From)}
	}
	to, ok := d.Keypoint(rule.To)
	if !ok {
		return ROI{}, &geometry.InvalidInputError{Op: "derive roi", Reason: fmt.Sprintf("missing keypoint %d", rule.To)}
	}

	b := d.BoundingBox
	if !geometry.Finite(b.X1, b.Y1, b.X2, b.Y2, from.X, from.Y, to.X, to.Y) {
		return ROI{}, &geometry.InvalidInputError{Op: "derive roi", Reason: "non-finite coordinates"}
	}

	var center geometry.Point
	switch rule.Center {
	case domain.CenterBox:
		center = b.Center()
	case domain.CenterAnchor:
		center = to
	case domain.CenterMidpoint:
		center = geometry.Midpoint(from, to)
	default:
		return ROI{}, fmt.Errorf("unknown roi center mode %q", rule.Center)
	}

	distance := from.Dist(to)

	var size float64
	switch rule.Size {
	case domain.SizeBox:
		size = b.Width()
	case domain.SizeAnchorDistance:
		size = distance
	default:
		return ROI{}, fmt.Errorf("unknown roi size mode %q", rule.Size)
	}
	if size < domain.MinScale {
		size = domain.MinScale
	}

	theta := -rule.Theta0
	if distance >= domain.MinScale {
		v := to.Sub(from)
		theta = math.Atan2(v.Y, v.X) - rule.Theta0
	}

	return ROI{
		XCenter: center.X,
		YCenter: center.Y + rule.ShiftY*size,
		Theta:   theta,
		Scale:   size * rule.Expand,
	}, nil
}
