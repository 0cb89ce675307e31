package ui

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/dudu/blazelive/internal/detector"
	"github.com/dudu/blazelive/internal/geometry"
	"github.com/dudu/blazelive/internal/landmark"
	"github.com/dudu/blazelive/internal/roi"
)

// Colors on BGR frames
var (
	ColorDetection  = color.RGBA{B: 255, A: 255}
	ColorKeypoint   = color.RGBA{R: 255, A: 255}
	ColorLandmark   = color.RGBA{G: 255, A: 255}
	ColorConnection = color.RGBA{A: 255}
	ColorROITop     = color.RGBA{G: 255, A: 255}
	ColorFPS        = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

func pt(p geometry.Point) image.Point {
	return image.Pt(int(p.X), int(p.Y))
}

// DrawDetections outlines each detection box and marks its keypoints
func DrawDetections(img *gocv.Mat, dets []detector.Detection) {
	for _, d := range dets {
		b := d.BoundingBox
		gocv.Rectangle(img, image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)), ColorDetection, 1)
		for _, kp := range d.Keypoints {
			gocv.Circle(img, pt(kp), 2, ColorKeypoint, 2)
		}
	}
}

// DrawROI outlines each rotated ROI; the edge along the patch's top row is green
func DrawROI(img *gocv.Mat, boxes []roi.Quad) {
	for _, q := range boxes {
		for i, e := range q.Edges() {
			c := ColorConnection
			if i == 0 {
				c = ColorROITop
			}
			gocv.Line(img, pt(q[e[0]]), pt(q[e[1]]), c, 2)
		}
	}
}

// DrawLandmarks marks each landmark and joins the given connections
func DrawLandmarks(img *gocv.Mat, points []landmark.Point3, connections [][2]int, size int) {
	if size <= 0 {
		size = 1
	}
	for _, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		gocv.Circle(img, pt(p.XY()), size, ColorLandmark, size)
	}
	for _, c := range connections {
		if c[0] >= len(points) || c[1] >= len(points) {
			continue
		}
		gocv.Line(img, pt(points[c[0]].XY()), pt(points[c[1]].XY()), ColorConnection, size)
	}
}

// DrawFPS writes the FPS message in the bottom left corner
func DrawFPS(img *gocv.Mat, message string) {
	gocv.PutText(img, message, image.Pt(10, img.Rows()-10),
		gocv.FontHersheySimplex, 0.5, ColorFPS, 1)
}
