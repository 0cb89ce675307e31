package ui

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/dudu/blazelive/internal/domain"
	"github.com/dudu/blazelive/internal/pipeline"
)

// Window titles for the secondary displays
const (
	DebugTitleSuffix = " Debug"
	ScoresTitle      = "Detection Scores (sigmoid)"
)

// Annotate draws landmarks, ROI outlines and detections of res onto a BGR frame
func Annotate(img *gocv.Mat, res *pipeline.Result, cfg domain.Config) {
	for i, set := range res.Landmarks {
		if !res.Present(i) {
			continue
		}
		DrawLandmarks(img, set.Points, cfg.ConnectionsFor(len(set.Points)), cfg.PointSize)
	}
	DrawROI(img, res.Boxes)
	DrawDetections(img, res.Detections)
}

// DebugPane shows the detector input scaled to the landmark resolution next
// to every ROI patch. A lone detector input gets a blank pane beside it so
// the window keeps a landscape shape. Inputs are RGB; the result is BGR and
// must be closed by the caller.
func DebugPane(detectorInput gocv.Mat, patches []gocv.Mat, resolution int) gocv.Mat {
	pane := gocv.NewMat()
	gocv.Resize(detectorInput, &pane, image.Pt(resolution, resolution), 0, 0, gocv.InterpolationLinear)

	for _, p := range patches {
		next := gocv.NewMat()
		gocv.Hconcat(pane, p, &next)
		pane.Close()
		pane = next
	}

	if pane.Rows() == pane.Cols() {
		blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), pane.Rows(), pane.Cols(), pane.Type())
		next := gocv.NewMat()
		gocv.Hconcat(pane, blank, &next)
		blank.Close()
		pane.Close()
		pane = next
	}

	gocv.CvtColor(pane, &pane, gocv.ColorRGBToBGR)
	return pane
}

// Scores plot geometry
const (
	scoresWidth  = 800
	scoresHeight = 240
	scoresMargin = 20
)

// ScoresPlot renders per-anchor sigmoid scores as a line plot with the
// detection threshold in red. The caller must close the result.
func ScoresPlot(scores []float32, minScore float32) gocv.Mat {
	plot := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), scoresHeight, scoresWidth, gocv.MatTypeCV8UC3)

	h := float64(scoresHeight - 2*scoresMargin)
	w := float64(scoresWidth - 2*scoresMargin)
	y := func(s float32) int {
		return scoresMargin + int(h*(1-float64(s)))
	}

	gocv.Line(&plot, image.Pt(scoresMargin, y(minScore)), image.Pt(scoresWidth-scoresMargin, y(minScore)),
		color.RGBA{R: 255, A: 255}, 1)

	if len(scores) > 1 {
		prev := image.Pt(scoresMargin, y(scores[0]))
		for i := 1; i < len(scores); i++ {
			x := scoresMargin + int(w*float64(i)/float64(len(scores)-1))
			cur := image.Pt(x, y(scores[i]))
			gocv.Line(&plot, prev, cur, color.RGBA{B: 255, A: 255}, 1)
			prev = cur
		}
	}
	return plot
}
