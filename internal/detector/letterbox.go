package detector

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/dudu/blazelive/internal/geometry"
)

// Letterbox records how a source image was fitted into the square detector input
type Letterbox struct {
	Size          int     // detector input side S
	Width, Height int     // source image size
	Scale         float64 // S / max(Width, Height)
	ResizedWidth  int
	ResizedHeight int
	PadX, PadY    int // left and top padding in detector pixels
}

// NewLetterbox computes the resize and padding for a width x height image.
// The longer side maps exactly to size; the remainder of the shorter side is
// padded symmetrically with the odd pixel going to the bottom/right.
func NewLetterbox(width, height, size int) (Letterbox, error) {
	if width <= 0 || height <= 0 {
		return Letterbox{}, &geometry.InvalidInputError{Op: "letterbox", Reason: "image has a zero dimension"}
	}
	if size <= 0 {
		return Letterbox{}, &geometry.InvalidInputError{Op: "letterbox", Reason: "detector input size must be positive"}
	}

	lb := Letterbox{Size: size, Width: width, Height: height}
	if height >= width {
		lb.ResizedHeight = size
		lb.ResizedWidth = size * width / height
		lb.Scale = float64(size) / float64(height)
	} else {
		lb.ResizedWidth = size
		lb.ResizedHeight = size * height / width
		lb.Scale = float64(size) / float64(width)
	}
	if lb.ResizedWidth == 0 {
		lb.ResizedWidth = 1
	}
	if lb.ResizedHeight == 0 {
		lb.ResizedHeight = 1
	}

	lb.PadX = (size - lb.ResizedWidth) / 2
	lb.PadY = (size - lb.ResizedHeight) / 2
	return lb, nil
}

// SourcePadding returns the padding expressed in source pixels
func (l Letterbox) SourcePadding() (float64, float64) {
	return float64(l.PadX) / l.Scale, float64(l.PadY) / l.Scale
}

// Denormalize maps a point normalized to the detector input back to source pixels
func (l Letterbox) Denormalize(p geometry.Point) geometry.Point {
	s := float64(l.Size)
	return geometry.Point{
		X: (p.X*s - float64(l.PadX)) / l.Scale,
		Y: (p.Y*s - float64(l.PadY)) / l.Scale,
	}
}

// Normalize is the forward map of Denormalize
func (l Letterbox) Normalize(p geometry.Point) geometry.Point {
	s := float64(l.Size)
	return geometry.Point{
		X: (p.X*l.Scale + float64(l.PadX)) / s,
		Y: (p.Y*l.Scale + float64(l.PadY)) / s,
	}
}

// ResizePad letterboxes img into a size x size Mat (caller must Close)
func ResizePad(img gocv.Mat, size int) (gocv.Mat, Letterbox, error) {
	if img.Empty() {
		return gocv.NewMat(), Letterbox{}, &geometry.InvalidInputError{Op: "resize pad", Reason: "image is empty"}
	}

	lb, err := NewLetterbox(img.Cols(), img.Rows(), size)
	if err != nil {
		return gocv.NewMat(), Letterbox{}, err
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(lb.ResizedWidth, lb.ResizedHeight), 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMat()
	gocv.CopyMakeBorder(resized, &padded,
		lb.PadY, size-lb.ResizedHeight-lb.PadY,
		lb.PadX, size-lb.ResizedWidth-lb.PadX,
		gocv.BorderConstant, color.RGBA{})

	return padded, lb, nil
}

// Denormalize maps detections from the letterboxed detector space to source
// pixels. Scores pass through. The input slice is not modified.
func Denormalize(dets []Detection, lb Letterbox) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		p1 := lb.Denormalize(geometry.Point{X: d.BoundingBox.X1, Y: d.BoundingBox.Y1})
		p2 := lb.Denormalize(geometry.Point{X: d.BoundingBox.X2, Y: d.BoundingBox.Y2})

		kps := make([]geometry.Point, len(d.Keypoints))
		for i, kp := range d.Keypoints {
			kps[i] = lb.Denormalize(kp)
		}

		out = append(out, Detection{
			BoundingBox: BoundingBox{X1: p1.X, Y1: p1.Y, X2: p2.X, Y2: p2.Y},
			Keypoints:   kps,
			Score:       d.Score,
		})
	}
	return out
}
