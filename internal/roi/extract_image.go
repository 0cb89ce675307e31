package roi

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/dudu/blazelive/internal/geometry"
)

// ImageBatch is the pure Go counterpart of Batch, used where no OpenCV Mat
// is available (HTTP uploads, still images)
type ImageBatch struct {
	Patches []*image.RGBA
	Affines []geometry.Affine
	Boxes   []Quad
}

// ExtractImage crops every ROI out of img with bilinear sampling. Pixels
// outside the source stay transparent black.
func ExtractImage(img image.Image, rois []ROI, patchSize int) (*ImageBatch, error) {
	batch := &ImageBatch{
		Patches: make([]*image.RGBA, 0, len(rois)),
		Affines: make([]geometry.Affine, 0, len(rois)),
		Boxes:   make([]Quad, 0, len(rois)),
	}
	if len(rois) == 0 {
		return batch, nil
	}
	if img == nil || img.Bounds().Empty() {
		return nil, &geometry.InvalidInputError{Op: "extract roi", Reason: "image is empty"}
	}

	b := img.Bounds()
	for i, r := range rois {
		toPatch, toSource, err := Transform(r, patchSize)
		if err != nil {
			return nil, fmt.Errorf("roi %d: %w", i, err)
		}

		patch := image.NewRGBA(image.Rect(0, 0, patchSize, patchSize))
		draw.BiLinear.Transform(patch, pixelCenterAff3(toPatch, b.Min), img, b, draw.Src, nil)

		batch.Patches = append(batch.Patches, patch)
		batch.Affines = append(batch.Affines, toSource)
		batch.Boxes = append(batch.Boxes, Outline(toSource, patchSize))
	}

	return batch, nil
}

// pixelCenterAff3 converts a transform on integer pixel indices (OpenCV
// convention) into the half-pixel-center convention used by x/image/draw,
// shifting the source so that origin is at its bounds minimum.
func pixelCenterAff3(a geometry.Affine, origin image.Point) f64.Aff3 {
	ox, oy := float64(origin.X)+0.5, float64(origin.Y)+0.5
	return f64.Aff3{
		a[0], a[1], a[2] - a[0]*ox - a[1]*oy + 0.5,
		a[3], a[4], a[5] - a[3]*ox - a[4]*oy + 0.5,
	}
}
