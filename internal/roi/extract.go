package roi

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/dudu/blazelive/internal/geometry"
)

// Quad is the ROI outline in source pixels. Corners are ordered as the
// images of patch corners (0,0), (0,P-1), (P-1,0), (P-1,P-1).
type Quad [4]geometry.Point

// Edges returns corner index pairs that outline the quad. The first edge
// runs along the patch's top row.
func (q Quad) Edges() [][2]int {
	return [][2]int{{0, 2}, {0, 1}, {1, 3}, {2, 3}}
}

// Batch holds one warped patch per ROI plus the inverse transforms needed to
// map landmark output back to source pixels
type Batch struct {
	Patches []gocv.Mat
	// Affines are patch->source transforms, one per patch
	Affines []geometry.Affine
	Boxes   []Quad
}

// Len returns the number of patches
func (b *Batch) Len() int {
	return len(b.Patches)
}

// Close releases the patch Mats
func (b *Batch) Close() error {
	for _, p := range b.Patches {
		p.Close()
	}
	b.Patches = nil
	return nil
}

// Transform returns the source->patch transform T and its inverse. T sends
// the ROI's unit-square corners (-1,-1), (-1,1), (1,-1) to patch pixels
// (0,0), (0,P-1), (P-1,0).
func Transform(r ROI, patchSize int) (toPatch, toSource geometry.Affine, err error) {
	if patchSize < 2 {
		return geometry.Affine{}, geometry.Affine{}, &geometry.InvalidInputError{Op: "roi transform", Reason: "patch size must be at least 2"}
	}
	if !geometry.Finite(r.XCenter, r.YCenter, r.Theta, r.Scale) || r.Scale <= 0 {
		return geometry.Affine{}, geometry.Affine{}, &geometry.InvalidInputError{Op: "roi transform", Reason: "invalid roi"}
	}

	k := r.Scale / float64(patchSize-1)
	c, s := math.Cos(r.Theta), math.Sin(r.Theta)
	half := r.Scale / 2

	toSource = geometry.Affine{
		k * c, -k * s, r.XCenter - half*(c-s),
		k * s, k * c, r.YCenter - half*(s+c),
	}
	toPatch, err = toSource.Invert()
	if err != nil {
		return geometry.Affine{}, geometry.Affine{}, err
	}
	return toPatch, toSource, nil
}

// Outline maps the patch corners back to source pixels
func Outline(toSource geometry.Affine, patchSize int) Quad {
	e := float64(patchSize - 1)
	return Quad{
		toSource.Apply(geometry.Point{X: 0, Y: 0}),
		toSource.Apply(geometry.Point{X: 0, Y: e}),
		toSource.Apply(geometry.Point{X: e, Y: 0}),
		toSource.Apply(geometry.Point{X: e, Y: e}),
	}
}

// Extract warps every ROI out of img into a patchSize x patchSize Mat using
// bilinear sampling with a zero border. The caller must Close the batch.
func Extract(img gocv.Mat, rois []ROI, patchSize int) (*Batch, error) {
	batch := &Batch{
		Patches: make([]gocv.Mat, 0, len(rois)),
		Affines: make([]geometry.Affine, 0, len(rois)),
		Boxes:   make([]Quad, 0, len(rois)),
	}
	if len(rois) == 0 {
		return batch, nil
	}
	if img.Empty() {
		return nil, &geometry.InvalidInputError{Op: "extract roi", Reason: "image is empty"}
	}

	for i, r := range rois {
		toPatch, toSource, err := Transform(r, patchSize)
		if err != nil {
			batch.Close()
			return nil, fmt.Errorf("roi %d: %w", i, err)
		}

		m := toPatch.ToMat()
		patch := gocv.NewMat()
		gocv.WarpAffine(img, &patch, m, image.Pt(patchSize, patchSize))
		m.Close()

		batch.Patches = append(batch.Patches, patch)
		batch.Affines = append(batch.Affines, toSource)
		batch.Boxes = append(batch.Boxes, Outline(toSource, patchSize))
	}

	return batch, nil
}
