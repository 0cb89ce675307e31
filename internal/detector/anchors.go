package detector

import (
	"math"

	"github.com/dudu/blazelive/internal/domain"
)

// Anchor is an SSD prior box in normalized input coordinates
type Anchor struct {
	XCenter, YCenter float64
	W, H             float64
}

// GenerateAnchors builds the SSD anchor grid for a square detector input.
// Consecutive layers sharing a stride are merged into one feature map.
func GenerateAnchors(opts domain.Anchors, inputSize int) []Anchor {
	var anchors []Anchor
	numStrides := len(opts.Strides)

	layer := 0
	for layer < numStrides {
		var heights, widths, ratios, scales []float64

		last := layer
		for last < numStrides && opts.Strides[last] == opts.Strides[layer] {
			scale := anchorScale(opts.MinScale, opts.MaxScale, last, numStrides)
			if last == 0 && opts.ReduceInLowestLayer {
				ratios = append(ratios, 1.0, 2.0, 0.5)
				scales = append(scales, 0.1, scale, scale)
			} else {
				for _, ar := range opts.AspectRatios {
					ratios = append(ratios, ar)
					scales = append(scales, scale)
				}
				if opts.InterpolatedScaleAR > 0 {
					next := 1.0
					if last != numStrides-1 {
						next = anchorScale(opts.MinScale, opts.MaxScale, last+1, numStrides)
					}
					scales = append(scales, math.Sqrt(scale*next))
					ratios = append(ratios, opts.InterpolatedScaleAR)
				}
			}
			last++
		}

		for i, r := range ratios {
			sq := math.Sqrt(r)
			heights = append(heights, scales[i]/sq)
			widths = append(widths, scales[i]*sq)
		}

		stride := opts.Strides[layer]
		fmH := int(math.Ceil(float64(inputSize) / float64(stride)))
		fmW := fmH

		for y := 0; y < fmH; y++ {
			for x := 0; x < fmW; x++ {
				for i := range heights {
					a := Anchor{
						XCenter: (float64(x) + opts.OffsetX) / float64(fmW),
						YCenter: (float64(y) + opts.OffsetY) / float64(fmH),
						W:       1,
						H:       1,
					}
					if !opts.FixedAnchorSize {
						a.W = widths[i]
						a.H = heights[i]
					}
					anchors = append(anchors, a)
				}
			}
		}

		layer = last
	}

	return anchors
}

func anchorScale(minScale, maxScale float64, idx, n int) float64 {
	if n == 1 {
		return (minScale + maxScale) * 0.5
	}
	return minScale + (maxScale-minScale)*float64(idx)/float64(n-1)
}
