package detector

import (
	"fmt"
	"math"

	"github.com/dudu/blazelive/internal/domain"
	"github.com/dudu/blazelive/internal/geometry"
)

// decodeBoxes turns raw regressor output into normalized detections.
// raw holds numCoords values per anchor; scores holds one logit per anchor.
// Detections scoring below minScore are dropped; sigmoid scores for every
// anchor are returned for the scores display.
func decodeBoxes(raw, logits []float32, anchors []Anchor, spec domain.DetectorSpec, minScore float32) ([]Detection, []float32, error) {
	numCoords := spec.NumCoords()
	if len(anchors) == 0 {
		return nil, nil, fmt.Errorf("no anchors")
	}
	if len(raw) < len(anchors)*numCoords {
		return nil, nil, fmt.Errorf("regressor output has %d values, want %d", len(raw), len(anchors)*numCoords)
	}
	if len(logits) < len(anchors) {
		return nil, nil, fmt.Errorf("score output has %d values, want %d", len(logits), len(anchors))
	}

	scale := float64(spec.InputSize)
	scores := make([]float32, len(anchors))
	var dets []Detection

	for i, a := range anchors {
		score := sigmoid(clip(logits[i], spec.ScoreClipping))
		scores[i] = score
		if score < minScore {
			continue
		}

		r := raw[i*numCoords : (i+1)*numCoords]
		xCenter := float64(r[0])/scale*a.W + a.XCenter
		yCenter := float64(r[1])/scale*a.H + a.YCenter
		w := float64(r[2]) / scale * a.W
		h := float64(r[3]) / scale * a.H

		kps := make([]geometry.Point, spec.NumKeypoints)
		for k := range kps {
			off := 4 + 2*k
			kps[k] = geometry.Point{
				X: float64(r[off])/scale*a.W + a.XCenter,
				Y: float64(r[off+1])/scale*a.H + a.YCenter,
			}
		}

		dets = append(dets, Detection{
			BoundingBox: BoundingBox{
				X1: xCenter - w/2,
				Y1: yCenter - h/2,
				X2: xCenter + w/2,
				Y2: yCenter + h/2,
			},
			Keypoints: kps,
			Score:     score,
		})
	}

	return dets, scores, nil
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

func clip(x, limit float32) float32 {
	if limit <= 0 {
		return x
	}
	if x < -limit {
		return -limit
	}
	if x > limit {
		return limit
	}
	return x
}
