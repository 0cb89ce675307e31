package detector

import (
	"sort"

	"github.com/dudu/blazelive/internal/geometry"
)

// weightedNMS performs weighted Non-Maximum Suppression. Instead of dropping
// overlapping detections, each cluster is replaced by the score-weighted
// average of its coordinates, carrying the mean cluster score.
func weightedNMS(dets []Detection, iouThreshold float32) []Detection {
	if len(dets) == 0 {
		return []Detection{}
	}

	// Sort by score (descending)
	remaining := make([]int, len(dets))
	for i := range remaining {
		remaining[i] = i
	}
	sort.SliceStable(remaining, func(i, j int) bool {
		return dets[remaining[i]].Score > dets[remaining[j]].Score
	})

	result := make([]Detection, 0, len(dets))
	for len(remaining) > 0 {
		first := dets[remaining[0]]

		var overlapping, rest []int
		for _, idx := range remaining {
			if iou(first.BoundingBox, dets[idx].BoundingBox) > iouThreshold {
				overlapping = append(overlapping, idx)
			} else {
				rest = append(rest, idx)
			}
		}
		// a degenerate box never overlaps itself; keep it on its own
		if len(overlapping) == 0 {
			overlapping = []int{remaining[0]}
			rest = rest[1:]
		}
		remaining = rest

		weighted := first.Clone()
		if len(overlapping) > 1 {
			var total float64
			var box BoundingBox
			kps := make([]geometry.Point, len(first.Keypoints))

			for _, idx := range overlapping {
				d := dets[idx]
				w := float64(d.Score)
				total += w
				box.X1 += d.BoundingBox.X1 * w
				box.Y1 += d.BoundingBox.Y1 * w
				box.X2 += d.BoundingBox.X2 * w
				box.Y2 += d.BoundingBox.Y2 * w
				for k := range kps {
					if k < len(d.Keypoints) {
						kps[k].X += d.Keypoints[k].X * w
						kps[k].Y += d.Keypoints[k].Y * w
					}
				}
			}

			if total > 0 {
				box.X1 /= total
				box.Y1 /= total
				box.X2 /= total
				box.Y2 /= total
				for k := range kps {
					kps[k].X /= total
					kps[k].Y /= total
				}
				weighted.BoundingBox = box
				weighted.Keypoints = kps
			}
			weighted.Score = float32(total / float64(len(overlapping)))
		}

		result = append(result, weighted)
	}

	return result
}

// iou calculates Intersection over Union of two bounding boxes
func iou(a, b BoundingBox) float32 {
	x1 := max64(a.X1, b.X1)
	y1 := max64(a.Y1, b.Y1)
	x2 := min64(a.X2, b.X2)
	y2 := min64(a.Y2, b.Y2)

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection

	if union <= 0 {
		return 0
	}

	return float32(intersection / union)
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
