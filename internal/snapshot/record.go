// Package snapshot saves captured frames and a msgpack sidecar describing
// what the pipeline found in them.
package snapshot

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dudu/blazelive/internal/pipeline"
)

// Detection is the wire form of one detection in source pixels
type Detection struct {
	Box       [4]float64   `msgpack:"box" json:"box"` // x1, y1, x2, y2
	Keypoints [][2]float64 `msgpack:"kp" json:"keypoints"`
	Score     float32      `msgpack:"s" json:"score"`
}

// ROI is the wire form of one rotated region of interest
type ROI struct {
	XCenter float64       `msgpack:"xc" json:"x_center"`
	YCenter float64       `msgpack:"yc" json:"y_center"`
	Theta   float64       `msgpack:"t" json:"theta"`
	Scale   float64       `msgpack:"sc" json:"scale"`
	Corners [4][2]float64 `msgpack:"q" json:"corners"`
}

// Landmarks is the wire form of one landmark set
type Landmarks struct {
	Points   [][3]float64 `msgpack:"p" json:"points"`
	Presence float32      `msgpack:"f" json:"presence"`
}

// Record describes one processed frame
type Record struct {
	Domain     string      `msgpack:"domain" json:"domain"`
	Frame      int         `msgpack:"frame" json:"frame"`
	Width      int         `msgpack:"w" json:"width"`
	Height     int         `msgpack:"h" json:"height"`
	Detections []Detection `msgpack:"detections" json:"detections"`
	ROIs       []ROI       `msgpack:"rois" json:"rois"`
	Landmarks  []Landmarks `msgpack:"landmarks" json:"landmarks"`
}

// FromResult converts a pipeline result
func FromResult(domainName string, frame int, res *pipeline.Result) Record {
	rec := Record{
		Domain:     domainName,
		Frame:      frame,
		Width:      res.Letterbox.Width,
		Height:     res.Letterbox.Height,
		Detections: make([]Detection, 0, len(res.Detections)),
		ROIs:       make([]ROI, 0, len(res.ROIs)),
		Landmarks:  make([]Landmarks, 0, len(res.Landmarks)),
	}

	for _, d := range res.Detections {
		det := Detection{
			Box:   [4]float64{d.BoundingBox.X1, d.BoundingBox.Y1, d.BoundingBox.X2, d.BoundingBox.Y2},
			Score: d.Score,
		}
		for _, kp := range d.Keypoints {
			det.Keypoints = append(det.Keypoints, [2]float64{kp.X, kp.Y})
		}
		rec.Detections = append(rec.Detections, det)
	}

	for i, r := range res.ROIs {
		out := ROI{XCenter: r.XCenter, YCenter: r.YCenter, Theta: r.Theta, Scale: r.Scale}
		if i < len(res.Boxes) {
			for c, p := range res.Boxes[i] {
				out.Corners[c] = [2]float64{p.X, p.Y}
			}
		}
		rec.ROIs = append(rec.ROIs, out)
	}

	for _, set := range res.Landmarks {
		lm := Landmarks{Presence: set.Presence, Points: make([][3]float64, len(set.Points))}
		for j, p := range set.Points {
			lm.Points[j] = [3]float64{p.X, p.Y, p.Z}
		}
		rec.Landmarks = append(rec.Landmarks, lm)
	}

	return rec
}

// Marshal encodes the record with msgpack
func (r Record) Marshal() ([]byte, error) {
	data, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a msgpack record
func Unmarshal(data []byte) (Record, error) {
	var r Record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return r, nil
}
