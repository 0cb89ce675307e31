package detector

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/blazelive/internal/domain"
	"github.com/dudu/blazelive/internal/inference"
)

// Blaze runs a BlazePalm/BlazeFace/BlazePose style SSD detector
type Blaze struct {
	session *inference.Session
	spec    domain.DetectorSpec
	anchors []Anchor

	mu         sync.Mutex
	minScore   float32
	lastScores []float32
	lastTiming inference.StageTiming
}

// NewBlaze creates a detector for the given domain detector spec
func NewBlaze(modelPath string, spec domain.DetectorSpec, opts inference.Options) (*Blaze, error) {
	anchors := GenerateAnchors(spec.Anchors, spec.InputSize)
	if spec.NumAnchors > 0 && len(anchors) != spec.NumAnchors {
		return nil, fmt.Errorf("%s: generated %d anchors, model expects %d", spec.Type, len(anchors), spec.NumAnchors)
	}

	session, err := inference.NewSession(modelPath,
		[]string{spec.InputName},
		[]string{spec.RegressorsOutput, spec.ScoresOutput},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s session: %w", spec.Type, err)
	}

	log.WithFields(log.Fields{
		"detector": spec.Type,
		"anchors":  len(anchors),
		"input":    spec.InputSize,
	}).Info("detector loaded")

	return &Blaze{
		session:  session,
		spec:     spec,
		anchors:  anchors,
		minScore: spec.MinScore,
	}, nil
}

// ResizePad letterboxes an RGB frame to the detector input size
func (b *Blaze) ResizePad(img gocv.Mat) (gocv.Mat, Letterbox, error) {
	return ResizePad(img, b.spec.InputSize)
}

// PredictOnImage runs the detector on a letterboxed RGB image and returns
// detections normalized to the detector input
func (b *Blaze) PredictOnImage(img gocv.Mat) ([]Detection, error) {
	if img.Rows() != b.spec.InputSize || img.Cols() != b.spec.InputSize {
		return nil, fmt.Errorf("detector expects %dx%d input, got %dx%d",
			b.spec.InputSize, b.spec.InputSize, img.Cols(), img.Rows())
	}

	var timing inference.StageTiming

	start := time.Now()
	data := inference.BlobFromRGB(img, b.spec.InputMean, b.spec.InputStd)
	timing.Pre = time.Since(start)

	start = time.Now()
	size := int64(b.spec.InputSize)
	outputs, err := b.session.RunFloat32([]int64{1, 3, size, size}, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.spec.Type, err)
	}
	timing.Model = time.Since(start)

	start = time.Now()
	b.mu.Lock()
	minScore := b.minScore
	b.mu.Unlock()

	dets, scores, err := decodeBoxes(outputs[0], outputs[1], b.anchors, b.spec, minScore)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to decode output: %w", b.spec.Type, err)
	}
	dets = weightedNMS(dets, b.spec.MinSuppression)
	timing.Post = time.Since(start)

	b.mu.Lock()
	b.lastScores = scores
	b.lastTiming = timing
	b.mu.Unlock()

	log.WithFields(log.Fields{
		"detector":   b.spec.Type,
		"detections": len(dets),
	}).Debug("detector pass")

	return dets, nil
}

// SetMinScore changes the score threshold used from the next frame on
func (b *Blaze) SetMinScore(score float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.minScore = score
}

// MinScore returns the current score threshold
func (b *Blaze) MinScore() float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.minScore
}

// Scores returns the sigmoid score of every anchor from the last frame
func (b *Blaze) Scores() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastScores
}

// LastTiming returns timing from the last PredictOnImage call
func (b *Blaze) LastTiming() inference.StageTiming {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastTiming
}

// Close releases detector resources
func (b *Blaze) Close() error {
	return b.session.Destroy()
}
