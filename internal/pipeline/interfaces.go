package pipeline

import (
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/blazelive/internal/detector"
	"github.com/dudu/blazelive/internal/inference"
	"github.com/dudu/blazelive/internal/landmark"
)

// Backend represents the inference backend to use
type Backend string

const (
	BackendONNX   Backend = "onnx"
	BackendCoreML Backend = "coreml"
)

// Detector finds candidate regions on a letterboxed RGB image
type Detector interface {
	ResizePad(img gocv.Mat) (gocv.Mat, detector.Letterbox, error)
	PredictOnImage(img gocv.Mat) ([]detector.Detection, error)
	SetMinScore(score float32)
	Close() error
}

// LandmarkModel regresses landmarks on square RGB patches
type LandmarkModel interface {
	Predict(patches []gocv.Mat) ([]float32, []landmark.Set, error)
	Close() error
}

// stageTimer is implemented by models that split their own timing into
// pre/model/post
type stageTimer interface {
	LastTiming() inference.StageTiming
}

// Stage names a pipeline step
type Stage string

const (
	StageResize      Stage = "resize"
	StageDetect      Stage = "detect"
	StageROI         Stage = "roi"
	StageExtract     Stage = "extract"
	StageLandmark    Stage = "landmark"
	StageDenormalize Stage = "denormalize"
)

// Hooks observe each stage of a frame as it completes
type Hooks interface {
	Observe(stage Stage, elapsed time.Duration)
}

// NopHooks ignores every observation
type NopHooks struct{}

func (NopHooks) Observe(Stage, time.Duration) {}

// LogHooks writes one debug entry per stage
type LogHooks struct {
	Logger *log.Logger
}

func (h LogHooks) Observe(stage Stage, elapsed time.Duration) {
	logger := h.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger.WithFields(log.Fields{
		"stage":   stage,
		"elapsed": elapsed,
	}).Debug("stage done")
}
