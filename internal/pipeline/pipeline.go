package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/blazelive/internal/detector"
	"github.com/dudu/blazelive/internal/domain"
	"github.com/dudu/blazelive/internal/geometry"
	"github.com/dudu/blazelive/internal/inference"
	"github.com/dudu/blazelive/internal/landmark"
	"github.com/dudu/blazelive/internal/roi"
)

// DefaultPresenceThreshold is the landmark flag above which a set is drawn
const DefaultPresenceThreshold = 0.5

// Config holds pipeline configuration
type Config struct {
	Domain            domain.Config
	DetectorModelPath string
	LandmarkModelPath string
	Backend           Backend
	Threads           int
	PresenceThreshold float32
}

// Timing holds performance timing information
type Timing struct {
	Resize      time.Duration
	Detector    inference.StageTiming
	Extract     time.Duration
	Landmark    inference.StageTiming
	Denormalize time.Duration
	Annotate    time.Duration
	Total       time.Duration
}

// Profile formats the timing as a single [PROFILE] line
func (t Timing) Profile() string {
	return fmt.Sprintf("[PROFILE] Resize[%s] Detector[(%s) (%s) (%s)] Extract[%s] Landmark[(%s) (%s) (%s)] Denormalize[%s] Annotate[%s] Total[%s]",
		ms(t.Resize),
		ms(t.Detector.Pre), ms(t.Detector.Model), ms(t.Detector.Post),
		ms(t.Extract),
		ms(t.Landmark.Pre), ms(t.Landmark.Model), ms(t.Landmark.Post),
		ms(t.Denormalize), ms(t.Annotate), ms(t.Total))
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
}

// Result is everything one frame produced. Coordinates are source pixels.
type Result struct {
	Letterbox  detector.Letterbox
	Detections []detector.Detection
	ROIs       []roi.ROI
	Boxes      []roi.Quad
	Affines    []geometry.Affine
	Flags      []float32
	Landmarks  []landmark.Set

	// DetectorInput is the letterboxed RGB detector input
	DetectorInput gocv.Mat
	// Patches are the RGB landmark inputs, one per ROI
	Patches []gocv.Mat

	presence float32
}

// Present reports whether landmark set i passed the presence threshold
func (r *Result) Present(i int) bool {
	return i >= 0 && i < len(r.Flags) && r.Flags[i] > r.presence
}

// Close releases the Mats held by the result
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	r.DetectorInput.Close()
	for _, p := range r.Patches {
		p.Close()
	}
	r.Patches = nil
	return nil
}

// Pipeline runs detector -> ROI -> landmark on whole frames
type Pipeline struct {
	config   Config
	detector Detector
	landmark LandmarkModel
	hooks    Hooks

	mu         sync.Mutex
	lastTiming Timing
}

// New creates the ONNX-backed pipeline for one domain. inference.Initialize
// must have been called.
func New(config Config) (*Pipeline, error) {
	if err := config.Domain.Validate(); err != nil {
		return nil, err
	}

	opts := inference.Options{CoreML: config.Backend == BackendCoreML, Threads: config.Threads}

	detPath := config.DetectorModelPath
	if detPath == "" {
		detPath = config.Domain.Detector.DefaultModel
	}
	det, err := detector.NewBlaze(detPath, config.Domain.Detector, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	lmPath := config.LandmarkModelPath
	if lmPath == "" {
		lmPath = config.Domain.Landmark.DefaultModel
	}
	lm, err := landmark.NewModel(lmPath, config.Domain.Landmark, opts)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("failed to create landmark model: %w", err)
	}

	return NewWithModels(config, det, lm, nil), nil
}

// NewWithModels assembles a pipeline from existing models. Close still closes them.
func NewWithModels(config Config, det Detector, lm LandmarkModel, hooks Hooks) *Pipeline {
	if config.PresenceThreshold == 0 {
		config.PresenceThreshold = DefaultPresenceThreshold
	}
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Pipeline{
		config:   config,
		detector: det,
		landmark: lm,
		hooks:    hooks,
	}
}

// SetHooks replaces the stage observer
func (p *Pipeline) SetHooks(h Hooks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h == nil {
		h = NopHooks{}
	}
	p.hooks = h
}

// Domain returns the domain configuration the pipeline runs
func (p *Pipeline) Domain() domain.Config {
	return p.config.Domain
}

// Detector exposes the region detector, e.g. for the score display
func (p *Pipeline) Detector() Detector {
	return p.detector
}

// SetMinScore forwards a new detection threshold to the detector
func (p *Pipeline) SetMinScore(score float32) {
	p.detector.SetMinScore(score)
}

// Process runs the full two-stage pipeline on a BGR frame. The caller must
// Close the result. Zero detections yield an empty result, not an error.
func (p *Pipeline) Process(frame gocv.Mat) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if frame.Empty() {
		return nil, &geometry.InvalidInputError{Op: "process frame", Reason: "frame is empty"}
	}

	totalStart := time.Now()
	var timing Timing
	res := &Result{presence: p.config.PresenceThreshold}

	start := time.Now()
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(frame, &rgb, gocv.ColorBGRToRGB)

	padded, lb, err := p.detector.ResizePad(rgb)
	if err != nil {
		padded.Close()
		return nil, fmt.Errorf("resize pad failed: %w", err)
	}
	res.DetectorInput = padded
	res.Letterbox = lb
	timing.Resize = time.Since(start)
	p.hooks.Observe(StageResize, timing.Resize)

	start = time.Now()
	normalized, err := p.detector.PredictOnImage(padded)
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	timing.Detector = stageTiming(p.detector, time.Since(start))
	p.hooks.Observe(StageDetect, time.Since(start))

	start = time.Now()
	res.Detections = detector.Denormalize(normalized, lb)
	res.ROIs, err = roi.FromDetections(res.Detections, p.config.Domain.ROI)
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("roi derivation failed: %w", err)
	}
	p.hooks.Observe(StageROI, time.Since(start))

	extractStart := time.Now()
	batch, err := roi.Extract(rgb, res.ROIs, p.config.Domain.Landmark.Resolution)
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("roi extraction failed: %w", err)
	}
	res.Patches = batch.Patches
	res.Affines = batch.Affines
	res.Boxes = batch.Boxes
	timing.Extract = time.Since(extractStart)
	p.hooks.Observe(StageExtract, timing.Extract)

	res.Flags = []float32{}
	res.Landmarks = []landmark.Set{}
	if len(res.Patches) > 0 {
		start = time.Now()
		flags, sets, err := p.landmark.Predict(res.Patches)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("landmark prediction failed: %w", err)
		}
		timing.Landmark = stageTiming(p.landmark, time.Since(start))
		p.hooks.Observe(StageLandmark, time.Since(start))

		start = time.Now()
		res.Flags = flags
		res.Landmarks, err = landmark.Denormalize(sets, res.Affines,
			p.config.Domain.Landmark.Resolution, p.config.Domain.Landmark.ZScaling)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("landmark denormalization failed: %w", err)
		}
		timing.Denormalize = time.Since(start)
		p.hooks.Observe(StageDenormalize, timing.Denormalize)
	}

	timing.Total = time.Since(totalStart)
	p.lastTiming = timing

	return res, nil
}

// stageTiming uses the model's own split when it reports one
func stageTiming(m any, elapsed time.Duration) inference.StageTiming {
	if t, ok := m.(stageTimer); ok {
		return t.LastTiming()
	}
	return inference.StageTiming{Model: elapsed}
}

// LastTiming returns timing from last Process call
func (p *Pipeline) LastTiming() Timing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTiming
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	var errs []error

	if p.detector != nil {
		if err := p.detector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("detector: %w", err))
		}
	}
	if p.landmark != nil {
		if err := p.landmark.Close(); err != nil {
			errs = append(errs, fmt.Errorf("landmark model: %w", err))
		}
	}

	return errors.Join(errs...)
}
