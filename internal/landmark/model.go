package landmark

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/blazelive/internal/domain"
	"github.com/dudu/blazelive/internal/inference"
)

// Model runs a Blaze hand/face/pose landmark regressor on ROI patches
type Model struct {
	session *inference.Session
	spec    domain.LandmarkSpec

	mu         sync.Mutex
	lastTiming inference.StageTiming
}

// NewModel creates a landmark model for the given domain landmark spec
func NewModel(modelPath string, spec domain.LandmarkSpec, opts inference.Options) (*Model, error) {
	session, err := inference.NewSession(modelPath,
		[]string{spec.InputName},
		[]string{spec.FlagOutput, spec.LandmarkOutput},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s session: %w", spec.Type, err)
	}

	log.WithFields(log.Fields{
		"landmark":   spec.Type,
		"resolution": spec.Resolution,
		"points":     spec.NumLandmarks,
	}).Info("landmark model loaded")

	return &Model{session: session, spec: spec}, nil
}

// Predict runs the model on RGB patches and returns presence flags and
// patch-normalized landmark sets, one per patch
func (m *Model) Predict(patches []gocv.Mat) ([]float32, []Set, error) {
	flags := make([]float32, 0, len(patches))
	sets := make([]Set, 0, len(patches))

	var timing inference.StageTiming
	res := int64(m.spec.Resolution)

	for i, patch := range patches {
		if patch.Rows() != m.spec.Resolution || patch.Cols() != m.spec.Resolution {
			return nil, nil, fmt.Errorf("patch %d is %dx%d, model expects %dx%d",
				i, patch.Cols(), patch.Rows(), m.spec.Resolution, m.spec.Resolution)
		}

		start := time.Now()
		data := inference.BlobFromRGB(patch, m.spec.InputMean, m.spec.InputStd)
		timing.Pre += time.Since(start)

		start = time.Now()
		outputs, err := m.session.RunFloat32([]int64{1, 3, res, res}, data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s patch %d: %w", m.spec.Type, i, err)
		}
		timing.Model += time.Since(start)

		start = time.Now()
		set, err := decodeSet(outputs[0], outputs[1], m.spec)
		if err != nil {
			return nil, nil, fmt.Errorf("%s patch %d: %w", m.spec.Type, i, err)
		}
		flags = append(flags, set.Presence)
		sets = append(sets, set)
		timing.Post += time.Since(start)
	}

	m.mu.Lock()
	m.lastTiming = timing
	m.mu.Unlock()

	return flags, sets, nil
}

// decodeSet reshapes one flat landmark output into a Set normalized to [0,1]
func decodeSet(flag, raw []float32, spec domain.LandmarkSpec) (Set, error) {
	dims := spec.Dims
	want := spec.NumLandmarks * dims
	if len(raw) < want {
		return Set{}, fmt.Errorf("landmark output has %d values, want %d", len(raw), want)
	}
	if len(flag) == 0 {
		return Set{}, fmt.Errorf("empty presence flag output")
	}

	scale := float64(spec.OutputScale)
	if scale == 0 {
		scale = 1
	}

	pts := make([]Point3, spec.NumLandmarks)
	for i := range pts {
		v := raw[i*dims : (i+1)*dims]
		pts[i] = Point3{X: float64(v[0]) / scale, Y: float64(v[1]) / scale}
		if dims > 2 {
			pts[i].Z = float64(v[2]) / scale
		}
	}

	return Set{Points: pts, Presence: flag[0]}, nil
}

// LastTiming returns the summed stage timing of the last Predict call
func (m *Model) LastTiming() inference.StageTiming {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTiming
}

// Close releases model resources
func (m *Model) Close() error {
	return m.session.Destroy()
}
