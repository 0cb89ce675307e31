package inference

import (
	"fmt"
	"image"
	"math"
	"os"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

// DefaultLibraryPath is used when neither the caller nor BLAZE_ORT_LIB names one
const DefaultLibraryPath = "lib/libonnxruntime.so"

var (
	initialized bool
	initMu      sync.Mutex
)

// LibraryPath resolves the onnxruntime shared library location
func LibraryPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("BLAZE_ORT_LIB"); env != "" {
		return env
	}
	return DefaultLibraryPath
}

// Initialize sets up ONNX Runtime environment (call once at startup)
func Initialize(libPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	ort.SetSharedLibraryPath(LibraryPath(libPath))

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// StageTiming splits one model call into preprocessing, inference and decoding
type StageTiming struct {
	Pre   time.Duration
	Model time.Duration
	Post  time.Duration
}

// Options tunes a session
type Options struct {
	// CoreML requests the CoreML execution provider, falling back to CPU
	CoreML  bool
	Threads int
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession creates a new inference session from an ONNX model
func NewSession(modelPath string, inputNames, outputNames []string, opts Options) (*Session, error) {
	if !initialized {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("failed to set thread count: %w", err)
	}

	if opts.CoreML {
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			log.WithField("model", modelPath).Warnf("CoreML unavailable, using CPU: %v", err)
		} else {
			log.WithField("model", modelPath).Info("CoreML execution provider enabled")
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	log.WithField("model", modelPath).Debug("inference session created")

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run executes inference with the given inputs. Nil entries in outputs are
// allocated by the runtime and must be destroyed by the caller.
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// RunFloat32 runs a single-input model and returns every output as a flat
// float32 slice in outputNames order.
func (s *Session) RunFloat32(shape []int64, data []float32) ([][]float32, error) {
	input, err := ort.NewTensor(ort.NewShape(shape...), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := make([]ort.Value, len(s.outputNames))
	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed for %s: %w", s.modelPath, err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	result := make([][]float32, len(outputs))
	for i, o := range outputs {
		t, ok := o.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %s is not a float32 tensor", s.outputNames[i])
		}
		result[i] = append([]float32(nil), t.GetData()...)
	}
	return result, nil
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// BlobFromRGB converts an RGB uint8 Mat into NCHW float32 data as (x - mean) / std
func BlobFromRGB(img gocv.Mat, mean, std float32) []float32 {
	if std == 0 {
		std = 1
	}
	blob := gocv.BlobFromImage(img, 1.0/float64(std), image.Pt(img.Cols(), img.Rows()),
		gocv.NewScalar(float64(mean), float64(mean), float64(mean), 0), false, false)
	defer blob.Close()

	return bytesToFloat32(blob.ToBytes())
}

func bytesToFloat32(data []byte) []float32 {
	result := make([]float32, len(data)/4)
	for i := range result {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		result[i] = math.Float32frombits(bits)
	}
	return result
}
