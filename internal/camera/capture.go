package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Default capture size requested from USB cameras
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Capture manages webcam or video file capture
type Capture struct {
	webcam *gocv.VideoCapture
	source string
	width  int
	height int
	mu     sync.Mutex
}

// Open resolves source and opens it at width x height, or 640x480 when
// either is zero. An empty source picks the first uvcvideo camera, falling
// back to index 0. A number is a device index; anything else is a device or
// file path.
func Open(ctx context.Context, source string, width, height int) (*Capture, error) {
	source = NewDiscoverer().Resolve(ctx, source)
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	return NewCaptureWithResolution(source, width, height)
}

// NewCaptureWithResolution opens source and requests the given frame size.
// Files ignore the request.
func NewCaptureWithResolution(source string, width, height int) (*Capture, error) {
	var device interface{} = source
	if id, err := strconv.Atoi(source); err == nil {
		device = id
	}

	webcam, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", source, err)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))

	// Get actual dimensions (camera may not support requested resolution)
	actualWidth := int(webcam.Get(gocv.VideoCaptureFrameWidth))
	actualHeight := int(webcam.Get(gocv.VideoCaptureFrameHeight))

	log.WithFields(log.Fields{
		"source": source,
		"width":  actualWidth,
		"height": actualHeight,
	}).Debug("capture opened")

	return &Capture{
		webcam: webcam,
		source: source,
		width:  actualWidth,
		height: actualHeight,
	}, nil
}

// Read captures a frame into the provided Mat
func (c *Capture) Read(frame *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return false
	}

	return c.webcam.Read(frame)
}

// ErrStopped is returned by Next when a live device stops delivering frames
var ErrStopped = errors.New("camera stopped delivering frames")

// Next reads the following frame. It returns io.EOF at the end of a video
// file and ErrStopped when a live device fails.
func (c *Capture) Next(frame *gocv.Mat) error {
	if c.Read(frame) && !frame.Empty() {
		return nil
	}
	return readFailure(c.source, c.FrameCount())
}

func readFailure(source string, frameCount int) error {
	if frameCount > 0 {
		return io.EOF
	}
	return fmt.Errorf("%s: %w", source, ErrStopped)
}

// FrameCount returns the number of frames in a video file, or 0 when unknown
func (c *Capture) FrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return 0
	}
	n := int(c.webcam.Get(gocv.VideoCaptureFrameCount))
	if n < 0 {
		return 0
	}
	return n
}

// Source returns the device or file the capture was opened from
func (c *Capture) Source() string {
	return c.source
}

// Width returns frame width
func (c *Capture) Width() int {
	return c.width
}

// Height returns frame height
func (c *Capture) Height() int {
	return c.height
}

// Close releases the camera
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam != nil {
		err := c.webcam.Close()
		c.webcam = nil
		return err
	}
	return nil
}
