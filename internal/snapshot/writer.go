package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// DefaultDir is where captures land unless configured otherwise
const DefaultDir = "./captured-images"

// Writer saves 'w' key captures as TIFF files plus a msgpack sidecar
type Writer struct {
	dir    string
	prefix string
}

// NewWriter creates dir if needed. prefix is usually the landmark model type.
func NewWriter(dir, prefix string) (*Writer, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	return &Writer{dir: dir, prefix: prefix}, nil
}

// Name returns the capture file name for one frame and kind
func (w *Writer) Name(frame int, kind string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_frame%04d_%s.tif", w.prefix, frame, kind))
}

// Capture writes the raw input, the annotated output and, when non-nil, the
// debug pane. All images are BGR. The record goes to a .msgpack file next to
// them. It returns the paths written.
func (w *Writer) Capture(frame int, input, output gocv.Mat, debug *gocv.Mat, rec Record) ([]string, error) {
	images := []struct {
		kind string
		mat  gocv.Mat
	}{
		{"input", input},
		{"detection", output},
	}
	if debug != nil && !debug.Empty() {
		images = append(images, struct {
			kind string
			mat  gocv.Mat
		}{"debug", *debug})
	}

	var written []string
	for _, img := range images {
		name := w.Name(frame, img.kind)
		log.WithField("file", name).Info("capturing")
		if !gocv.IMWrite(name, img.mat) {
			return written, fmt.Errorf("failed to write %s", name)
		}
		written = append(written, name)
	}

	data, err := rec.Marshal()
	if err != nil {
		return written, err
	}
	sidecar := filepath.Join(w.dir, fmt.Sprintf("%s_frame%04d.msgpack", w.prefix, frame))
	if err := os.WriteFile(sidecar, data, 0o644); err != nil {
		return written, fmt.Errorf("failed to write %s: %w", sidecar, err)
	}
	written = append(written, sidecar)

	return written, nil
}
