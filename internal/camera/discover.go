package camera

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// UVCDriver is the v4l2 driver name reported by USB video class cameras
const UVCDriver = "uvcvideo"

// Discoverer finds V4L2 video and media devices by driver name using the
// v4l2-ctl and media-ctl tools
type Discoverer struct {
	Glob func(pattern string) ([]string, error)
	Run  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewDiscoverer returns a Discoverer backed by the filesystem and os/exec
func NewDiscoverer() *Discoverer {
	return &Discoverer{
		Glob: filepath.Glob,
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Resolve returns source unchanged unless it is empty, in which case it
// picks the first uvcvideo camera, falling back to index 0. The media
// controller of the camera is logged when one is found.
func (d *Discoverer) Resolve(ctx context.Context, source string) string {
	if source != "" {
		return source
	}

	dev, err := d.VideoDevice(ctx, UVCDriver)
	switch {
	case err != nil:
		log.WithError(err).Warn("camera discovery failed, using index 0")
		return "0"
	case dev == "":
		log.Info("no uvcvideo camera found, using index 0")
		return "0"
	}

	fields := log.Fields{"device": dev}
	media, err := d.MediaDevice(ctx, UVCDriver)
	if err != nil {
		log.WithError(err).Debug("media device lookup failed")
	} else if media != "" {
		fields["media"] = media
	}
	log.WithFields(fields).Info("found usb camera")
	return dev
}

// VideoDevice returns the first /dev/video* whose driver info mentions
// driver, or "" when none does
func (d *Discoverer) VideoDevice(ctx context.Context, driver string) (string, error) {
	return d.find(ctx, "/dev/video*", driver, func(dev string) (string, []string) {
		return "v4l2-ctl", []string{"-d", dev, "-D"}
	})
}

// MediaDevice returns the first /dev/media* whose topology mentions driver,
// or "" when none does
func (d *Discoverer) MediaDevice(ctx context.Context, driver string) (string, error) {
	return d.find(ctx, "/dev/media*", driver, func(dev string) (string, []string) {
		return "media-ctl", []string{"-d", dev, "-p"}
	})
}

func (d *Discoverer) find(ctx context.Context, pattern, driver string, command func(dev string) (string, []string)) (string, error) {
	devices, err := d.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", pattern, err)
	}
	sort.Strings(devices)

	var lastErr error
	for _, dev := range devices {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name, args := command(dev)
		out, err := d.Run(ctx, name, args...)
		if err != nil {
			lastErr = fmt.Errorf("%s %s: %w", name, dev, err)
			continue
		}
		if strings.Contains(string(out), driver) {
			return dev, nil
		}
	}

	// a missing tool is worth reporting, a device without a match is not
	if lastErr != nil && errors.Is(lastErr, exec.ErrNotFound) {
		return "", lastErr
	}
	return "", nil
}
