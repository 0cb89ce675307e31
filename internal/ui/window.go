package ui

import (
	"gocv.io/x/gocv"
)

// TrackbarName labels the detection threshold slider
const TrackbarName = "threshMinScore"

// Window manages one highgui display window
type Window struct {
	window   *gocv.Window
	name     string
	trackbar *gocv.Trackbar
}

// NewWindow creates a new display window
func NewWindow(name string) *Window {
	return &Window{
		window: gocv.NewWindow(name),
		name:   name,
	}
}

// Name returns the window title
func (w *Window) Name() string {
	return w.name
}

// AddThresholdTrackbar attaches the 0..100 detection threshold slider
func (w *Window) AddThresholdTrackbar(initial float32) {
	w.trackbar = w.window.CreateTrackbar(TrackbarName, ThresholdMax)
	w.trackbar.SetPos(int(initial * 100))
}

// Threshold reads the slider, enforcing the floor, and returns the score.
// ok is false when the window has no slider.
func (w *Window) Threshold() (score float32, ok bool) {
	if w.trackbar == nil {
		return 0, false
	}
	pos := w.trackbar.GetPos()
	clamped, score := ThresholdFromTrackbar(pos)
	if clamped != pos {
		w.trackbar.SetPos(clamped)
	}
	return score, true
}

// Show displays a frame
func (w *Window) Show(frame gocv.Mat) {
	w.window.IMShow(frame)
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		err := w.window.Close()
		w.window = nil
		return err
	}
	return nil
}

// Toggleable is a secondary window that is opened on demand and destroyed
// when switched off
type Toggleable struct {
	name   string
	window *Window
}

// NewToggleable describes a window without opening it
func NewToggleable(name string) *Toggleable {
	return &Toggleable{name: name}
}

// Show opens the window if needed and displays frame
func (t *Toggleable) Show(frame gocv.Mat) {
	if t.window == nil {
		t.window = NewWindow(t.name)
	}
	t.window.Show(frame)
}

// Close destroys the window if it is open
func (t *Toggleable) Close() error {
	if t.window == nil {
		return nil
	}
	err := t.window.Close()
	t.window = nil
	return err
}
