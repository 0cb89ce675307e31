package ui

import (
	"fmt"
	"time"
)

// FPSWindow is the number of frames averaged per FPS update
const FPSWindow = 10

// FPSCounter measures throughput over blocks of FPSWindow frames
type FPSCounter struct {
	now   func() time.Time
	start time.Time
	count int
	fps   float64
	valid bool
}

// NewFPSCounter creates a counter using the wall clock
func NewFPSCounter() *FPSCounter {
	return &FPSCounter{now: time.Now, start: time.Now()}
}

// Tick records one finished frame
func (f *FPSCounter) Tick() {
	f.count++
	if f.count < FPSWindow {
		return
	}

	now := f.now()
	if elapsed := now.Sub(f.start).Seconds(); elapsed > 0 {
		f.fps = float64(FPSWindow) / elapsed
		f.valid = true
	}
	f.start = now
	f.count = 0
}

// FPS returns the last measurement and whether one exists yet
func (f *FPSCounter) FPS() (float64, bool) {
	return f.fps, f.valid
}

// Message formats the overlay text, empty until the first window completes
func (f *FPSCounter) Message() string {
	if !f.valid {
		return ""
	}
	return fmt.Sprintf("FPS: %.2f", f.fps)
}
