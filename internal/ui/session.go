package ui

// Key codes handled by the live loop
const (
	KeyEsc = 27
	KeyC   = 'c'
	KeyD   = 'd'
	KeyE   = 'e'
	KeyF   = 'f'
	KeyP   = 'p'
	KeyQ   = 'q'
	KeyS   = 's'
	KeyT   = 't'
	KeyV   = 'v'
	KeyW   = 'w'
	KeyZ   = 'z'
)

// Event is a side effect the loop must perform after a key press
type Event int

const (
	EventNone Event = iota
	EventQuit
	EventCapture
	EventDebugToggled
	EventScoresToggled
	EventVerboseToggled
	EventProfileToggled
)

// Session is the interactive state of the live demo
type Session struct {
	Step       bool
	Pause      bool
	UseImage   bool
	ShowDebug  bool
	ShowScores bool
	ShowFPS    bool
	Verbose    bool
	Profile    bool
	FrameCount int
}

// WaitDelay returns the WaitKey delay: block while paused or stepping
func (s *Session) WaitDelay() int {
	if s.Step || s.Pause {
		return 0
	}
	return 1
}

// HandleKey applies a key press and returns the event it triggers
func (s *Session) HandleKey(key int) Event {
	if key < 0 {
		return EventNone
	}

	switch key & 0xff {
	case KeyEsc, KeyQ:
		return EventQuit
	case KeyW:
		return EventCapture
	case KeyS:
		s.Step = true
	case KeyP:
		s.Pause = !s.Pause
	case KeyC:
		s.Step = false
		s.Pause = false
	case KeyT:
		s.UseImage = !s.UseImage
	case KeyD:
		s.ShowDebug = !s.ShowDebug
		return EventDebugToggled
	case KeyE:
		s.ShowScores = !s.ShowScores
		return EventScoresToggled
	case KeyF:
		s.ShowFPS = !s.ShowFPS
	case KeyV:
		s.Verbose = !s.Verbose
		return EventVerboseToggled
	case KeyZ:
		s.Profile = !s.Profile
		return EventProfileToggled
	}
	return EventNone
}

// Trackbar limits for the detection threshold, in percent
const (
	ThresholdMax   = 100
	ThresholdFloor = 10
)

// ThresholdFromTrackbar clamps a trackbar position to the floor and returns
// the clamped position with the score it stands for
func ThresholdFromTrackbar(pos int) (int, float32) {
	if pos < ThresholdFloor {
		pos = ThresholdFloor
	}
	if pos > ThresholdMax {
		pos = ThresholdMax
	}
	return pos, float32(pos) / 100
}

// KeyHelp is printed at startup
const KeyHelp = `================================================================
	Press ESC to quit ...
----------------------------------------------------------------
	Press 'p' to pause video ...
	Press 'c' to continue ...
	Press 's' to step one frame at a time ...
	Press 'w' to take a photo ...
----------------------------------------------------------------
	Press 't' to toggle between image and live video
	Press 'd' to toggle debug image on/off
	Press 'e' to toggle scores image on/off
	Press 'f' to toggle FPS display on/off
	Press 'v' to toggle verbose on/off
	Press 'z' to toggle profiling on/off
================================================================`
