package main

import (
	"runtime"
)

func init() {
	// OpenCV highgui needs window calls on the main OS thread (macOS).
	runtime.LockOSThread()
}

func main() {
	Execute()
}
