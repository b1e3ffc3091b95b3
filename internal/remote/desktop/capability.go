// Package desktop implements the Input and Screen capability surfaces that
// the command executor and frame streamer drive.
package desktop

import "time"

// Rect is a window bounding box in screen coordinates.
type Rect struct {
	X, Y, W, H int
}

// WindowInfo describes the current foreground window, used for the
// executor's generic result snapshot.
type WindowInfo struct {
	Handle string
	Title  string
	Class  string
	PID    int
	Rect   Rect
}

// CapabilityResult is the structured outcome every Input call returns.
type CapabilityResult struct {
	Success   bool
	EventsSent int
	Error     string
}

// Input is the platform surface the executor drives to inject mouse and
// keyboard events and to read back the resulting host state.
type Input interface {
	Move(x, y int) CapabilityResult
	Click(x, y int, button string, count int) CapabilityResult
	Drag(sx, sy, ex, ey int, button string, duration time.Duration, steps int) CapabilityResult
	Scroll(delta int, x, y *int, horizontal bool) CapabilityResult

	KeyDown(key string) CapabilityResult
	KeyUp(key string) CapabilityResult
	KeyPress(key string) CapabilityResult
	Hotkey(keys []string) CapabilityResult
	TypeText(text string, interval time.Duration) CapabilityResult

	CursorPosition() (x, y int, err error)
	ForegroundWindowInfo() (WindowInfo, error)
}

// Screen is the platform surface the frame streamer drives to capture the
// desktop.
type Screen interface {
	// Capture grabs a single frame from the given monitor index (0 is the
	// primary monitor) and returns raw BGRA pixels plus its dimensions.
	Capture(monitorIndex int) (bgra []byte, width, height int, err error)
}
