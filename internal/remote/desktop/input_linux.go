//go:build linux

package desktop

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// linuxInput drives X11 input injection via xdotool.
type linuxInput struct{}

// NewInput creates the Linux Input capability.
func NewInput() Input {
	return &linuxInput{}
}

func mouseButtonCode(button string) string {
	switch button {
	case "right":
		return "3"
	case "middle":
		return "2"
	case "x1":
		return "8"
	case "x2":
		return "9"
	default:
		return "1"
	}
}

func (in *linuxInput) Move(x, y int) CapabilityResult {
	if err := exec.Command("xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y)).Run(); err != nil {
		return CapabilityResult{Success: false, Error: err.Error()}
	}
	return CapabilityResult{Success: true, EventsSent: 1}
}

func (in *linuxInput) Click(x, y int, button string, count int) CapabilityResult {
	if r := in.Move(x, y); !r.Success {
		return r
	}
	if count <= 0 {
		count = 1
	}
	btn := mouseButtonCode(button)
	events := 1
	for i := 0; i < count; i++ {
		if err := exec.Command("xdotool", "click", btn).Run(); err != nil {
			return CapabilityResult{Success: false, Error: err.Error(), EventsSent: events}
		}
		events++
		if i < count-1 {
			time.Sleep(50 * time.Millisecond) // inter-click
		}
	}
	return CapabilityResult{Success: true, EventsSent: events}
}

func (in *linuxInput) Drag(sx, sy, ex, ey int, button string, duration time.Duration, steps int) CapabilityResult {
	if r := in.Move(sx, sy); !r.Success {
		return r
	}
	btn := mouseButtonCode(button)
	if err := exec.Command("xdotool", "mousedown", btn).Run(); err != nil {
		return CapabilityResult{Success: false, Error: err.Error()}
	}
	time.Sleep(20 * time.Millisecond) // press

	events := 2
	if steps <= 0 {
		if err := exec.Command("xdotool", "mousemove", strconv.Itoa(ex), strconv.Itoa(ey)).Run(); err != nil {
			return CapabilityResult{Success: false, Error: err.Error(), EventsSent: events}
		}
		events++
	} else {
		stepDelay := duration / time.Duration(steps)
		for i := 1; i <= steps; i++ {
			ix := sx + (ex-sx)*i/steps
			iy := sy + (ey-sy)*i/steps
			if err := exec.Command("xdotool", "mousemove", strconv.Itoa(ix), strconv.Itoa(iy)).Run(); err != nil {
				return CapabilityResult{Success: false, Error: err.Error(), EventsSent: events}
			}
			events++
			time.Sleep(stepDelay)
		}
	}

	time.Sleep(20 * time.Millisecond) // release
	if err := exec.Command("xdotool", "mouseup", btn).Run(); err != nil {
		return CapabilityResult{Success: false, Error: err.Error(), EventsSent: events}
	}
	events++
	return CapabilityResult{Success: true, EventsSent: events}
}

func (in *linuxInput) Scroll(delta int, x, y *int, horizontal bool) CapabilityResult {
	if x != nil && y != nil {
		if r := in.Move(*x, *y); !r.Success {
			return r
		}
	}
	btn := "4" // up / left
	if (!horizontal && delta < 0) || (horizontal && delta < 0) {
		btn = "5" // down / right
		delta = -delta
	}
	if horizontal {
		if delta < 0 {
			btn = "6"
		} else {
			btn = "7"
		}
		if delta < 0 {
			delta = -delta
		}
	}
	events := 0
	for i := 0; i < delta; i++ {
		if err := exec.Command("xdotool", "click", btn).Run(); err != nil {
			return CapabilityResult{Success: false, Error: err.Error(), EventsSent: events}
		}
		events++
	}
	return CapabilityResult{Success: true, EventsSent: events}
}

func (in *linuxInput) translateKey(key string) (string, bool) {
	normalized := NormalizeKey(key)
	table := map[string]string{
		"enter":     "Return",
		"tab":       "Tab",
		"space":     "space",
		"backspace": "BackSpace",
		"escape":    "Escape",
		"delete":    "Delete",
		"insert":    "Insert",
		"home":      "Home",
		"end":       "End",
		"prior":     "Page_Up",
		"next":      "Page_Down",
		"up":        "Up",
		"down":      "Down",
		"left":      "Left",
		"right":     "Right",
		"control":   "ctrl",
		"alt":       "alt",
		"shift":     "shift",
		"super":     "super",
	}
	if mapped, ok := table[normalized]; ok {
		return mapped, true
	}
	if len(normalized) == 1 {
		return normalized, true
	}
	return "", false
}

func (in *linuxInput) KeyDown(key string) CapabilityResult {
	k, ok := in.translateKey(key)
	if !ok {
		return CapabilityResult{Success: false, Error: fmt.Sprintf("Unknown key: %s", key)}
	}
	time.Sleep(10 * time.Millisecond)
	if err := exec.Command("xdotool", "keydown", k).Run(); err != nil {
		return CapabilityResult{Success: false, Error: err.Error()}
	}
	return CapabilityResult{Success: true, EventsSent: 1}
}

func (in *linuxInput) KeyUp(key string) CapabilityResult {
	k, ok := in.translateKey(key)
	if !ok {
		return CapabilityResult{Success: false, Error: fmt.Sprintf("Unknown key: %s", key)}
	}
	time.Sleep(10 * time.Millisecond)
	if err := exec.Command("xdotool", "keyup", k).Run(); err != nil {
		return CapabilityResult{Success: false, Error: err.Error()}
	}
	return CapabilityResult{Success: true, EventsSent: 1}
}

func (in *linuxInput) KeyPress(key string) CapabilityResult {
	k, ok := in.translateKey(key)
	if !ok {
		return CapabilityResult{Success: false, Error: fmt.Sprintf("Unknown key: %s", key)}
	}
	if err := exec.Command("xdotool", "key", k).Run(); err != nil {
		return CapabilityResult{Success: false, Error: err.Error()}
	}
	return CapabilityResult{Success: true, EventsSent: 1}
}

func (in *linuxInput) Hotkey(keys []string) CapabilityResult {
	translated := make([]string, 0, len(keys))
	for _, key := range keys {
		k, ok := in.translateKey(key)
		if !ok {
			return CapabilityResult{Success: false, Error: fmt.Sprintf("Unknown key: %s", key)}
		}
		translated = append(translated, k)
	}
	chord := strings.Join(translated, "+")
	if err := exec.Command("xdotool", "key", chord).Run(); err != nil {
		return CapabilityResult{Success: false, Error: err.Error()}
	}
	return CapabilityResult{Success: true, EventsSent: 1}
}

func (in *linuxInput) TypeText(text string, interval time.Duration) CapabilityResult {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	delayMs := strconv.Itoa(int(interval.Milliseconds()))
	if err := exec.Command("xdotool", "type", "--delay", delayMs, "--", text).Run(); err != nil {
		return CapabilityResult{Success: false, Error: err.Error()}
	}
	return CapabilityResult{Success: true, EventsSent: len([]rune(text))}
}

func (in *linuxInput) CursorPosition() (int, int, error) {
	out, err := exec.Command("xdotool", "getmouselocation", "--shell").Output()
	if err != nil {
		return 0, 0, err
	}
	var x, y int
	for _, line := range strings.Split(string(out), "\n") {
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "X":
			x, _ = strconv.Atoi(parts[1])
		case "Y":
			y, _ = strconv.Atoi(parts[1])
		}
	}
	return x, y, nil
}

func (in *linuxInput) ForegroundWindowInfo() (WindowInfo, error) {
	idOut, err := exec.Command("xdotool", "getactivewindow").Output()
	if err != nil {
		return WindowInfo{}, err
	}
	handle := strings.TrimSpace(string(idOut))

	title, _ := exec.Command("xdotool", "getwindowname", handle).Output()
	return WindowInfo{
		Handle: handle,
		Title:  strings.TrimSpace(string(title)),
	}, nil
}
