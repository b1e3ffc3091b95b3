//go:build windows

package desktop

import (
	"fmt"
	"strings"
	"syscall"
	"time"
	"unsafe"
)

var (
	user32 = syscall.NewLazyDLL("user32.dll")

	procSendInput           = user32.NewProc("SendInput")
	procSetCursorPos        = user32.NewProc("SetCursorPos")
	procGetCursorPos        = user32.NewProc("GetCursorPos")
	procMapVirtualKey       = user32.NewProc("MapVirtualKeyW")
	procGetForegroundWindow = user32.NewProc("GetForegroundWindow")
	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
	procGetWindowRect       = user32.NewProc("GetWindowRect")
)

const (
	inputMouse    = 0
	inputKeyboard = 1

	mouseeventfMove       = 0x0001
	mouseeventfLeftDown   = 0x0002
	mouseeventfLeftUp     = 0x0004
	mouseeventfRightDown  = 0x0008
	mouseeventfRightUp    = 0x0010
	mouseeventfMiddleDown = 0x0020
	mouseeventfMiddleUp   = 0x0040
	mouseeventfWheel      = 0x0800

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002

	mapvkVKToVSC = 0

	vkShift   = 0x10
	vkControl = 0x11
	vkMenu    = 0x12 // Alt
	vkLWin    = 0x5B
)

type mouseInput struct {
	dx, dy      int32
	mouseData   uint32
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type input struct {
	inputType uint32
	padding   [4]byte
	mi        mouseInput
}

type point struct{ X, Y int32 }

type rect struct{ Left, Top, Right, Bottom int32 }

// windowsInput drives Win32 input injection via SendInput, the same syscall
// path the teacher's WindowsInputHandler uses — trimmed here to the single
// input desktop this agent runs under, with no secure-desktop switching.
type windowsInput struct{}

// NewInput creates the Windows Input capability.
func NewInput() Input {
	return &windowsInput{}
}

func sendMouseInput(flags uint32, data uint32) error {
	inp := input{inputType: inputMouse}
	inp.mi.dwFlags = flags
	inp.mi.mouseData = data
	ret, _, _ := procSendInput.Call(1, uintptr(unsafe.Pointer(&inp)), unsafe.Sizeof(inp))
	if ret == 0 {
		return fmt.Errorf("SendInput failed for mouse flags=0x%x", flags)
	}
	return nil
}

func sendKeyInput(vk uint16, up bool) error {
	inp := input{inputType: inputKeyboard}
	ki := (*keybdInput)(unsafe.Pointer(&inp.mi))
	ki.wVk = vk
	sc, _, _ := procMapVirtualKey.Call(uintptr(vk), mapvkVKToVSC)
	ki.wScan = uint16(sc)
	if up {
		ki.dwFlags = keyeventfKeyUp
	}
	if isExtendedVK(vk) {
		ki.dwFlags |= keyeventfExtendedKey
	}
	ret, _, _ := procSendInput.Call(1, uintptr(unsafe.Pointer(&inp)), unsafe.Sizeof(inp))
	if ret == 0 {
		return fmt.Errorf("SendInput failed for vk=0x%x up=%v", vk, up)
	}
	return nil
}

func isExtendedVK(vk uint16) bool {
	switch vk {
	case 0x21, 0x22, 0x23, 0x24, // PageUp, PageDown, End, Home
		0x25, 0x26, 0x27, 0x28, // arrow keys
		0x2D, 0x2E, // Insert, Delete
		0x5B, 0x5C: // LWin, RWin
		return true
	}
	return false
}

func mouseButtonFlags(button string, down bool) uint32 {
	switch button {
	case "right":
		if down {
			return mouseeventfRightDown
		}
		return mouseeventfRightUp
	case "middle":
		if down {
			return mouseeventfMiddleDown
		}
		return mouseeventfMiddleUp
	default:
		if down {
			return mouseeventfLeftDown
		}
		return mouseeventfLeftUp
	}
}

func (in *windowsInput) Move(x, y int) CapabilityResult {
	ret, _, _ := procSetCursorPos.Call(uintptr(x), uintptr(y))
	if ret == 0 {
		return CapabilityResult{Success: false, Error: "SetCursorPos failed"}
	}
	return CapabilityResult{Success: true, EventsSent: 1}
}

func (in *windowsInput) Click(x, y int, button string, count int) CapabilityResult {
	if r := in.Move(x, y); !r.Success {
		return r
	}
	if count <= 0 {
		count = 1
	}
	events := 1
	for i := 0; i < count; i++ {
		if err := sendMouseInput(mouseButtonFlags(button, true), 0); err != nil {
			return CapabilityResult{Success: false, Error: err.Error(), EventsSent: events}
		}
		events++
		if err := sendMouseInput(mouseButtonFlags(button, false), 0); err != nil {
			return CapabilityResult{Success: false, Error: err.Error(), EventsSent: events}
		}
		events++
		if i < count-1 {
			time.Sleep(50 * time.Millisecond)
		}
	}
	return CapabilityResult{Success: true, EventsSent: events}
}

func (in *windowsInput) Drag(sx, sy, ex, ey int, button string, duration time.Duration, steps int) CapabilityResult {
	if r := in.Move(sx, sy); !r.Success {
		return r
	}
	if err := sendMouseInput(mouseButtonFlags(button, true), 0); err != nil {
		return CapabilityResult{Success: false, Error: err.Error()}
	}
	events := 2

	if steps <= 0 {
		steps = 1
	}
	stepDelay := duration / time.Duration(steps)
	for i := 1; i <= steps; i++ {
		ix := sx + (ex-sx)*i/steps
		iy := sy + (ey-sy)*i/steps
		if r := in.Move(ix, iy); !r.Success {
			return CapabilityResult{Success: false, Error: r.Error, EventsSent: events}
		}
		events++
		if stepDelay > 0 {
			time.Sleep(stepDelay)
		}
	}

	if err := sendMouseInput(mouseButtonFlags(button, false), 0); err != nil {
		return CapabilityResult{Success: false, Error: err.Error(), EventsSent: events}
	}
	events++
	return CapabilityResult{Success: true, EventsSent: events}
}

func (in *windowsInput) Scroll(delta int, x, y *int, horizontal bool) CapabilityResult {
	if x != nil && y != nil {
		if r := in.Move(*x, *y); !r.Success {
			return r
		}
	}
	// WHEEL_DELTA is 120; browser deltaY positive (scroll down) maps to a
	// negative Windows wheel value.
	data := uint32(int32(-delta * 120))
	if err := sendMouseInput(mouseeventfWheel, data); err != nil {
		return CapabilityResult{Success: false, Error: err.Error()}
	}
	return CapabilityResult{Success: true, EventsSent: 1}
}

func (in *windowsInput) KeyDown(key string) CapabilityResult {
	vk := charToVK(key)
	if vk == 0 {
		return CapabilityResult{Success: false, Error: fmt.Sprintf("unknown key: %s", key)}
	}
	if err := sendKeyInput(vk, false); err != nil {
		return CapabilityResult{Success: false, Error: err.Error()}
	}
	return CapabilityResult{Success: true, EventsSent: 1}
}

func (in *windowsInput) KeyUp(key string) CapabilityResult {
	vk := charToVK(key)
	if vk == 0 {
		return CapabilityResult{Success: false, Error: fmt.Sprintf("unknown key: %s", key)}
	}
	if err := sendKeyInput(vk, true); err != nil {
		return CapabilityResult{Success: false, Error: err.Error()}
	}
	return CapabilityResult{Success: true, EventsSent: 1}
}

func (in *windowsInput) KeyPress(key string) CapabilityResult {
	if r := in.KeyDown(key); !r.Success {
		return r
	}
	return in.KeyUp(key)
}

func modifierVK(mod string) uint16 {
	switch NormalizeKey(mod) {
	case "control":
		return vkControl
	case "alt":
		return vkMenu
	case "shift":
		return vkShift
	case "super":
		return vkLWin
	default:
		return 0
	}
}

func (in *windowsInput) Hotkey(keys []string) CapabilityResult {
	if len(keys) == 0 {
		return CapabilityResult{Success: false, Error: "no keys given"}
	}
	modifiers := keys[:len(keys)-1]
	main := keys[len(keys)-1]

	events := 0
	for _, mod := range modifiers {
		vk := modifierVK(mod)
		if vk == 0 {
			return CapabilityResult{Success: false, Error: fmt.Sprintf("unknown modifier: %s", mod), EventsSent: events}
		}
		if err := sendKeyInput(vk, false); err != nil {
			return CapabilityResult{Success: false, Error: err.Error(), EventsSent: events}
		}
		events++
	}

	if r := in.KeyPress(main); !r.Success {
		for i := len(modifiers) - 1; i >= 0; i-- {
			sendKeyInput(modifierVK(modifiers[i]), true)
		}
		return CapabilityResult{Success: false, Error: r.Error, EventsSent: events}
	}
	events += 2

	for i := len(modifiers) - 1; i >= 0; i-- {
		if err := sendKeyInput(modifierVK(modifiers[i]), true); err != nil {
			return CapabilityResult{Success: false, Error: err.Error(), EventsSent: events}
		}
		events++
	}
	return CapabilityResult{Success: true, EventsSent: events}
}

func (in *windowsInput) TypeText(text string, interval time.Duration) CapabilityResult {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	events := 0
	for _, r := range text {
		if rr := in.KeyPress(string(r)); !rr.Success {
			return CapabilityResult{Success: false, Error: rr.Error, EventsSent: events}
		}
		events++
		time.Sleep(interval)
	}
	return CapabilityResult{Success: true, EventsSent: events}
}

func (in *windowsInput) CursorPosition() (int, int, error) {
	var p point
	ret, _, _ := procGetCursorPos.Call(uintptr(unsafe.Pointer(&p)))
	if ret == 0 {
		return 0, 0, fmt.Errorf("GetCursorPos failed")
	}
	return int(p.X), int(p.Y), nil
}

func (in *windowsInput) ForegroundWindowInfo() (WindowInfo, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return WindowInfo{}, fmt.Errorf("GetForegroundWindow returned no window")
	}

	buf := make([]uint16, 256)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	title := syscall.UTF16ToString(buf)

	var r rect
	procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&r)))

	return WindowInfo{
		Handle: fmt.Sprintf("0x%x", hwnd),
		Title:  title,
		Rect:   Rect{X: int(r.Left), Y: int(r.Top), W: int(r.Right - r.Left), H: int(r.Bottom - r.Top)},
	}, nil
}

// charToVK maps a normalized key name to its Win32 virtual-key code. Single
// ASCII letters/digits map directly; everything else goes through the named
// table, same split the teacher's input_windows.go uses.
func charToVK(key string) uint16 {
	normalized := NormalizeKey(key)
	if len(normalized) == 1 {
		c := normalized[0]
		if c >= 'a' && c <= 'z' {
			return uint16(c - 'a' + 'A')
		}
		if c >= '0' && c <= '9' {
			return uint16(c)
		}
	}

	switch normalized {
	case "enter":
		return 0x0D
	case "tab":
		return 0x09
	case "space":
		return 0x20
	case "backspace":
		return 0x08
	case "escape":
		return 0x1B
	case "delete":
		return 0x2E
	case "insert":
		return 0x2D
	case "home":
		return 0x24
	case "end":
		return 0x23
	case "prior":
		return 0x21
	case "next":
		return 0x22
	case "up":
		return 0x26
	case "down":
		return 0x28
	case "left":
		return 0x25
	case "right":
		return 0x27
	case "control":
		return vkControl
	case "alt":
		return vkMenu
	case "shift":
		return vkShift
	case "super":
		return vkLWin
	}

	if strings.HasPrefix(normalized, "f") && len(normalized) <= 3 {
		switch normalized {
		case "f1":
			return 0x70
		case "f2":
			return 0x71
		case "f3":
			return 0x72
		case "f4":
			return 0x73
		case "f5":
			return 0x74
		case "f6":
			return 0x75
		case "f7":
			return 0x76
		case "f8":
			return 0x77
		case "f9":
			return 0x78
		case "f10":
			return 0x79
		case "f11":
			return 0x7A
		case "f12":
			return 0x7B
		}
	}

	return 0
}
