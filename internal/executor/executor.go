// Package executor translates a validated Command into calls on the
// desktop Input capability and attaches a read-back verification or a
// generic state snapshot to the result.
package executor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Bazza1982/lily-remote/internal/commands"
	"github.com/Bazza1982/lily-remote/internal/logging"
	"github.com/Bazza1982/lily-remote/internal/remote/desktop"
)

var log = logging.L("executor")

// DefaultTolerance is the default Manhattan per-axis pixel tolerance for
// move/drag read-back verification.
const DefaultTolerance = 5

// Executor adapts commands.Queue's Executor interface onto the desktop
// Input capability.
type Executor struct {
	input     desktop.Input
	tolerance int
}

func New(input desktop.Input) *Executor {
	return &Executor{input: input, tolerance: DefaultTolerance}
}

// Execute implements commands.Executor. ctx is honored implicitly: the
// queue's own hard 30s timeout wraps this call, and every Input call here
// is a fast synchronous syscall rather than something worth its own
// cancellation plumbing.
func (e *Executor) Execute(ctx context.Context, cmd *commands.Command) commands.Result {
	switch p := cmd.Params.(type) {
	case commands.PointParams:
		switch cmd.Type {
		case commands.TypeMove:
			return e.move(p)
		case commands.TypeClick:
			return e.click(p, 1)
		case commands.TypeDoubleClick:
			return e.click(p, 2)
		case commands.TypeRightClick:
			return e.rightClick(p)
		}
	case commands.DragParams:
		return e.drag(p)
	case commands.TypeTextParams:
		return e.typeText(p)
	case commands.HotkeyParams:
		return e.hotkey(p)
	case commands.KeyParams:
		return e.key(cmd.Type, p)
	case commands.ScrollParams:
		return e.scroll(p)
	}
	return fail(fmt.Sprintf("executor: unhandled command type %s", cmd.Type))
}

func (e *Executor) move(p commands.PointParams) commands.Result {
	res := e.input.Move(p.X, p.Y)
	if !res.Success {
		return fail(res.Error)
	}
	x, y, err := e.input.CursorPosition()
	if err != nil {
		return fail(fmt.Sprintf("read-back failed: %v", err))
	}
	if !withinTolerance(x, y, p.X, p.Y, e.tolerance) {
		return fail(fmt.Sprintf("cursor at (%d,%d), expected (%d,%d) within %dpx", x, y, p.X, p.Y, e.tolerance))
	}
	return succeed(map[string]any{"cursor_position": []int{x, y}})
}

func (e *Executor) click(p commands.PointParams, count int) commands.Result {
	button := p.Button
	if button == "" {
		button = "left"
	}
	res := e.input.Click(p.X, p.Y, button, count)
	if !res.Success {
		return fail(res.Error)
	}
	return e.snapshotResult()
}

func (e *Executor) rightClick(p commands.PointParams) commands.Result {
	res := e.input.Click(p.X, p.Y, "right", 1)
	if !res.Success {
		return fail(res.Error)
	}
	return e.snapshotResult()
}

func (e *Executor) drag(p commands.DragParams) commands.Result {
	button := p.Button
	if button == "" {
		button = "left"
	}
	duration := time.Duration(p.Duration * float64(time.Second))
	res := e.input.Drag(p.StartX, p.StartY, p.EndX, p.EndY, button, duration, p.Steps)
	if !res.Success {
		return fail(res.Error)
	}
	x, y, err := e.input.CursorPosition()
	if err != nil {
		return fail(fmt.Sprintf("read-back failed: %v", err))
	}
	if !withinTolerance(x, y, p.EndX, p.EndY, e.tolerance) {
		return fail(fmt.Sprintf("cursor at (%d,%d), expected (%d,%d) within %dpx", x, y, p.EndX, p.EndY, e.tolerance))
	}
	return succeed(map[string]any{"cursor_position": []int{x, y}})
}

func (e *Executor) typeText(p commands.TypeTextParams) commands.Result {
	interval := time.Duration(p.Interval * float64(time.Second))
	res := e.input.TypeText(p.Text, interval)
	if !res.Success {
		return fail(res.Error)
	}
	return e.snapshotResult()
}

func (e *Executor) hotkey(p commands.HotkeyParams) commands.Result {
	res := e.input.Hotkey(p.Keys)
	if !res.Success {
		return fail(res.Error)
	}
	return e.snapshotResult()
}

func (e *Executor) key(cmdType commands.Type, p commands.KeyParams) commands.Result {
	var res desktop.CapabilityResult
	switch cmdType {
	case commands.TypeKeyDown:
		res = e.input.KeyDown(p.Key)
	case commands.TypeKeyUp:
		res = e.input.KeyUp(p.Key)
	default:
		res = e.input.KeyPress(p.Key)
	}
	if !res.Success {
		return fail(res.Error)
	}
	return e.snapshotResult()
}

func (e *Executor) scroll(p commands.ScrollParams) commands.Result {
	res := e.input.Scroll(p.Delta, p.X, p.Y, p.Horizontal)
	if !res.Success {
		return fail(res.Error)
	}
	return e.snapshotResult()
}

// snapshotResult attaches the generic {cursor_position, foreground_window_title}
// payload spec.md §4.4 requires for every action besides move/drag.
func (e *Executor) snapshotResult() commands.Result {
	data := map[string]any{}
	if x, y, err := e.input.CursorPosition(); err == nil {
		data["cursor_position"] = []int{x, y}
	}
	if win, err := e.input.ForegroundWindowInfo(); err == nil {
		data["foreground_window_title"] = win.Title
	}
	return succeed(data)
}

func withinTolerance(x, y, wantX, wantY, tolerance int) bool {
	return int(math.Abs(float64(x-wantX))) <= tolerance && int(math.Abs(float64(y-wantY))) <= tolerance
}

func succeed(data map[string]any) commands.Result {
	return commands.Result{Success: true, Data: data, ExecutedAt: time.Now()}
}

func fail(msg string) commands.Result {
	log.Warn("command execution failed", "error", msg)
	return commands.Result{Success: false, Error: msg, ExecutedAt: time.Now()}
}
