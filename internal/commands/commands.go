// Package commands implements the typed command batch, its validation, and
// the bounded FIFO queue with single-worker dispatch.
package commands

import (
	"fmt"
	"time"
)

// Type enumerates the supported command types.
type Type string

const (
	TypeClick       Type = "click"
	TypeDoubleClick Type = "double_click"
	TypeRightClick  Type = "right_click"
	TypeMove        Type = "move"
	TypeDrag        Type = "drag"
	TypeType        Type = "type"
	TypeHotkey      Type = "hotkey"
	TypeKeyDown     Type = "key_down"
	TypeKeyUp       Type = "key_up"
	TypeKeyPress    Type = "key_press"
	TypeScroll      Type = "scroll"
)

func validTypes() map[Type]bool {
	return map[Type]bool{
		TypeClick: true, TypeDoubleClick: true, TypeRightClick: true, TypeMove: true,
		TypeDrag: true, TypeType: true, TypeHotkey: true,
		TypeKeyDown: true, TypeKeyUp: true, TypeKeyPress: true, TypeScroll: true,
	}
}

// Params is the validated, typed parameter record for a Command. Each
// command Type has exactly one concrete Params implementation.
type Params interface {
	isCommandParams()
}

type PointParams struct {
	X, Y   int
	Button string // only meaningful for click
}

func (PointParams) isCommandParams() {}

type DragParams struct {
	StartX, StartY, EndX, EndY int
	Button                     string
	Duration                   float64
	Steps                      int
}

func (DragParams) isCommandParams() {}

type TypeTextParams struct {
	Text     string
	Interval float64
}

func (TypeTextParams) isCommandParams() {}

type HotkeyParams struct {
	Keys []string
}

func (HotkeyParams) isCommandParams() {}

type KeyParams struct {
	Key string
}

func (KeyParams) isCommandParams() {}

type ScrollParams struct {
	Delta      int
	X, Y       *int
	Horizontal bool
}

func (ScrollParams) isCommandParams() {}

// Status is the lifecycle state of a Command.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result is the outcome of executing a Command.
type Result struct {
	Success     bool
	Data        map[string]any
	Error       string
	ExecutedAt  time.Time
}

// Command is a single typed, validated, queued unit of work.
type Command struct {
	ID        string
	Type      Type
	SessionID string
	Params    Params

	Status Status
	Result *Result

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// ToResponse renders the API-visible projection of a Command.
func (c *Command) ToResponse() map[string]any {
	resp := map[string]any{
		"id":         c.ID,
		"type":       string(c.Type),
		"status":     string(c.Status),
		"created_at": c.CreatedAt.Unix(),
	}
	if c.Result != nil {
		resp["result"] = c.Result.Data
		if c.Result.Error != "" {
			resp["error"] = c.Result.Error
		}
	}
	return resp
}

// RawCommand is the wire-format, pre-validation shape of one batch element.
type RawCommand struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Fields map[string]any `json:"-"`
}

// validate checks a raw command against its type's required parameter shape
// and returns the typed Params. It never mutates the queue; callers batch
// the validation step before committing anything.
func validate(raw RawCommand) (Params, error) {
	cmdType := Type(raw.Type)
	if !validTypes()[cmdType] {
		return nil, fmt.Errorf("invalid command type %q for command %s", raw.Type, raw.ID)
	}

	f := raw.Fields
	switch cmdType {
	case TypeClick, TypeDoubleClick, TypeRightClick, TypeMove:
		x, y, err := requireXY(raw.ID, string(cmdType), f)
		if err != nil {
			return nil, err
		}
		button := "left"
		if cmdType == TypeClick {
			if b, ok := f["button"]; ok {
				s, ok := b.(string)
				if !ok {
					return nil, fmt.Errorf("command %s: 'button' must be a string", raw.ID)
				}
				button = s
			}
		}
		return PointParams{X: x, Y: y, Button: button}, nil

	case TypeType:
		text, ok := f["text"]
		if !ok {
			return nil, fmt.Errorf("command %s of type 'type' requires 'text' field", raw.ID)
		}
		s, ok := text.(string)
		if !ok {
			return nil, fmt.Errorf("command %s: 'text' must be a string", raw.ID)
		}
		interval := 0.0
		if iv, ok := f["interval"]; ok {
			n, ok := toFloat(iv)
			if !ok {
				return nil, fmt.Errorf("command %s: 'interval' must be a number", raw.ID)
			}
			interval = n
		}
		return TypeTextParams{Text: s, Interval: interval}, nil

	case TypeHotkey:
		rawKeys, ok := f["keys"]
		if !ok {
			return nil, fmt.Errorf("command %s of type 'hotkey' requires 'keys' field", raw.ID)
		}
		list, ok := rawKeys.([]any)
		if !ok {
			return nil, fmt.Errorf("command %s: 'keys' must be a list", raw.ID)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("command %s: 'keys' cannot be empty", raw.ID)
		}
		keys := make([]string, 0, len(list))
		for _, k := range list {
			s, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("command %s: 'keys' elements must be strings", raw.ID)
			}
			keys = append(keys, s)
		}
		return HotkeyParams{Keys: keys}, nil

	case TypeKeyDown, TypeKeyUp, TypeKeyPress:
		key, ok := f["key"]
		if !ok {
			return nil, fmt.Errorf("command %s of type '%s' requires 'key' field", raw.ID, cmdType)
		}
		s, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("command %s: 'key' must be a string", raw.ID)
		}
		return KeyParams{Key: s}, nil

	case TypeScroll:
		delta, ok := f["delta"]
		if !ok {
			return nil, fmt.Errorf("command %s of type 'scroll' requires 'delta' field", raw.ID)
		}
		deltaN, ok := toFloat(delta)
		if !ok {
			return nil, fmt.Errorf("command %s: 'delta' must be a number", raw.ID)
		}
		params := ScrollParams{Delta: int(deltaN)}
		if x, ok := f["x"]; ok && x != nil {
			n, ok := toFloat(x)
			if !ok {
				return nil, fmt.Errorf("command %s: 'x' must be a number", raw.ID)
			}
			xi := int(n)
			params.X = &xi
		}
		if y, ok := f["y"]; ok && y != nil {
			n, ok := toFloat(y)
			if !ok {
				return nil, fmt.Errorf("command %s: 'y' must be a number", raw.ID)
			}
			yi := int(n)
			params.Y = &yi
		}
		if h, ok := f["horizontal"]; ok {
			b, ok := h.(bool)
			if !ok {
				return nil, fmt.Errorf("command %s: 'horizontal' must be a boolean", raw.ID)
			}
			params.Horizontal = b
		}
		return params, nil

	case TypeDrag:
		required := []string{"start_x", "start_y", "end_x", "end_y"}
		vals := make(map[string]int, 4)
		for _, name := range required {
			v, ok := f[name]
			if !ok {
				return nil, fmt.Errorf("command %s of type 'drag' requires '%s' field", raw.ID, name)
			}
			n, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("command %s: '%s' must be a number", raw.ID, name)
			}
			vals[name] = int(n)
		}
		button := "left"
		if b, ok := f["button"]; ok {
			s, ok := b.(string)
			if !ok {
				return nil, fmt.Errorf("command %s: 'button' must be a string", raw.ID)
			}
			button = s
		}
		duration := 0.5
		if d, ok := f["duration"]; ok {
			n, ok := toFloat(d)
			if !ok {
				return nil, fmt.Errorf("command %s: 'duration' must be a number", raw.ID)
			}
			duration = n
		}
		steps := 20
		if s, ok := f["steps"]; ok {
			n, ok := toFloat(s)
			if !ok {
				return nil, fmt.Errorf("command %s: 'steps' must be a number", raw.ID)
			}
			steps = int(n)
		}
		return DragParams{
			StartX: vals["start_x"], StartY: vals["start_y"],
			EndX: vals["end_x"], EndY: vals["end_y"],
			Button: button, Duration: duration, Steps: steps,
		}, nil
	}

	return nil, fmt.Errorf("unhandled command type %q", raw.Type)
}

func requireXY(id, typeName string, f map[string]any) (int, int, error) {
	xv, xok := f["x"]
	yv, yok := f["y"]
	if !xok || !yok {
		return 0, 0, fmt.Errorf("command %s of type %s requires 'x' and 'y' coordinates", id, typeName)
	}
	x, ok := toFloat(xv)
	if !ok {
		return 0, 0, fmt.Errorf("command %s: 'x' must be a number", id)
	}
	y, ok := toFloat(yv)
	if !ok {
		return 0, 0, fmt.Errorf("command %s: 'y' must be a number", id)
	}
	return int(x), int(y), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
