package coordinator

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Bazza1982/lily-remote/internal/commands"
	"github.com/Bazza1982/lily-remote/internal/config"
	"github.com/Bazza1982/lily-remote/internal/remote/desktop"
)

type fakeInput struct{}

func (fakeInput) Move(x, y int) desktop.CapabilityResult                 { return desktop.CapabilityResult{Success: true} }
func (fakeInput) Click(x, y int, button string, count int) desktop.CapabilityResult {
	return desktop.CapabilityResult{Success: true}
}
func (fakeInput) Drag(sx, sy, ex, ey int, button string, duration time.Duration, steps int) desktop.CapabilityResult {
	return desktop.CapabilityResult{Success: true}
}
func (fakeInput) Scroll(delta int, x, y *int, horizontal bool) desktop.CapabilityResult {
	return desktop.CapabilityResult{Success: true}
}
func (fakeInput) KeyDown(key string) desktop.CapabilityResult  { return desktop.CapabilityResult{Success: true} }
func (fakeInput) KeyUp(key string) desktop.CapabilityResult    { return desktop.CapabilityResult{Success: true} }
func (fakeInput) KeyPress(key string) desktop.CapabilityResult { return desktop.CapabilityResult{Success: true} }
func (fakeInput) Hotkey(keys []string) desktop.CapabilityResult { return desktop.CapabilityResult{Success: true} }
func (fakeInput) TypeText(text string, interval time.Duration) desktop.CapabilityResult {
	return desktop.CapabilityResult{Success: true}
}
func (fakeInput) CursorPosition() (int, int, error)                  { return 100, 200, nil }
func (fakeInput) ForegroundWindowInfo() (desktop.WindowInfo, error) { return desktop.WindowInfo{Title: "Desktop"}, nil }

type fakeScreen struct{}

func (fakeScreen) Capture(monitorIndex int) ([]byte, int, int, error) {
	return make([]byte, 4*4*4), 4, 4, nil
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	cfg := config.Default()
	cfg.AuditDir = t.TempDir()
	storePath := filepath.Join(t.TempDir(), "paired.json")

	c, err := New(cfg, fakeInput{}, fakeScreen{}, storePath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Start()
	t.Cleanup(c.Shutdown)
	return c
}

func TestStartSessionSubmitAndExecuteClick(t *testing.T) {
	c := newTestCoordinator(t)

	sess, err := c.StartSession("client-a")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	ch, unsub := c.Events.SubscribeEvents("test")
	defer unsub()

	ids, err := c.SubmitCommands(sess.SessionID, "client-a", []commands.RawCommand{
		{ID: "k1", Type: "click", Fields: map[string]any{"x": 100, "y": 200}},
	})
	if err != nil {
		t.Fatalf("SubmitCommands: %v", err)
	}
	if len(ids) != 1 || ids[0] != "k1" {
		t.Fatalf("ids = %v, want [k1]", ids)
	}

	select {
	case evt := <-ch:
		if evt.Name != "command_done" {
			t.Fatalf("event name = %q, want command_done", evt.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected command_done event")
	}

	cmd, err := c.Queue.GetStatus("k1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if cmd.Status != commands.StatusSucceeded {
		t.Fatalf("status = %v, want succeeded", cmd.Status)
	}
}

func TestKillSwitchBlocksSessionStartAndFailsQueuedCommands(t *testing.T) {
	c := newTestCoordinator(t)

	sess, err := c.StartSession("client-a")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	c.Queue.StopProcessing() // keep the command queued, not executed

	if _, err := c.SubmitCommands(sess.SessionID, "client-a", []commands.RawCommand{
		{ID: "k1", Type: "click", Fields: map[string]any{"x": 1, "y": 1}},
	}); err != nil {
		t.Fatalf("SubmitCommands: %v", err)
	}

	n, err := c.ActivateKillSwitch("controller-1", "10.0.0.5")
	if err != nil {
		t.Fatalf("ActivateKillSwitch: %v", err)
	}
	if n != 1 {
		t.Fatalf("terminated = %d, want 1", n)
	}

	if _, err := c.StartSession("client-b"); err == nil {
		t.Fatal("expected StartSession to fail while kill switch active")
	}

	cmd, err := c.Queue.GetStatus("k1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if cmd.Status != commands.StatusFailed || cmd.Result.Error != "Session ended" {
		t.Fatalf("cmd = %+v, want failed/Session ended", cmd)
	}
}
