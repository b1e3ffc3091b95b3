package wsapi

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Bazza1982/lily-remote/internal/authn"
	"github.com/Bazza1982/lily-remote/internal/config"
	"github.com/Bazza1982/lily-remote/internal/coordinator"
	"github.com/Bazza1982/lily-remote/internal/remote/desktop"
)

type fakeInput struct{}

func (fakeInput) Move(x, y int) desktop.CapabilityResult { return desktop.CapabilityResult{Success: true} }
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

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.AuditDir = t.TempDir()
	cfg.LANMode = true
	storePath := filepath.Join(t.TempDir(), "paired.json")

	coord, err := coordinator.New(cfg, fakeInput{}, fakeScreen{}, storePath)
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	coord.Start()
	t.Cleanup(coord.Shutdown)

	auth := authn.New(coord.Pairing, cfg.LANMode)
	h := NewHandler(coord, auth)
	return httptest.NewServer(h)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPingReceivesPong(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	conn := dial(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`"ping"`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != `"pong"` {
		t.Fatalf("got %q, want %q", msg, `"pong"`)
	}
}

func TestCaptureFrameReturnsFrameMessage(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	conn := dial(t, srv)

	if err := conn.WriteJSON(map[string]string{"action": "capture_frame"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(msg, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["type"] != "frame" {
		t.Fatalf("type = %v, want frame", body["type"])
	}
	if body["data"] == "" {
		t.Fatal("expected non-empty frame data")
	}
}

func TestGetStatusReturnsStatusMessage(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	conn := dial(t, srv)

	if err := conn.WriteJSON(map[string]string{"action": "get_status"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(msg, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["type"] != "status" {
		t.Fatalf("type = %v, want status", body["type"])
	}
}

func TestActionsAreRateLimitedPerClient(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	conn := dial(t, srv)

	// config.Default's ws burst is small enough that hammering get_status
	// well past it trips the ws:{client_id} scope.
	var sawRateLimited bool
	for i := 0; i < 200; i++ {
		if err := conn.WriteJSON(map[string]string{"action": "get_status"}); err != nil {
			t.Fatalf("write: %v", err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var body map[string]any
		if err := json.Unmarshal(msg, &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if body["type"] == "error" {
			sawRateLimited = true
			break
		}
	}
	if !sawRateLimited {
		t.Fatal("expected ws:{client_id} rate limit to eventually reject an action")
	}
}

func TestUnknownActionReturnsErrorMessage(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	conn := dial(t, srv)

	if err := conn.WriteJSON(map[string]string{"action": "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(msg, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["type"] != "error" {
		t.Fatalf("type = %v, want error", body["type"])
	}
}
