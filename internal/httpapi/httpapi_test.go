package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

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

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.AuditDir = t.TempDir()
	cfg.LANMode = true
	// Generous limits: these tests exercise request handling, not the rate
	// limiter, which internal/ratelimit already covers directly.
	cfg.RateRequestsPerSecond = 1000
	cfg.RateCommandsPerSecond = 1000
	cfg.RatePairingPerMinute = 6000
	storePath := filepath.Join(t.TempDir(), "paired.json")

	coord, err := coordinator.New(cfg, fakeInput{}, fakeScreen{}, storePath)
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	coord.Start()
	t.Cleanup(coord.Shutdown)

	auth := authn.New(coord.Pairing, cfg.LANMode)
	return NewServer(coord, auth)
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestSessionStartEndRoundTrip(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s, "/session/start", nil)
	if rec.Code != 200 {
		t.Fatalf("session/start status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var start map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &start); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sessionID, _ := start["session_id"].(string)
	if sessionID == "" {
		t.Fatal("expected non-empty session_id")
	}

	rec = postJSON(t, s, "/session/end", map[string]any{"session_id": sessionID})
	if rec.Code != 200 {
		t.Fatalf("session/end status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitCommandsAndGetStatus(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s, "/session/start", nil)
	var start map[string]any
	json.Unmarshal(rec.Body.Bytes(), &start)
	sessionID := start["session_id"].(string)

	rec = postJSON(t, s, "/commands", map[string]any{
		"session_id": sessionID,
		"commands": []map[string]any{
			{"id": "k1", "type": "click", "x": 100, "y": 200},
		},
	})
	if rec.Code != 200 {
		t.Fatalf("commands submit status = %d, body = %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	var status string
	for time.Now().Before(deadline) {
		req := httptest.NewRequest("GET", "/commands/k1", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		var body map[string]any
		json.Unmarshal(rec.Body.Bytes(), &body)
		status, _ = body["status"].(string)
		if status == "succeeded" || status == "failed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status != "succeeded" {
		t.Fatalf("final status = %q, want succeeded", status)
	}
}

func TestKillSwitchActivateBlocksSessionStart(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s, "/kill-switch/activate", nil)
	if rec.Code != 200 {
		t.Fatalf("activate status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, s, "/session/start", nil)
	if rec.Code != 503 {
		t.Fatalf("session/start status = %d, want 503", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if _, ok := body["detail"]; !ok {
		t.Fatal("expected 'detail' field in error body")
	}

	rec = postJSON(t, s, "/kill-switch/deactivate", nil)
	if rec.Code != 200 {
		t.Fatalf("deactivate status = %d", rec.Code)
	}

	rec = postJSON(t, s, "/session/start", nil)
	if rec.Code != 200 {
		t.Fatalf("session/start after deactivate status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestKillSwitchStatusReportsInactiveInitially(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/kill-switch/status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if active, _ := body["active"].(bool); active {
		t.Fatal("expected kill switch to be inactive initially")
	}
}

func TestUnknownCommandIDReturns404(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/commands/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
