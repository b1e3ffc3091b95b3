package agentclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPairRequestConfirmRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pair/request":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["client_id"] != "ctl-1" {
				t.Errorf("unexpected client_id in request: %v", body["client_id"])
			}
			json.NewEncoder(w).Encode(map[string]any{
				"challenge":     "YWJj",
				"expires":       1234,
				"auto_approved": true,
			})
		case "/pair/confirm":
			json.NewEncoder(w).Encode(map[string]any{
				"paired":    true,
				"token":     "tok-123",
				"client_id": "ctl-1",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")

	req, err := c.PairRequest("ctl-1", "controller", "")
	if err != nil {
		t.Fatalf("PairRequest: %v", err)
	}
	if !req.AutoApproved || req.Challenge != "YWJj" {
		t.Fatalf("unexpected pair request result: %+v", req)
	}

	confirm, err := c.PairConfirm("ctl-1", []byte("sig"))
	if err != nil {
		t.Fatalf("PairConfirm: %v", err)
	}
	if !confirm.Paired || confirm.Token != "tok-123" {
		t.Fatalf("unexpected pair confirm result: %+v", confirm)
	}
}

func TestSessionAndCommandLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"detail": "missing or invalid token"})
			return
		}
		switch {
		case r.URL.Path == "/session/start":
			json.NewEncoder(w).Encode(map[string]any{
				"session_id": "sess-1", "client_id": "ctl-1", "started_at": 1, "command_count": 0,
			})
		case r.URL.Path == "/commands":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(map[string]any{"queued": []string{"cmd-1"}})
		case r.URL.Path == "/commands/cmd-1":
			json.NewEncoder(w).Encode(map[string]any{"id": "cmd-1", "status": "completed"})
		case r.URL.Path == "/session/end":
			json.NewEncoder(w).Encode(map[string]any{
				"ended": true, "session_id": "sess-1", "duration": 1.5, "commands_executed": 1,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-123")

	sess, err := c.StartSession()
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if sess.SessionID != "sess-1" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	ids, err := c.SubmitCommands(sess.SessionID, []map[string]any{{"id": "cmd-1", "type": "move", "x": 10, "y": 20}})
	if err != nil {
		t.Fatalf("SubmitCommands: %v", err)
	}
	if len(ids) != 1 || ids[0] != "cmd-1" {
		t.Fatalf("unexpected queued ids: %v", ids)
	}

	status, err := c.GetCommand("cmd-1")
	if err != nil {
		t.Fatalf("GetCommand: %v", err)
	}
	if status["status"] != "completed" {
		t.Fatalf("unexpected command status: %+v", status)
	}

	summary, err := c.EndSession(sess.SessionID)
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if !summary.Ended || summary.CommandsExecuted != 1 {
		t.Fatalf("unexpected session summary: %+v", summary)
	}
}

func TestRequestFailureSurfacesDetail(t *testing.T) {
	// A non-retryable 4xx status so the request fails on the first attempt
	// and the test doesn't pay httputil's retry backoff.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{"detail": "session already active"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-123")
	_, err := c.StartSession()
	if err == nil {
		t.Fatal("expected error for conflict response")
	}
	if !strings.Contains(err.Error(), "session already active") {
		t.Fatalf("error %q does not carry the server detail", err)
	}
}
