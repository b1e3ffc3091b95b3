package killswitch

import "testing"

type fakeSessions struct{ ids []string }

func (f *fakeSessions) ForceEndAll() []string { return f.ids }

type fakeQueue struct {
	cancelled map[string]int
	calls     []string
}

func (f *fakeQueue) CancelForSession(sessionID string) int {
	f.calls = append(f.calls, sessionID)
	if f.cancelled == nil {
		return 0
	}
	return f.cancelled[sessionID]
}

type fakeBus struct {
	published []struct {
		name    string
		payload map[string]any
	}
}

func (f *fakeBus) Publish(name string, payload map[string]any) {
	f.published = append(f.published, struct {
		name    string
		payload map[string]any
	}{name, payload})
}

func TestActivateEndsSessionsAndBroadcasts(t *testing.T) {
	sessions := &fakeSessions{ids: []string{"sess-1", "sess-2", "sess-3"}}
	queue := &fakeQueue{}
	bus := &fakeBus{}
	c := New(sessions, queue, bus)

	var observed int
	c.SetSessionChangeObserver(func(active int, reason *string) { observed = active })

	n, err := c.Activate("controller-1", "10.0.0.5")
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if n != 3 {
		t.Fatalf("terminated = %d, want 3", n)
	}
	if !c.IsActive() {
		t.Fatal("expected kill switch to be active")
	}
	if observed != 0 {
		t.Fatalf("observer called with %d, want 0", observed)
	}

	foundKillSwitch := false
	sessionEndedCount := 0
	for _, p := range bus.published {
		if p.name == "kill_switch" && p.payload["activated"] == true {
			foundKillSwitch = true
		}
		if p.name == "session_ended" {
			sessionEndedCount++
		}
	}
	if !foundKillSwitch {
		t.Fatal("expected a kill_switch activated=true broadcast")
	}
	if sessionEndedCount != 3 {
		t.Fatalf("session_ended broadcasts = %d, want 3", sessionEndedCount)
	}
}

func TestActivateCancelsQueuedCommandsPerSession(t *testing.T) {
	sessions := &fakeSessions{ids: []string{"sess-1", "sess-2"}}
	queue := &fakeQueue{cancelled: map[string]int{"sess-1": 2, "sess-2": 5}}
	bus := &fakeBus{}
	c := New(sessions, queue, bus)

	if _, err := c.Activate("controller-1", "10.0.0.5"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	// CancelForSession must be called once per ended session id, not just once
	// overall; fakeQueue records every id it is called with.
	if len(queue.calls) != 2 || queue.calls[0] != "sess-1" || queue.calls[1] != "sess-2" {
		t.Fatalf("CancelForSession calls = %v, want [sess-1 sess-2]", queue.calls)
	}

	seen := map[string]bool{}
	for _, p := range bus.published {
		if p.name == "session_ended" {
			if id, ok := p.payload["sessionId"].(string); ok {
				seen[id] = true
			}
		}
	}
	if !seen["sess-1"] || !seen["sess-2"] {
		t.Fatalf("expected session_ended broadcasts for both sessions, got %v", seen)
	}
}

func TestDeactivateReportsPriorState(t *testing.T) {
	sessions := &fakeSessions{}
	queue := &fakeQueue{}
	bus := &fakeBus{}
	c := New(sessions, queue, bus)

	if was := c.Deactivate(); was {
		t.Fatal("Deactivate on a never-activated switch should report false")
	}

	c.Activate("controller-1", "10.0.0.5")
	if was := c.Deactivate(); !was {
		t.Fatal("Deactivate after Activate should report true")
	}
	if c.IsActive() {
		t.Fatal("expected kill switch to be inactive after Deactivate")
	}
}
