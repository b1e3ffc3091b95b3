package session

import (
	"sync"
	"testing"
	"time"

	"github.com/Bazza1982/lily-remote/internal/apierr"
)

func TestStartAndEnd(t *testing.T) {
	m := New(time.Hour)

	sess, err := m.Start("c-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(sess.SessionID) != 32 {
		t.Fatalf("session id should be 16 bytes hex (32 chars), got %d", len(sess.SessionID))
	}
	if !sess.IsActive() {
		t.Fatal("new session should be active")
	}

	ended, err := m.End(sess.SessionID, "c-1")
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.IsActive() {
		t.Fatal("ended session should not be active")
	}
}

func TestStartConflictsWithActiveSession(t *testing.T) {
	m := New(time.Hour)
	if _, err := m.Start("c-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := m.Start("c-1")
	if err == nil {
		t.Fatal("expected Conflict on second Start")
	}
	if apiErr, ok := apierr.As(err); !ok || apiErr.Kind != apierr.Conflict {
		t.Fatalf("expected apierr.Conflict, got %v", err)
	}
}

func TestEndWrongOwnerIsForbidden(t *testing.T) {
	m := New(time.Hour)
	sess, _ := m.Start("c-1")
	_, err := m.End(sess.SessionID, "c-2")
	if err == nil {
		t.Fatal("expected Forbidden for owner mismatch")
	}
	if apiErr, ok := apierr.As(err); !ok || apiErr.Kind != apierr.Forbidden {
		t.Fatalf("expected apierr.Forbidden, got %v", err)
	}
}

func TestEndUnknownSessionNotFound(t *testing.T) {
	m := New(time.Hour)
	_, err := m.End("does-not-exist", "c-1")
	if apiErr, ok := apierr.As(err); !ok || apiErr.Kind != apierr.NotFound {
		t.Fatalf("expected apierr.NotFound, got %v", err)
	}
}

func TestExpiredSessionTransitionsOnAccess(t *testing.T) {
	m := New(1 * time.Millisecond)
	sess, _ := m.Start("c-1")
	time.Sleep(5 * time.Millisecond)

	if _, err := m.Validate(sess.SessionID, "c-1"); err == nil {
		t.Fatal("expected Validate to fail for expired session")
	}

	got, ok := m.Get(sess.SessionID)
	if !ok {
		t.Fatal("expected session to still exist after expiry")
	}
	if got.IsActive() {
		t.Fatal("expired session should have been transitioned to Ended on access")
	}
}

func TestStartAfterExpiryReplacesSession(t *testing.T) {
	m := New(1 * time.Millisecond)
	first, _ := m.Start("c-1")
	time.Sleep(5 * time.Millisecond)

	second, err := m.Start("c-1")
	if err != nil {
		t.Fatalf("Start after expiry should succeed, got: %v", err)
	}
	if second.SessionID == first.SessionID {
		t.Fatal("expected a fresh session id")
	}
}

func TestIncrementCommandCount(t *testing.T) {
	m := New(time.Hour)
	sess, _ := m.Start("c-1")

	for i := 1; i <= 3; i++ {
		count, err := m.IncrementCommandCount(sess.SessionID)
		if err != nil {
			t.Fatalf("IncrementCommandCount: %v", err)
		}
		if count != i {
			t.Fatalf("count = %d, want %d", count, i)
		}
	}
}

func TestForceEndAllIsIdempotent(t *testing.T) {
	m := New(time.Hour)
	m.Start("c-1")
	m.Start("c-2")

	if ids := m.ForceEndAll(); len(ids) != 2 {
		t.Fatalf("ForceEndAll = %v, want 2 ids", ids)
	}
	if ids := m.ForceEndAll(); len(ids) != 0 {
		t.Fatalf("second ForceEndAll = %v, want none (idempotent)", ids)
	}
}

func TestGetActiveSessionsExcludesEnded(t *testing.T) {
	m := New(time.Hour)
	s1, _ := m.Start("c-1")
	m.Start("c-2")
	m.End(s1.SessionID, "c-1")

	active := m.GetActiveSessions()
	if len(active) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(active))
	}
	if active[0].ClientID != "c-2" {
		t.Fatalf("expected remaining session to belong to c-2, got %s", active[0].ClientID)
	}
}

func TestConcurrentStartForDistinctClients(t *testing.T) {
	m := New(time.Hour)
	var wg sync.WaitGroup
	errs := make(chan error, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			clientID := string(rune('a' + n%26))
			if _, err := m.Start(clientID); err != nil {
				// Conflicts are expected when n and n+26 collide on the same letter.
				if apiErr, ok := apierr.As(err); !ok || apiErr.Kind != apierr.Conflict {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
}
