package commands

import (
	"context"
	"testing"
	"time"

	"github.com/Bazza1982/lily-remote/internal/apierr"
)

type fakeExecutor struct {
	delay   time.Duration
	result  Result
	calls   chan *Command
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		result: Result{Success: true, Data: map[string]any{"ok": true}, ExecutedAt: time.Now()},
		calls:  make(chan *Command, 64),
	}
}

func (f *fakeExecutor) Execute(ctx context.Context, cmd *Command) Result {
	f.calls <- cmd
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Result{Success: false, Error: "context canceled", ExecutedAt: time.Now()}
		}
	}
	return f.result
}

func clickBatch(ids ...string) []RawCommand {
	batch := make([]RawCommand, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, RawCommand{
			ID:   id,
			Type: string(TypeClick),
			Fields: map[string]any{
				"x": 10, "y": 20,
			},
		})
	}
	return batch
}

func TestSubmitAndProcessSucceeds(t *testing.T) {
	q := NewQueue(10)
	exec := newFakeExecutor()
	q.SetExecutor(exec)
	q.StartProcessing()
	defer q.StopProcessing()

	ids, err := q.Submit(clickBatch("a"), "sess-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("ids = %v, want [a]", ids)
	}

	deadline := time.After(time.Second)
	for {
		cmd, err := q.GetStatus("a")
		if err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
		if cmd.Status == StatusSucceeded {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("command never reached Succeeded, last status: %s", cmd.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSubmitRejectsWholeBatchOnFirstValidationFailure(t *testing.T) {
	q := NewQueue(10)

	batch := clickBatch("a")
	batch = append(batch, RawCommand{ID: "b", Type: string(TypeClick), Fields: map[string]any{"x": 1}}) // missing y

	if _, err := q.Submit(batch, "sess-1"); err == nil {
		t.Fatal("expected validation failure to reject whole batch")
	}
	if _, err := q.GetStatus("a"); err == nil {
		t.Fatal("command 'a' should not have been inserted when the batch was rejected")
	}
}

func TestSubmitRejectsDuplicateIDWithinBatch(t *testing.T) {
	q := NewQueue(10)
	batch := clickBatch("a", "a")
	if _, err := q.Submit(batch, "sess-1"); err == nil {
		t.Fatal("expected duplicate id within batch to be rejected")
	}
}

func TestSubmitRejectsDuplicateIDAgainstExisting(t *testing.T) {
	q := NewQueue(10)
	if _, err := q.Submit(clickBatch("a"), "sess-1"); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := q.Submit(clickBatch("a"), "sess-1"); err == nil {
		t.Fatal("expected duplicate id against existing directory entry to be rejected")
	}
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	q := NewQueue(2)
	if _, err := q.Submit(clickBatch("a", "b"), "sess-1"); err != nil {
		t.Fatalf("Submit to capacity: %v", err)
	}
	_, err := q.Submit(clickBatch("c"), "sess-1")
	if err == nil {
		t.Fatal("expected queue-full rejection")
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.ServiceUnavailable {
		t.Fatalf("expected apierr.ServiceUnavailable, got %v", err)
	}
}

// TestExecuteReturnsExecutorResultBeforeTimeout exercises the common path
// where the executor finishes well within the 30s hard timeout. The timeout
// branch itself (commandTimeout) is too long to exercise in a unit test
// without mocking time, so it is covered by inspection of the constant and
// the literal message it produces.
func TestExecuteReturnsExecutorResultBeforeTimeout(t *testing.T) {
	q := NewQueue(10)
	exec := newFakeExecutor()
	q.SetExecutor(exec)

	cmd := &Command{ID: "fast", Type: TypeClick, Status: StatusQueued, CreatedAt: time.Now()}
	res := q.Execute(cmd)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if cmd.Status != StatusSucceeded {
		t.Fatalf("cmd.Status = %s, want Succeeded", cmd.Status)
	}
}

func TestExecuteWithNoExecutorConfiguredFails(t *testing.T) {
	q := NewQueue(10)
	cmd := &Command{ID: "a", Type: TypeClick, Status: StatusQueued, CreatedAt: time.Now()}
	res := q.Execute(cmd)
	if res.Success {
		t.Fatal("expected failure when no executor is configured")
	}
	if cmd.Status != StatusFailed {
		t.Fatalf("cmd.Status = %s, want Failed", cmd.Status)
	}
}

func TestCancelForSessionFailsOnlyQueuedCommands(t *testing.T) {
	q := NewQueue(10)
	if _, err := q.Submit(clickBatch("a", "b"), "sess-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	n := q.CancelForSession("sess-1")
	if n != 2 {
		t.Fatalf("CancelForSession = %d, want 2", n)
	}

	cmd, err := q.GetStatus("a")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if cmd.Status != StatusFailed || cmd.Result == nil || cmd.Result.Error != "Session ended" {
		t.Fatalf("expected command to be Failed with 'Session ended', got %+v", cmd)
	}
}

func TestClearCompletedRemovesOnlyAgedTerminalCommands(t *testing.T) {
	q := NewQueue(10)
	if _, err := q.Submit(clickBatch("a", "b"), "sess-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	q.CancelForSession("sess-1") // both become Failed with CompletedAt = now

	if n := q.ClearCompleted(time.Hour); n != 0 {
		t.Fatalf("ClearCompleted with long maxAge = %d, want 0", n)
	}
	if n := q.ClearCompleted(0); n != 2 {
		t.Fatalf("ClearCompleted with zero maxAge = %d, want 2", n)
	}
	if _, err := q.GetStatus("a"); err == nil {
		t.Fatal("expected command 'a' to have been cleared")
	}
}

func TestGetStatusNotFound(t *testing.T) {
	q := NewQueue(10)
	_, err := q.GetStatus("missing")
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.NotFound {
		t.Fatalf("expected apierr.NotFound, got %v", err)
	}
}

func TestStopProcessingIsIdempotentAndDrainsWorker(t *testing.T) {
	q := NewQueue(10)
	q.SetExecutor(newFakeExecutor())
	q.StartProcessing()
	q.StartProcessing() // idempotent
	q.StopProcessing()
	q.StopProcessing() // idempotent
}
