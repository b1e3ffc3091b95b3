package commands

import (
	"context"
	"sync"
	"time"

	"github.com/Bazza1982/lily-remote/internal/apierr"
	"github.com/Bazza1982/lily-remote/internal/logging"
)

var log = logging.L("commands")

const commandTimeout = 30 * time.Second

// Executor runs a single validated Command and produces its Result. The
// executor's blocking platform calls are dispatched off the queue worker
// (see internal/executor), so Execute here simply needs to respect ctx.
type Executor interface {
	Execute(ctx context.Context, cmd *Command) Result
}

// EventFunc is invoked after a command reaches a terminal state.
type EventFunc func(eventName string, payload map[string]any)

// Queue is the bounded FIFO command queue with single-worker dispatch.
type Queue struct {
	capacity int

	ch chan *Command

	dirMu sync.Mutex
	dir   map[string]*Command

	executor Executor
	onEvent  EventFunc

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	runMu   sync.Mutex
}

func NewQueue(capacity int) *Queue {
	return &Queue{
		capacity: capacity,
		ch:       make(chan *Command, capacity),
		dir:      make(map[string]*Command),
	}
}

func (q *Queue) SetExecutor(e Executor)       { q.executor = e }
func (q *Queue) SetEventCallback(f EventFunc) { q.onEvent = f }

// Submit validates and enqueues a batch of raw commands atomically: the
// whole batch is rejected on the first validation failure, duplicate id, or
// queue-full condition, and no partial acceptance occurs.
func (q *Queue) Submit(raws []RawCommand, sessionID string) ([]string, error) {
	q.dirMu.Lock()
	defer q.dirMu.Unlock()

	type prepared struct {
		id  string
		cmd *Command
	}
	batch := make([]prepared, 0, len(raws))
	seen := make(map[string]bool, len(raws))

	for _, raw := range raws {
		if raw.ID == "" {
			return nil, apierr.InvalidArgumentf("command missing 'id' field")
		}
		if raw.Type == "" {
			return nil, apierr.InvalidArgumentf("command %s missing 'type' field", raw.ID)
		}
		if _, exists := q.dir[raw.ID]; exists {
			return nil, apierr.InvalidArgumentf("duplicate command ID: %s", raw.ID)
		}
		if seen[raw.ID] {
			return nil, apierr.InvalidArgumentf("duplicate command ID: %s", raw.ID)
		}
		seen[raw.ID] = true

		params, err := validate(raw)
		if err != nil {
			return nil, apierr.InvalidArgumentf("%v", err)
		}

		cmd := &Command{
			ID:        raw.ID,
			Type:      Type(raw.Type),
			SessionID: sessionID,
			Params:    params,
			Status:    StatusQueued,
			CreatedAt: time.Now(),
		}
		batch = append(batch, prepared{id: raw.ID, cmd: cmd})
	}

	if len(q.ch)+len(batch) > q.capacity {
		return nil, apierr.ServiceUnavailablef("command queue is full")
	}

	ids := make([]string, 0, len(batch))
	for _, p := range batch {
		select {
		case q.ch <- p.cmd:
		default:
			// Should not happen given the capacity check above, but never
			// silently drop an already-announced id.
			return nil, apierr.ServiceUnavailablef("command queue is full")
		}
		q.dir[p.id] = p.cmd
		ids = append(ids, p.id)
	}

	return ids, nil
}

// GetStatus returns a command by id.
func (q *Queue) GetStatus(id string) (*Command, error) {
	q.dirMu.Lock()
	defer q.dirMu.Unlock()
	cmd, ok := q.dir[id]
	if !ok {
		return nil, apierr.NotFoundf("command %s not found", id)
	}
	return cmd, nil
}

// PendingCount returns the number of queued-but-not-yet-dequeued commands.
func (q *Queue) PendingCount() int {
	return len(q.ch)
}

// Execute runs a single command through the configured executor under the
// hard timeout, updates its terminal state, and fires the completion event.
func (q *Queue) Execute(cmd *Command) Result {
	cmd.Status = StatusRunning
	cmd.StartedAt = time.Now()

	var result Result
	if q.executor == nil {
		result = Result{Success: false, Error: "no executor configured", ExecutedAt: time.Now()}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		done := make(chan Result, 1)
		go func() {
			done <- q.executor.Execute(ctx, cmd)
		}()
		select {
		case result = <-done:
		case <-ctx.Done():
			result = Result{Success: false, Error: "Command timed out after 30.0s", ExecutedAt: time.Now()}
		}
		cancel()
	}

	cmd.Result = &result
	cmd.CompletedAt = time.Now()
	if result.Success {
		cmd.Status = StatusSucceeded
	} else {
		cmd.Status = StatusFailed
	}

	if q.onEvent != nil {
		func() {
			defer func() { recover() }() // callback failures never affect command state
			q.onEvent("command_done", map[string]any{
				"id":     cmd.ID,
				"status": string(cmd.Status),
				"result": result.Data,
				"error":  result.Error,
			})
		}()
	}

	return result
}

// StartProcessing spawns the single background worker. Idempotent.
func (q *Queue) StartProcessing() {
	q.runMu.Lock()
	defer q.runMu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})
	go q.processLoop()
}

// StopProcessing cancels the worker cooperatively and waits for it to exit.
func (q *Queue) StopProcessing() {
	q.runMu.Lock()
	if !q.running {
		q.runMu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	done := q.doneCh
	q.runMu.Unlock()

	<-done
}

func (q *Queue) processLoop() {
	defer close(q.doneCh)
	for {
		select {
		case <-q.stopCh:
			return
		case cmd := <-q.ch:
			if cmd.Status == StatusFailed {
				// Already cancelled (e.g. by CancelForSession) while queued.
				continue
			}
			q.Execute(cmd)
		}
	}
}

// CancelForSession transitions every Queued command belonging to sessionID
// to Failed with reason "Session ended". Running commands are not
// preempted (see DESIGN.md open questions).
func (q *Queue) CancelForSession(sessionID string) int {
	q.dirMu.Lock()
	defer q.dirMu.Unlock()

	cancelled := 0
	for _, cmd := range q.dir {
		if cmd.SessionID == sessionID && cmd.Status == StatusQueued {
			cmd.Status = StatusFailed
			cmd.Result = &Result{Success: false, Error: "Session ended", ExecutedAt: time.Now()}
			cmd.CompletedAt = time.Now()
			cancelled++
		}
	}
	return cancelled
}

// ClearCompleted removes terminal commands older than maxAge from the
// directory and returns how many were removed.
func (q *Queue) ClearCompleted(maxAge time.Duration) int {
	q.dirMu.Lock()
	defer q.dirMu.Unlock()

	now := time.Now()
	removed := 0
	for id, cmd := range q.dir {
		if (cmd.Status == StatusSucceeded || cmd.Status == StatusFailed) && !cmd.CompletedAt.IsZero() {
			if now.Sub(cmd.CompletedAt) > maxAge {
				delete(q.dir, id)
				removed++
			}
		}
	}
	return removed
}
