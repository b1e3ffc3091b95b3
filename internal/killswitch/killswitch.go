// Package killswitch implements the process-wide emergency gate: a single
// operation that force-ends every active session and blocks new sessions
// and command submissions until explicitly deactivated.
package killswitch

import (
	"sync"
	"time"

	"github.com/Bazza1982/lily-remote/internal/logging"
)

var log = logging.L("killswitch")

// SessionEnder is the subset of the session manager the kill switch drives.
type SessionEnder interface {
	ForceEndAll() []string
}

// CommandCanceller is the subset of the command queue the kill switch drives
// to fail out commands still queued under a force-ended session.
type CommandCanceller interface {
	CancelForSession(sessionID string) int
}

// Broadcaster is the subset of the event bus the kill switch drives.
type Broadcaster interface {
	Publish(name string, payload map[string]any)
}

// SessionChangeObserver is notified whenever the kill switch forcibly
// terminates sessions.
type SessionChangeObserver func(activeCount int, reason *string)

// State reports whether the kill switch is currently engaged.
type State struct {
	Active       bool
	ActivatedAt  time.Time
	ActivatedBy  string
	ActivatedIP  string
}

// Coordinator owns the kill switch state and its session-manager/event-bus
// side effects.
type Coordinator struct {
	mu    sync.Mutex
	state State

	sessions SessionEnder
	queue    CommandCanceller
	bus      Broadcaster
	onChange SessionChangeObserver
}

func New(sessions SessionEnder, queue CommandCanceller, bus Broadcaster) *Coordinator {
	return &Coordinator{sessions: sessions, queue: queue, bus: bus}
}

// SetSessionChangeObserver registers the callback notified on activation.
func (c *Coordinator) SetSessionChangeObserver(fn SessionChangeObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// IsActive reports whether the kill switch currently gates session-start
// and command-submit.
func (c *Coordinator) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Active
}

// State returns a snapshot of the current kill switch state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Activate force-ends every active session, cancels any commands still
// queued under them, and engages the gate.
func (c *Coordinator) Activate(clientID, ip string) (terminatedCount int, err error) {
	c.mu.Lock()
	endedSessions := c.sessions.ForceEndAll()
	c.state = State{Active: true, ActivatedAt: time.Now(), ActivatedBy: clientID, ActivatedIP: ip}
	onChange := c.onChange
	c.mu.Unlock()

	terminated := len(endedSessions)
	log.Warn("kill switch activated", "clientId", clientID, "ip", ip, "terminatedSessions", terminated)
	reason := "kill_switch"
	for _, sessionID := range endedSessions {
		if cancelled := c.queue.CancelForSession(sessionID); cancelled > 0 {
			log.Info("kill switch cancelled queued commands", "sessionId", sessionID, "count", cancelled)
		}
		c.bus.Publish("session_ended", map[string]any{"reason": reason, "sessionId": sessionID})
	}
	c.bus.Publish("kill_switch", map[string]any{"activated": true, "terminated_count": terminated})

	if onChange != nil {
		onChange(0, nil)
	}
	return terminated, nil
}

// Deactivate clears the gate.
func (c *Coordinator) Deactivate() (wasActive bool) {
	c.mu.Lock()
	wasActive = c.state.Active
	c.state = State{}
	c.mu.Unlock()

	log.Info("kill switch deactivated", "wasActive", wasActive)
	c.bus.Publish("kill_switch", map[string]any{"activated": false})
	return wasActive
}
