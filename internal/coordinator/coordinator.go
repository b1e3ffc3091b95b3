// Package coordinator wires the agent's components together and exposes
// the request-level operations the HTTP and WebSocket surfaces call into.
package coordinator

import (
	"time"

	"github.com/Bazza1982/lily-remote/internal/apierr"
	"github.com/Bazza1982/lily-remote/internal/audit"
	"github.com/Bazza1982/lily-remote/internal/commands"
	"github.com/Bazza1982/lily-remote/internal/config"
	"github.com/Bazza1982/lily-remote/internal/eventbus"
	"github.com/Bazza1982/lily-remote/internal/executor"
	"github.com/Bazza1982/lily-remote/internal/killswitch"
	"github.com/Bazza1982/lily-remote/internal/logging"
	"github.com/Bazza1982/lily-remote/internal/pairing"
	"github.com/Bazza1982/lily-remote/internal/ratelimit"
	"github.com/Bazza1982/lily-remote/internal/remote/desktop"
	"github.com/Bazza1982/lily-remote/internal/session"
	"github.com/Bazza1982/lily-remote/internal/streamer"
)

var log = logging.L("coordinator")

// Coordinator owns every long-lived component and is the single surface the
// HTTP and WebSocket handlers call into.
type Coordinator struct {
	Config *config.Config

	Pairing    *pairing.Manager
	Sessions   *session.Manager
	Queue      *commands.Queue
	Streamer   *streamer.Streamer
	RateLimit  *ratelimit.Limiter
	Events     *eventbus.Bus
	KillSwitch *killswitch.Coordinator
	Audit      *audit.Logger
}

// New builds and wires a Coordinator from config. It does not start the
// background worker or capture loop; call Start for that.
func New(cfg *config.Config, input desktop.Input, screen desktop.Screen, storePath string) (*Coordinator, error) {
	auditLogger, err := audit.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	pairingMgr := pairing.New(storePath, cfg.LANMode, time.Duration(cfg.PairingChallengeTTLSeconds)*time.Second)
	sessionMgr := session.New(time.Duration(cfg.SessionMaxDurationSeconds) * time.Second)
	queue := commands.NewQueue(cfg.CommandQueueCapacity)
	bus := eventbus.New()
	rl := ratelimit.New()
	ks := killswitch.New(sessionMgr, queue, bus)

	exec := executor.New(input)
	queue.SetExecutor(exec)

	frameStreamer := streamer.New(screen, streamer.Config{
		MinFPS: cfg.FrameMinFPS, MaxFPS: cfg.FrameMaxFPS, InitialFPS: cfg.FrameInitialFPS,
		MinQuality: cfg.FrameMinQuality, MaxQuality: cfg.FrameMaxQuality, InitQual: cfg.FrameInitQuality,
		Scale: cfg.FrameScale, MonitorIndex: cfg.FrameMonitorIdx,
	})
	frameStreamer.SetFrameCallback(func(jpegB64 string, metrics map[string]any) {
		bus.PublishFrame(jpegB64, metrics)
	})

	c := &Coordinator{
		Config: cfg, Pairing: pairingMgr, Sessions: sessionMgr, Queue: queue,
		Streamer: frameStreamer, RateLimit: rl, Events: bus, KillSwitch: ks, Audit: auditLogger,
	}

	queue.SetEventCallback(func(name string, payload map[string]any) {
		bus.Publish(name, payload)
		if name == "command_done" {
			auditLogger.Log(audit.EventCommandCompleted, stringField(payload, "id"), payload)
		}
	})

	return c, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Start begins background processing: the command worker and graceful
// readiness for the frame streamer (which starts lazily on first
// start_streaming request, per spec).
func (c *Coordinator) Start() {
	c.Queue.StartProcessing()
	c.Audit.Log(audit.EventAgentStart, "", map[string]any{})
}

// Shutdown performs the mandated graceful shutdown sequence: stop the frame
// streamer, stop the queue worker, force-end all sessions, flush the audit
// sink.
func (c *Coordinator) Shutdown() {
	c.Streamer.Stop()
	c.Queue.StopProcessing()
	endedSessions := c.Sessions.ForceEndAll()
	for _, sessionID := range endedSessions {
		c.Queue.CancelForSession(sessionID)
	}
	log.Info("shutdown: force-ended sessions", "count", len(endedSessions))
	c.Audit.Log(audit.EventAgentStop, "", map[string]any{"sessionsEnded": len(endedSessions)})
	c.Audit.Close()
}

// StartSession starts a session for clientID, gated by the kill switch.
func (c *Coordinator) StartSession(clientID string) (*session.Session, error) {
	if c.KillSwitch.IsActive() {
		return nil, apierr.ServiceUnavailablef("kill switch is active")
	}
	sess, err := c.Sessions.Start(clientID)
	if err != nil {
		return nil, err
	}
	c.Audit.Log(audit.EventSessionStarted, "", map[string]any{"sessionId": sess.SessionID, "clientId": clientID})
	return sess, nil
}

// EndSession ends a session and cancels any queued commands still pending
// under it.
func (c *Coordinator) EndSession(sessionID, clientID string) (*session.Session, int, error) {
	sess, err := c.Sessions.End(sessionID, clientID)
	if err != nil {
		return nil, 0, err
	}
	cancelled := c.Queue.CancelForSession(sessionID)
	c.Audit.Log(audit.EventSessionEnded, "", map[string]any{"sessionId": sessionID, "clientId": clientID, "reason": "client_requested"})
	return sess, cancelled, nil
}

// SubmitCommands validates the session and the kill switch gate, then
// enqueues the batch.
func (c *Coordinator) SubmitCommands(sessionID, clientID string, raws []commands.RawCommand) ([]string, error) {
	if c.KillSwitch.IsActive() {
		return nil, apierr.ServiceUnavailablef("kill switch is active")
	}
	if _, err := c.Sessions.Validate(sessionID, clientID); err != nil {
		return nil, err
	}
	ids, err := c.Queue.Submit(raws, sessionID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		c.Sessions.IncrementCommandCount(sessionID)
		c.Audit.Log(audit.EventCommandSubmitted, id, map[string]any{"sessionId": sessionID})
	}
	return ids, nil
}

// ActivateKillSwitch engages the emergency gate.
func (c *Coordinator) ActivateKillSwitch(clientID, ip string) (int, error) {
	n, err := c.KillSwitch.Activate(clientID, ip)
	if err != nil {
		return 0, err
	}
	c.Audit.Log(audit.EventKillSwitchOn, "", map[string]any{"clientId": clientID, "ip": ip, "terminated": n})
	return n, nil
}

// DeactivateKillSwitch clears the emergency gate.
func (c *Coordinator) DeactivateKillSwitch() bool {
	wasActive := c.KillSwitch.Deactivate()
	c.Audit.Log(audit.EventKillSwitchOff, "", map[string]any{})
	return wasActive
}
