// Package wsapi implements the server side of the WS /events endpoint: the
// upgrade handshake, the client→server message grammar, and the
// server→client frame/event/keepalive pushes.
package wsapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Bazza1982/lily-remote/internal/apierr"
	"github.com/Bazza1982/lily-remote/internal/authn"
	"github.com/Bazza1982/lily-remote/internal/coordinator"
	"github.com/Bazza1982/lily-remote/internal/eventbus"
	"github.com/Bazza1982/lily-remote/internal/logging"
)

var log = logging.L("wsapi")

const (
	writeTimeout    = 10 * time.Second
	keepaliveEvery  = 30 * time.Second
	outboxCap       = 64
)

var connCounter atomic.Int64

// Handler upgrades and drives WS /events connections.
type Handler struct {
	coord    *coordinator.Coordinator
	authn    *authn.Authenticator
	upgrader websocket.Upgrader
}

func NewHandler(coord *coordinator.Coordinator, auth *authn.Authenticator) *Handler {
	return &Handler{
		coord: coord,
		authn: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID, err := h.authn.AuthenticateWebSocket(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}

	id := clientID + "-" + strconv.FormatInt(connCounter.Add(1), 10)
	c := &session{
		id:       id,
		clientID: clientID,
		conn:     conn,
		coord:    h.coord,
		outbox:   make(chan any, outboxCap),
	}
	c.run()
}

// session owns one upgraded connection for its lifetime: one reader
// goroutine dispatching the client→server grammar, one writer goroutine
// serializing every server→client send (gorilla/websocket forbids
// concurrent writes on the same connection), and subscriptions to the
// event bus and frame bus.
type session struct {
	id       string
	clientID string
	conn     *websocket.Conn
	coord    *coordinator.Coordinator
	outbox   chan any
}

func (c *session) run() {
	events, unsubEvents := c.coord.Events.SubscribeEvents(c.id)
	frames, unsubFrames := c.coord.Events.SubscribeFrames(c.id)
	defer unsubEvents()
	defer unsubFrames()
	defer c.conn.Close()

	done := make(chan struct{})
	go c.writeLoop(done)
	go c.pumpEvents(events, frames, done)

	c.readLoop()
	close(done)
}

func (c *session) readLoop() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read error", "connection", c.id, "error", err)
			}
			return
		}
		c.dispatch(raw)
	}
}

func (c *session) writeLoop(done <-chan struct{}) {
	ticker := time.NewTicker(keepaliveEvery)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.send(map[string]any{"type": "keepalive"})
		case msg, ok := <-c.outbox:
			if !ok {
				return
			}
			c.send(msg)
		}
	}
}

// pumpEvents forwards bus activity into the outbox; it never writes to the
// connection directly so that writeLoop remains the sole writer.
func (c *session) pumpEvents(events <-chan eventbus.Event, frames <-chan eventbus.Frame, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.forwardEvent(evt)
		case frame, ok := <-frames:
			if !ok {
				return
			}
			c.enqueue(map[string]any{
				"type":       "frame",
				"data":       frame.JPEGBase64,
				"timestamp":  frame.Metrics["timestamp"],
				"quality":    frame.Metrics["quality"],
				"size_bytes": frame.Metrics["size_bytes"],
			})
		}
	}
}

func (c *session) forwardEvent(evt eventbus.Event) {
	switch evt.Name {
	case "command_done":
		payload := map[string]any{"type": "command_done"}
		for k, v := range evt.Payload {
			payload[k] = v
		}
		c.enqueue(payload)
	case "kill_switch":
		payload := map[string]any{"type": "kill_switch"}
		for k, v := range evt.Payload {
			payload[k] = v
		}
		c.enqueue(payload)
	}
}

func (c *session) enqueue(msg any) {
	select {
	case c.outbox <- msg:
	default:
		log.Warn("websocket outbox full, dropping message", "connection", c.id)
	}
}

func (c *session) send(msg any) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Debug("websocket write failed", "connection", c.id, "error", err)
	}
}

// sendError queues an error message. Called from the reader goroutine, so
// it goes through the outbox rather than writing directly (writeLoop is the
// connection's sole writer).
func (c *session) sendError(message string) {
	c.enqueue(map[string]any{"type": "error", "message": message})
}

type inboundMessage struct {
	Action  string `json:"action"`
	FPS     *int   `json:"fps"`
	Quality *int   `json:"quality"`
}

// dispatch decodes and handles one client→server message. The grammar
// mixes two shapes: a bare JSON string naming an action (used for "ping"
// and "stop_streaming") and a JSON object carrying an "action" field (used
// for every action that takes parameters).
func (c *session) dispatch(raw []byte) {
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		if bare == "ping" {
			c.enqueue("pong")
			return
		}
		if !c.checkRateLimit() {
			return
		}
		c.handleAction(inboundMessage{Action: bare})
		return
	}

	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("malformed message")
		return
	}
	if !c.checkRateLimit() {
		return
	}
	c.handleAction(msg)
}

// checkRateLimit enforces the ws:{client_id} scope spec §4.6 mandates
// (default 30 messages/sec with the configured burst multiplier) before an
// inbound action is acted on. Returns false (after queuing an error frame)
// when the caller should be throttled.
func (c *session) checkRateLimit() bool {
	cfg := c.coord.Config
	rate := cfg.RateWSMessagesPerSecond
	burst := int(rate * cfg.RateBurstMultiplier)
	if burst < 1 {
		burst = 1
	}
	allowed, retryAfter := c.coord.RateLimit.Check("ws:"+c.clientID, rate, burst)
	if !allowed {
		c.sendError(apierr.RateLimitedErr(retryAfter).Error())
		return false
	}
	return true
}

func (c *session) handleAction(msg inboundMessage) {
	switch msg.Action {
	case "start_streaming":
		c.coord.Streamer.Start()
	case "stop_streaming":
		c.coord.Streamer.Stop()
	case "set_fps":
		if msg.FPS == nil {
			c.sendError("set_fps requires 'fps'")
			return
		}
		c.coord.Streamer.SetTargetFPS(*msg.FPS)
	case "set_quality":
		if msg.Quality == nil {
			c.sendError("set_quality requires 'quality'")
			return
		}
		c.coord.Streamer.SetQuality(*msg.Quality)
	case "capture_frame":
		b64, metrics, err := c.coord.Streamer.CaptureSingleFrame()
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.enqueue(map[string]any{
			"type":       "frame",
			"data":       b64,
			"timestamp":  metrics["timestamp"],
			"quality":    metrics["quality"],
			"size_bytes": metrics["size_bytes"],
		})
	case "get_status":
		c.enqueue(map[string]any{
			"type":          "status",
			"streaming":     c.coord.Streamer.IsRunning(),
			"kill_switch":   c.coord.KillSwitch.IsActive(),
		})
	default:
		c.sendError("unknown action: " + msg.Action)
	}
}
