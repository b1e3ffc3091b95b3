package agentclient

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// EventStream is a live connection to an agent's /events WebSocket endpoint.
type EventStream struct {
	conn *websocket.Conn
}

// Message is one decoded server→client /events payload. Type is one of
// "frame", "command_done", "kill_switch", "keepalive", "status" or "error";
// the remaining fields vary by Type and are left as raw JSON values.
type Message struct {
	Type   string
	Fields map[string]any
}

// SubscribeEvents dials the agent's /events endpoint and returns a live
// stream. Callers outside LAN mode must authenticate with a token obtained
// via PairConfirm.
func (c *Client) SubscribeEvents(insecureSkipVerify bool) (*EventStream, error) {
	wsURL, err := c.eventsURL()
	if err != nil {
		return nil, fmt.Errorf("build events URL: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if insecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	header := make(map[string][]string)
	if token := c.authToken.Reveal(); token != "" {
		header["Authorization"] = []string{"Bearer " + token}
	}

	conn, _, err := dialer.Dial(wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial events endpoint: %w", err)
	}
	return &EventStream{conn: conn}, nil
}

func (c *Client) eventsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = "/events"
	if token := c.authToken.Reveal(); token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Next blocks for the next message. It returns an error once the connection
// is closed or fails.
func (s *EventStream) Next() (*Message, error) {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		return &Message{Type: bare}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	typ, _ := fields["type"].(string)
	delete(fields, "type")
	return &Message{Type: typ, Fields: fields}, nil
}

// Send submits one client→server message, e.g. {"action":"start_streaming"}
// or the bare string "ping".
func (s *EventStream) Send(v any) error {
	return s.conn.WriteJSON(v)
}

// Close closes the underlying connection.
func (s *EventStream) Close() error {
	return s.conn.Close()
}
