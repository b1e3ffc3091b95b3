// Package agentclient is a thin Go client for a lily-remote agent's REST and
// WebSocket surface: pairing, session lifecycle, command submission, and
// kill switch control.
package agentclient

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Bazza1982/lily-remote/internal/httputil"
	"github.com/Bazza1982/lily-remote/internal/secmem"
)

// Client talks to one agent identified by baseURL, e.g. "https://192.168.1.40:8443".
// The agent presents a self-signed certificate, so callers that haven't
// pinned it should use NewInsecureClient.
type Client struct {
	baseURL    string
	authToken  *secmem.SecureString
	httpClient *http.Client
}

// NewClient creates a client that verifies the agent's certificate against
// the system trust store (appropriate once a caller has pinned or otherwise
// trusted it).
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:   baseURL,
		authToken: secmem.NewSecureString(authToken),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewInsecureClient creates a client that skips certificate verification,
// appropriate for talking to an agent's self-signed leaf on a trusted LAN.
func NewInsecureClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:   baseURL,
		authToken: secmem.NewSecureString(authToken),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

// PairRequestResult is the agent's response to a pairing request.
type PairRequestResult struct {
	Challenge    string `json:"challenge"`
	Expires      int64  `json:"expires"`
	AutoApproved bool   `json:"auto_approved"`
}

// PairRequest begins pairing for clientID, presenting publicKey as a
// PEM-encoded RSA public key. The agent rejects a key it cannot parse, in LAN
// mode too.
func (c *Client) PairRequest(clientID, clientName, publicKey string) (*PairRequestResult, error) {
	body := map[string]any{
		"client_id":   clientID,
		"client_name": clientName,
		"public_key":  publicKey,
	}
	var result PairRequestResult
	if err := c.post("/pair/request", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PairConfirmResult is the agent's response to confirming a pairing challenge.
type PairConfirmResult struct {
	Paired   bool   `json:"paired"`
	Token    string `json:"token"`
	ClientID string `json:"client_id"`
}

// PairConfirm submits a signature over the challenge returned by PairRequest.
func (c *Client) PairConfirm(clientID string, signedChallenge []byte) (*PairConfirmResult, error) {
	body := map[string]any{
		"client_id":        clientID,
		"signed_challenge": base64.StdEncoding.EncodeToString(signedChallenge),
	}
	var result PairConfirmResult
	if err := c.post("/pair/confirm", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Session describes a started control session.
type Session struct {
	SessionID    string `json:"session_id"`
	ClientID     string `json:"client_id"`
	StartedAt    int64  `json:"started_at"`
	CommandCount int    `json:"command_count"`
}

// StartSession opens a session using the client's bearer token.
func (c *Client) StartSession() (*Session, error) {
	var sess Session
	if err := c.postAuth("/session/start", nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SessionSummary is returned when a session ends.
type SessionSummary struct {
	Ended            bool    `json:"ended"`
	SessionID        string  `json:"session_id"`
	Duration         float64 `json:"duration"`
	CommandsExecuted int     `json:"commands_executed"`
}

// EndSession closes sessionID.
func (c *Client) EndSession(sessionID string) (*SessionSummary, error) {
	var summary SessionSummary
	if err := c.postAuth("/session/end", map[string]any{"session_id": sessionID}, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// SubmitCommands queues cmds against sessionID and returns their queued ids
// in submission order. Each entry in cmds must carry at least "id" and
// "type" keys.
func (c *Client) SubmitCommands(sessionID string, cmds []map[string]any) ([]string, error) {
	var result struct {
		Queued []string `json:"queued"`
	}
	body := map[string]any{"session_id": sessionID, "commands": cmds}
	if err := c.postAuth("/commands", body, &result); err != nil {
		return nil, err
	}
	return result.Queued, nil
}

// CommandStatus mirrors commands.Command.ToResponse's JSON shape.
type CommandStatus map[string]any

// GetCommand fetches the current status of a previously submitted command.
func (c *Client) GetCommand(id string) (CommandStatus, error) {
	var status CommandStatus
	if err := c.getAuth("/commands/"+id, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// KillSwitchResult is returned by ActivateKillSwitch and DeactivateKillSwitch.
type KillSwitchResult struct {
	Activated           bool   `json:"activated"`
	SessionsTerminated  int    `json:"sessions_terminated"`
	WasActive           bool   `json:"was_active"`
	Message             string `json:"message"`
}

// ActivateKillSwitch activates the agent's kill switch, terminating every
// active session.
func (c *Client) ActivateKillSwitch() (*KillSwitchResult, error) {
	var result KillSwitchResult
	if err := c.postAuth("/kill-switch/activate", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeactivateKillSwitch clears the agent's kill switch.
func (c *Client) DeactivateKillSwitch() (*KillSwitchResult, error) {
	var result KillSwitchResult
	if err := c.postAuth("/kill-switch/deactivate", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// KillSwitchState reports whether the kill switch is currently active.
type KillSwitchState struct {
	Active      bool   `json:"active"`
	ActivatedBy string `json:"activated_by"`
	Reason      string `json:"reason"`
	ActivatedAt *int64 `json:"activated_at"`
}

// KillSwitchStatus polls the agent's current kill switch state.
func (c *Client) KillSwitchStatus() (*KillSwitchState, error) {
	var state KillSwitchState
	if err := c.getAuth("/kill-switch/status", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *Client) post(path string, body any, out any) error {
	return c.do(http.MethodPost, path, body, out, false)
}

func (c *Client) postAuth(path string, body any, out any) error {
	return c.do(http.MethodPost, path, body, out, true)
}

func (c *Client) getAuth(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out, true)
}

func (c *Client) do(method, path string, body any, out any, auth bool) error {
	var reqBody []byte
	header := make(http.Header)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = data
		header.Set("Content-Type", "application/json")
	}
	if auth {
		header.Set("Authorization", "Bearer "+c.authToken.Reveal())
	}

	// The agent answers RateLimited with 429 and ServiceUnavailable with 503;
	// both are worth a bounded retry with backoff rather than failing the
	// caller's request outright.
	resp, err := httputil.Do(context.Background(), c.httpClient, method, c.baseURL+path, reqBody, header, httputil.DefaultRetryConfig())
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Detail     string  `json:"detail"`
			RetryAfter float64 `json:"retry_after"`
		}
		if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.Detail != "" {
			if resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("%s (status %d, retry after %.0fs)", apiErr.Detail, resp.StatusCode, apiErr.RetryAfter)
			}
			return fmt.Errorf("%s (status %d)", apiErr.Detail, resp.StatusCode)
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
