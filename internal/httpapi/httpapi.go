// Package httpapi implements the REST surface described in spec §6: pairing,
// session lifecycle, command submission/inspection, and kill switch control.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Bazza1982/lily-remote/internal/apierr"
	"github.com/Bazza1982/lily-remote/internal/authn"
	"github.com/Bazza1982/lily-remote/internal/commands"
	"github.com/Bazza1982/lily-remote/internal/coordinator"
	"github.com/Bazza1982/lily-remote/internal/logging"
)

var log = logging.L("httpapi")

// Server wires the coordinator, the authenticator and the rate limiter into
// an http.Handler implementing the spec's REST surface.
type Server struct {
	coord *coordinator.Coordinator
	authn *authn.Authenticator
	mux   *http.ServeMux
}

func NewServer(coord *coordinator.Coordinator, auth *authn.Authenticator) *Server {
	s := &Server{coord: coord, authn: auth, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	cfg := s.coord.Config
	pairingRate := cfg.RatePairingPerMinute / 60

	s.mux.HandleFunc("POST /pair/request", s.withRateLimit("pair_request", pairingRate, s.handlePairRequest))
	s.mux.HandleFunc("POST /pair/confirm", s.withRateLimit("pair_request", pairingRate, s.handlePairConfirm))

	s.mux.HandleFunc("POST /session/start", s.withAuth(s.withRateLimit("requests", cfg.RateRequestsPerSecond, s.handleSessionStart)))
	s.mux.HandleFunc("POST /session/end", s.withAuth(s.withRateLimit("requests", cfg.RateRequestsPerSecond, s.handleSessionEnd)))

	s.mux.HandleFunc("POST /commands", s.withAuth(s.withRateLimit("commands", cfg.RateCommandsPerSecond, s.handleSubmitCommands)))
	s.mux.HandleFunc("GET /commands/{id}", s.withAuth(s.withRateLimit("requests", cfg.RateRequestsPerSecond, s.handleGetCommand)))

	s.mux.HandleFunc("POST /kill-switch/activate", s.withAuth(s.withRateLimit("requests", cfg.RateRequestsPerSecond, s.handleKillSwitchActivate)))
	s.mux.HandleFunc("POST /kill-switch/deactivate", s.withAuth(s.withRateLimit("requests", cfg.RateRequestsPerSecond, s.handleKillSwitchDeactivate)))
	s.mux.HandleFunc("GET /kill-switch/status", s.withAuth(s.withRateLimit("requests", cfg.RateRequestsPerSecond, s.handleKillSwitchStatus)))
}

type handlerFunc func(w http.ResponseWriter, r *http.Request)

// withAuth resolves the caller identity via the bearer token (or the LAN
// bypass) and stashes it in the request context for downstream handlers.
func (s *Server) withAuth(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := s.authn.Authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r.WithContext(withClientID(r.Context(), clientID)))
	}
}

// withRateLimit enforces a per-scope, per-client token bucket before calling
// through to next.
func (s *Server) withRateLimit(scope string, ratePerSecond float64, next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := scope + ":" + clientKeyForRateLimit(r)
		burst := int(ratePerSecond * s.coord.Config.RateBurstMultiplier)
		if burst < 1 {
			burst = 1
		}
		allowed, retryAfter := s.coord.RateLimit.Check(key, ratePerSecond, burst)
		if !allowed {
			writeError(w, apierr.RateLimitedErr(retryAfter))
			return
		}
		next(w, r)
	}
}

// clientKeyForRateLimit uses the resolved client id when auth has already
// run, else falls back to the remote address for pre-auth endpoints like
// pairing.
func clientKeyForRateLimit(r *http.Request) string {
	if id, ok := clientIDFromContext(r.Context()); ok {
		return id
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to encode response", "error", err)
	}
}

// writeError renders err per spec §7: {"detail": "<string>"}, with
// retry_after added for RateLimited.
func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = &apierr.Error{Kind: 0, Message: err.Error()}
	}
	body := map[string]any{"detail": apiErr.Message}
	status := apiErr.Kind.HTTPStatus()
	if apiErr.Kind == apierr.RateLimited {
		body["retry_after"] = apiErr.RetryAfter
		w.Header().Set("Retry-After", strconv.Itoa(int(apiErr.RetryAfter)+1))
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierr.InvalidArgumentf("malformed request body: %v", err)
	}
	return nil
}

// --- pairing ---

type pairRequestBody struct {
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	PublicKey  string `json:"public_key"`
}

func (s *Server) handlePairRequest(w http.ResponseWriter, r *http.Request) {
	var body pairRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.ClientID == "" {
		writeError(w, apierr.InvalidArgumentf("client_id is required"))
		return
	}

	result, err := s.coord.Pairing.Request(body.ClientID, body.ClientName, body.PublicKey)
	if err != nil {
		writeError(w, err)
		return
	}
	s.coord.Audit.Log("pairing_requested", "", map[string]any{"clientId": body.ClientID})
	writeJSON(w, http.StatusOK, map[string]any{
		"challenge":     result.Challenge,
		"expires":       result.ExpiresAt.Unix(),
		"auto_approved": result.AutoApproved,
	})
}

type pairConfirmBody struct {
	ClientID        string `json:"client_id"`
	SignedChallenge string `json:"signed_challenge"`
}

func (s *Server) handlePairConfirm(w http.ResponseWriter, r *http.Request) {
	var body pairConfirmBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	sig, err := base64.StdEncoding.DecodeString(body.SignedChallenge)
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("signed_challenge must be base64"))
		return
	}

	token, err := s.coord.Pairing.Confirm(body.ClientID, sig)
	if err != nil {
		s.coord.Audit.Log("pairing_rejected", "", map[string]any{"clientId": body.ClientID})
		writeError(w, err)
		return
	}
	s.coord.Audit.Log("pairing_confirmed", "", map[string]any{"clientId": body.ClientID})
	writeJSON(w, http.StatusOK, map[string]any{
		"paired":    true,
		"token":     token,
		"client_id": body.ClientID,
	})
}

// --- sessions ---

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	clientID, _ := clientIDFromContext(r.Context())
	sess, err := s.coord.StartSession(clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    sess.SessionID,
		"client_id":     sess.ClientID,
		"started_at":    sess.StartedAt.Unix(),
		"command_count": sess.CommandCount,
	})
}

type sessionEndBody struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	clientID, _ := clientIDFromContext(r.Context())
	var body sessionEndBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	sess, cancelled, err := s.coord.EndSession(body.SessionID, clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = cancelled
	writeJSON(w, http.StatusOK, map[string]any{
		"ended":              true,
		"session_id":         sess.SessionID,
		"duration":           sess.EndedAt.Sub(sess.StartedAt).Seconds(),
		"commands_executed":  sess.CommandCount,
	})
}

// --- commands ---

type submitCommandsBody struct {
	SessionID string           `json:"session_id"`
	Commands  []map[string]any `json:"commands"`
}

func (s *Server) handleSubmitCommands(w http.ResponseWriter, r *http.Request) {
	clientID, _ := clientIDFromContext(r.Context())
	var body submitCommandsBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	raws := make([]commands.RawCommand, 0, len(body.Commands))
	for _, c := range body.Commands {
		id, _ := c["id"].(string)
		typ, _ := c["type"].(string)
		raws = append(raws, commands.RawCommand{ID: id, Type: typ, Fields: c})
	}

	ids, err := s.coord.SubmitCommands(body.SessionID, clientID, raws)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queued": ids})
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cmd, err := s.coord.Queue.GetStatus(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmd.ToResponse())
}

// --- kill switch ---

func (s *Server) handleKillSwitchActivate(w http.ResponseWriter, r *http.Request) {
	clientID, _ := clientIDFromContext(r.Context())
	n, err := s.coord.ActivateKillSwitch(clientID, r.RemoteAddr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activated":          true,
		"sessions_terminated": n,
		"message":            "kill switch activated",
	})
}

func (s *Server) handleKillSwitchDeactivate(w http.ResponseWriter, r *http.Request) {
	wasActive := s.coord.DeactivateKillSwitch()
	writeJSON(w, http.StatusOK, map[string]any{
		"activated":  false,
		"was_active": wasActive,
	})
}

func (s *Server) handleKillSwitchStatus(w http.ResponseWriter, r *http.Request) {
	state := s.coord.KillSwitch.State()
	reason := ""
	if state.Active {
		reason = "kill_switch"
	}
	resp := map[string]any{
		"active":       state.Active,
		"activated_by": state.ActivatedBy,
		"reason":       reason,
	}
	if state.Active {
		resp["activated_at"] = state.ActivatedAt.Unix()
	} else {
		resp["activated_at"] = nil
	}
	writeJSON(w, http.StatusOK, resp)
}
