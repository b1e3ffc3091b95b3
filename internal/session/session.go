// Package session implements the single-active-session-per-client Session
// Manager.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/Bazza1982/lily-remote/internal/apierr"
	"github.com/Bazza1982/lily-remote/internal/logging"
)

var log = logging.L("session")

const sessionIDBytes = 16

// State is the lifecycle state of a Session.
type State string

const (
	StateActive State = "active"
	StateEnded  State = "ended"
)

// Session is an authorization context owned by one client under which
// commands may be submitted.
type Session struct {
	SessionID    string
	ClientID     string
	StartedAt    time.Time
	EndedAt      time.Time
	State        State
	CommandCount int
}

// IsActive reports whether the session's state is Active. Callers that also
// need the expiry check should use Manager.Validate or Manager.GetActive
// instead, since expiry is evaluated lazily by the manager.
func (s *Session) IsActive() bool {
	return s.State == StateActive
}

// Manager manages control sessions: at most one Active session per client,
// lazy expiry, and command accounting.
type Manager struct {
	mu sync.Mutex

	maxDuration     time.Duration
	sessions        map[string]*Session
	clientSessions  map[string]string // client_id -> session_id
}

func New(maxDuration time.Duration) *Manager {
	return &Manager{
		maxDuration:    maxDuration,
		sessions:       make(map[string]*Session),
		clientSessions: make(map[string]string),
	}
}

// Start begins a new session for clientID. If the client already has an
// active, non-expired session, it fails with Conflict.
func (m *Manager) Start(clientID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, ok := m.clientSessions[clientID]; ok {
		if existing, ok := m.sessions[existingID]; ok && existing.IsActive() {
			if m.isExpiredLocked(existing) {
				m.endInternalLocked(existing)
			} else {
				return nil, apierr.Conflictf("client %s already has an active session: %s", clientID, existingID)
			}
		}
	}

	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		SessionID: id,
		ClientID:  clientID,
		StartedAt: time.Now(),
		State:     StateActive,
	}
	m.sessions[id] = sess
	m.clientSessions[clientID] = id

	log.Info("session started", "sessionId", id, "clientId", clientID)
	return sess, nil
}

// End terminates a session owned by clientID.
func (m *Manager) End(sessionID, clientID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, apierr.NotFoundf("session %s not found", sessionID)
	}
	if sess.ClientID != clientID {
		return nil, apierr.Forbiddenf("session %s does not belong to client %s", sessionID, clientID)
	}
	if !sess.IsActive() {
		return nil, apierr.Conflictf("session %s is not active", sessionID)
	}

	m.endInternalLocked(sess)
	log.Info("session ended", "sessionId", sessionID, "clientId", clientID)
	return sess, nil
}

func (m *Manager) endInternalLocked(sess *Session) {
	sess.EndedAt = time.Now()
	sess.State = StateEnded
	if m.clientSessions[sess.ClientID] == sess.SessionID {
		delete(m.clientSessions, sess.ClientID)
	}
}

// Get returns a session by id, lazily expiring it first if needed.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if sess.IsActive() && m.isExpiredLocked(sess) {
		m.endInternalLocked(sess)
	}
	return sess, true
}

// GetActive returns the active session for clientID, if one exists and has
// not expired.
func (m *Manager) GetActive(clientID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.clientSessions[clientID]
	if !ok {
		return nil, false
	}
	sess, ok := m.sessions[id]
	if !ok || !sess.IsActive() {
		return nil, false
	}
	if m.isExpiredLocked(sess) {
		m.endInternalLocked(sess)
		return nil, false
	}
	return sess, true
}

// Validate checks that sessionID exists, is active, has not expired, and
// belongs to clientID.
func (m *Manager) Validate(sessionID, clientID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, apierr.NotFoundf("session %s not found", sessionID)
	}
	if sess.ClientID != clientID {
		return nil, apierr.Forbiddenf("session %s does not belong to client %s", sessionID, clientID)
	}
	if !sess.IsActive() {
		return nil, apierr.Conflictf("session %s is not active", sessionID)
	}
	if m.isExpiredLocked(sess) {
		m.endInternalLocked(sess)
		return nil, apierr.Conflictf("session %s has expired", sessionID)
	}
	return sess, nil
}

// IncrementCommandCount bumps the session's command counter.
func (m *Manager) IncrementCommandCount(sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return 0, apierr.NotFoundf("session %s not found", sessionID)
	}
	sess.CommandCount++
	return sess.CommandCount, nil
}

// GetActiveSessions returns a snapshot of all active sessions, lazily
// expiring stale ones first.
func (m *Manager) GetActiveSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sess := range m.sessions {
		if sess.IsActive() && m.isExpiredLocked(sess) {
			m.endInternalLocked(sess)
		}
	}
	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if sess.IsActive() {
			out = append(out, sess)
		}
	}
	return out
}

// ForceEndAll ends every active session (used by the kill switch and
// shutdown) and returns the ids of the sessions it ended.
func (m *Manager) ForceEndAll() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ended []string
	for _, sess := range m.sessions {
		if sess.IsActive() {
			m.endInternalLocked(sess)
			ended = append(ended, sess.SessionID)
		}
	}
	return ended
}

func (m *Manager) isExpiredLocked(sess *Session) bool {
	return time.Since(sess.StartedAt) > m.maxDuration
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
