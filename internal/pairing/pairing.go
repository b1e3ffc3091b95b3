// Package pairing implements the challenge-signature pairing handshake and
// the persistent paired-client credential store.
package pairing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Bazza1982/lily-remote/internal/apierr"
	"github.com/Bazza1982/lily-remote/internal/logging"
)

var log = logging.L("pairing")

const (
	challengeBytes = 32
	tokenBytes     = 32
)

// PendingState is the lifecycle state of a PendingPairing record.
type PendingState string

const (
	PendingStatePending  PendingState = "pending"
	PendingStateApproved PendingState = "approved"
	PendingStateRejected PendingState = "rejected"
	PendingStateExpired  PendingState = "expired"
)

// PairedClient is a persisted, paired controller identity.
type PairedClient struct {
	ClientID     string    `json:"client_id"`
	ClientName   string    `json:"client_name"`
	PublicKeyPEM string    `json:"public_key_pem"`
	TokenHash    string    `json:"token_hash"`
	PairedAt     time.Time `json:"paired_at"`
}

// PendingPairing is a transient, in-flight pairing request.
type PendingPairing struct {
	ClientID     string
	ClientName   string
	PublicKeyPEM string
	Challenge    string // hex
	CreatedAt    time.Time
	ExpiresAt    time.Time
	State        PendingState
}

// ApprovalFunc is the out-of-band approval callback invoked synchronously by
// Confirm when not operating in LAN mode. It returns true to approve.
type ApprovalFunc func(PendingPairing) bool

// Manager is the Pairing Manager: challenge issuance, signature
// verification, and credential persistence.
type Manager struct {
	mu sync.Mutex

	lanMode      bool
	challengeTTL time.Duration
	storePath    string

	paired  map[string]PairedClient
	pending map[string]PendingPairing

	approve ApprovalFunc
}

// New creates a Manager backed by the credential store at storePath. The
// store is loaded immediately; a missing or corrupt file yields an empty
// store rather than an error.
func New(storePath string, lanMode bool, challengeTTL time.Duration) *Manager {
	m := &Manager{
		lanMode:      lanMode,
		challengeTTL: challengeTTL,
		storePath:    storePath,
		paired:       make(map[string]PairedClient),
		pending:      make(map[string]PendingPairing),
	}
	m.load()
	return m
}

// SetApprovalCallback installs the out-of-band approval hook used outside
// LAN mode. Without one installed, non-LAN confirmations are rejected.
func (m *Manager) SetApprovalCallback(fn ApprovalFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approve = fn
}

// RequestResult is the response to a pairing request.
type RequestResult struct {
	Challenge    string
	ExpiresAt    time.Time
	AutoApproved bool
}

// Request issues a fresh challenge for a (re)pairing attempt.
func (m *Manager) Request(clientID, clientName, publicKeyPEM string) (RequestResult, error) {
	if _, err := parsePublicKey(publicKeyPEM); err != nil {
		return RequestResult{}, apierr.InvalidArgumentf("invalid public key: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// If already paired, the prior record is discarded before issuing a
	// fresh challenge.
	delete(m.paired, clientID)

	m.cleanupExpiredLocked()

	challenge := make([]byte, challengeBytes)
	if _, err := rand.Read(challenge); err != nil {
		return RequestResult{}, fmt.Errorf("generate challenge: %w", err)
	}
	now := time.Now()

	state := PendingStatePending
	if m.lanMode {
		state = PendingStateApproved
	}

	m.pending[clientID] = PendingPairing{
		ClientID:     clientID,
		ClientName:   clientName,
		PublicKeyPEM: publicKeyPEM,
		Challenge:    hex.EncodeToString(challenge),
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.challengeTTL),
		State:        state,
	}

	log.Info("pairing requested", "clientId", clientID, "lanMode", m.lanMode)

	return RequestResult{
		Challenge:    hex.EncodeToString(challenge),
		ExpiresAt:    now.Add(m.challengeTTL),
		AutoApproved: m.lanMode,
	}, nil
}

// Confirm verifies the signed challenge and, on success, mints and persists
// a bearer token.
func (m *Manager) Confirm(clientID string, signature []byte) (token string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, ok := m.pending[clientID]
	if !ok {
		return "", apierr.Unauthenticatedf("no pending pairing for client %s", clientID)
	}
	now := time.Now()
	if now.After(pending.ExpiresAt) {
		delete(m.pending, clientID)
		return "", apierr.Unauthenticatedf("pairing challenge expired")
	}

	if pending.State == PendingStatePending {
		approved := false
		if m.approve != nil {
			approved = m.approve(pending)
		}
		if !approved {
			pending.State = PendingStateRejected
			m.pending[clientID] = pending
			return "", apierr.Unauthenticatedf("pairing was rejected")
		}
		pending.State = PendingStateApproved
	}
	if pending.State != PendingStateApproved {
		return "", apierr.Unauthenticatedf("pairing is not approved")
	}

	sigErr := verifySignature(pending.PublicKeyPEM, pending.Challenge, signature)
	if sigErr != nil {
		// LAN mode tolerates a signature failure; this is a documented
		// relaxation, not an oversight (see DESIGN.md open questions).
		if !m.lanMode {
			return "", apierr.Unauthenticatedf("signature verification failed: %v", sigErr)
		}
		log.Warn("signature verification failed, tolerated under LAN mode", "clientId", clientID, "error", sigErr)
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token = hex.EncodeToString(raw)
	hash := sha256.Sum256([]byte(token))

	m.paired[clientID] = PairedClient{
		ClientID:     clientID,
		ClientName:   pending.ClientName,
		PublicKeyPEM: pending.PublicKeyPEM,
		TokenHash:    hex.EncodeToString(hash[:]),
		PairedAt:     now,
	}
	delete(m.pending, clientID)

	if err := m.persistLocked(); err != nil {
		return "", fmt.Errorf("persist credential store: %w", err)
	}

	log.Info("pairing confirmed", "clientId", clientID)
	return token, nil
}

// VerifyToken resolves a bearer token to its paired client id.
func (m *Manager) VerifyToken(token string) (string, bool) {
	hash := sha256.Sum256([]byte(token))
	hexHash := hex.EncodeToString(hash[:])

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.paired {
		if c.TokenHash == hexHash {
			return c.ClientID, true
		}
	}
	return "", false
}

// Unpair removes a paired client's credential, if present.
func (m *Manager) Unpair(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.paired[clientID]; !ok {
		return false
	}
	delete(m.paired, clientID)
	if err := m.persistLocked(); err != nil {
		log.Error("persist after unpair failed", "clientId", clientID, "error", err)
	}
	return true
}

// ListPaired returns a snapshot of all paired clients.
func (m *Manager) ListPaired() []PairedClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PairedClient, 0, len(m.paired))
	for _, c := range m.paired {
		out = append(out, c)
	}
	return out
}

// GetClient returns the paired client record, if any.
func (m *Manager) GetClient(clientID string) (PairedClient, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.paired[clientID]
	return c, ok
}

// GetPending returns a snapshot of all pending pairing requests.
func (m *Manager) GetPending() []PendingPairing {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupExpiredLocked()
	out := make([]PendingPairing, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, p)
	}
	return out
}

func (m *Manager) cleanupExpiredLocked() {
	now := time.Now()
	for id, p := range m.pending {
		if now.After(p.ExpiresAt) {
			delete(m.pending, id)
		}
	}
}

func parsePublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("not a valid PEM block")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaKey, nil
}

func verifySignature(publicKeyPEM, challengeHex string, signature []byte) error {
	pub, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return err
	}
	challenge, err := hex.DecodeString(challengeHex)
	if err != nil {
		return err
	}
	hashed := sha256.Sum256(challenge)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, hashed[:], signature)
}

type credentialFile struct {
	Clients map[string]PairedClient `json:"clients"`
}

func (m *Manager) load() {
	data, err := os.ReadFile(m.storePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("credential store unreadable, starting empty", "error", err)
		}
		return
	}
	var file credentialFile
	if err := json.Unmarshal(data, &file); err != nil {
		log.Warn("credential store corrupt, starting empty", "error", err)
		return
	}
	m.paired = file.Clients
	if m.paired == nil {
		m.paired = make(map[string]PairedClient)
	}
}

// persistLocked writes the credential store atomically (write-to-temp then
// rename) with owner-only permissions. Caller must hold m.mu.
func (m *Manager) persistLocked() error {
	dir := filepath.Dir(m.storePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(credentialFile{Clients: m.paired}, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.storePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, m.storePath)
}
