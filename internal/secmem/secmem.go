// Package secmem holds sensitive in-memory values (bearer tokens, signing
// keys) in a way that resists accidental disclosure through logging,
// formatting, or JSON marshaling.
package secmem

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Bazza1982/lily-remote/internal/logging"
)

var log = logging.L("secmem")

const redacted = "[REDACTED]"

// SecureString holds sensitive data with best-effort memory zeroing. Go's GC
// may copy or retain the backing array elsewhere, so this is defense in
// depth, not a guarantee. Call Zero() on shutdown or rotation paths to
// overwrite the value in place.
type SecureString struct {
	mu         sync.Mutex
	data       []byte
	warnedOnce atomic.Bool
}

// NewSecureString creates a SecureString holding a copy of s.
func NewSecureString(s string) *SecureString {
	b := make([]byte, len(s))
	copy(b, s)
	return &SecureString{data: b}
}

// Reveal returns the plaintext value, or "" if s is nil or has been zeroed.
func (s *SecureString) Reveal() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		if !s.warnedOnce.Swap(true) {
			log.Warn("Reveal called on zeroed SecureString")
		}
		return ""
	}
	return string(s.data)
}

// IsZeroed reports whether Zero has been called.
func (s *SecureString) IsZeroed() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data == nil
}

// Zero overwrites the backing byte slice with zeros and releases it.
func (s *SecureString) Zero() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data {
		s.data[i] = 0
	}
	s.data = nil
}

// String always returns a redacted placeholder, so %v/%s never leak the
// plaintext. Use Reveal for the actual value.
func (s *SecureString) String() string { return redacted }

// GoString returns a redacted representation for %#v.
func (s *SecureString) GoString() string { return redacted }

// MarshalJSON always encodes the redacted placeholder.
func (s *SecureString) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}

// MarshalText always encodes the redacted placeholder.
func (s *SecureString) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// UnmarshalJSON always fails: a SecureString is never populated by
// decoding untrusted input, only via NewSecureString.
func (s *SecureString) UnmarshalJSON([]byte) error {
	return fmt.Errorf("secmem: SecureString cannot be unmarshaled")
}
