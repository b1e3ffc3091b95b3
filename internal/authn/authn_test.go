package authn

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeVerifier struct {
	tokens map[string]string
}

func (f *fakeVerifier) VerifyToken(token string) (string, bool) {
	id, ok := f.tokens[token]
	return id, ok
}

func TestAuthenticateLANModeBypassesToken(t *testing.T) {
	a := New(&fakeVerifier{}, true)
	req := httptest.NewRequest(http.MethodGet, "/commands/x", nil)
	id, err := a.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id != LANClientID {
		t.Fatalf("id = %q, want %q", id, LANClientID)
	}
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	a := New(&fakeVerifier{}, false)
	req := httptest.NewRequest(http.MethodGet, "/commands/x", nil)
	if _, err := a.Authenticate(req); err == nil {
		t.Fatal("expected error for missing Authorization header")
	}
}

func TestAuthenticateResolvesValidToken(t *testing.T) {
	a := New(&fakeVerifier{tokens: map[string]string{"tok-1": "client-a"}}, false)
	req := httptest.NewRequest(http.MethodGet, "/commands/x", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	id, err := a.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id != "client-a" {
		t.Fatalf("id = %q, want client-a", id)
	}
}

func TestAuthenticateRejectsUnknownToken(t *testing.T) {
	a := New(&fakeVerifier{tokens: map[string]string{}}, false)
	req := httptest.NewRequest(http.MethodGet, "/commands/x", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	if _, err := a.Authenticate(req); err == nil {
		t.Fatal("expected error for unknown token")
	}
}

func TestAuthenticateWebSocketReadsQueryParam(t *testing.T) {
	a := New(&fakeVerifier{tokens: map[string]string{"tok-1": "client-a"}}, false)
	req := httptest.NewRequest(http.MethodGet, "/events?token=tok-1", nil)
	id, err := a.AuthenticateWebSocket(req)
	if err != nil {
		t.Fatalf("AuthenticateWebSocket: %v", err)
	}
	if id != "client-a" {
		t.Fatalf("id = %q, want client-a", id)
	}
}

func TestAuthenticateWebSocketRejectsMissingToken(t *testing.T) {
	a := New(&fakeVerifier{}, false)
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	if _, err := a.AuthenticateWebSocket(req); err == nil {
		t.Fatal("expected error for missing token query param")
	}
}
