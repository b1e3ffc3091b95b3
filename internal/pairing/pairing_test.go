package pairing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"path/filepath"
	"testing"
	"time"
)

func genKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return priv, string(pemBytes)
}

func sign(t *testing.T, priv *rsa.PrivateKey, challengeHex string) []byte {
	t.Helper()
	challenge, err := hex.DecodeString(challengeHex)
	if err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	hashed := sha256.Sum256(challenge)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, hashed[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestPairAndVerifyRoundTrip(t *testing.T) {
	priv, pubPEM := genKey(t)
	store := filepath.Join(t.TempDir(), "clients.json")
	m := New(store, false, 300*time.Second)

	res, err := m.Request("c-1", "controller-one", pubPEM)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if res.AutoApproved {
		t.Fatal("non-LAN mode should not auto-approve")
	}

	m.SetApprovalCallback(func(p PendingPairing) bool { return true })

	sig := sign(t, priv, res.Challenge)
	token, err := m.Confirm("c-1", sig)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("token should be 32 raw bytes hex-encoded (64 chars), got %d", len(token))
	}

	clientID, ok := m.VerifyToken(token)
	if !ok || clientID != "c-1" {
		t.Fatalf("VerifyToken = (%q, %v), want (c-1, true)", clientID, ok)
	}

	hash := sha256.Sum256([]byte(token))
	client, ok := m.GetClient("c-1")
	if !ok {
		t.Fatal("expected paired client to exist")
	}
	if client.TokenHash != hex.EncodeToString(hash[:]) {
		t.Fatal("stored hash does not match SHA-256(token)")
	}
}

func TestConfirmRejectedWithoutApproval(t *testing.T) {
	_, pubPEM := genKey(t)
	store := filepath.Join(t.TempDir(), "clients.json")
	m := New(store, false, 300*time.Second)

	res, err := m.Request("c-1", "controller-one", pubPEM)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	if _, err := m.Confirm("c-1", []byte("bogus")); err == nil {
		t.Fatal("expected Confirm to fail without an approval callback")
	}
	_ = res
}

func TestLANModeAutoApprovesAndTeratesBadSignature(t *testing.T) {
	store := filepath.Join(t.TempDir(), "clients.json")
	m := New(store, true, 300*time.Second)

	res, err := m.Request("c-2", "controller-two", "")
	if err == nil {
		t.Fatal("expected invalid public key to be rejected even in LAN mode")
	}
	_ = res

	_, pubPEM := genKey(t)
	res, err = m.Request("c-2", "controller-two", pubPEM)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !res.AutoApproved {
		t.Fatal("LAN mode should auto-approve")
	}

	token, err := m.Confirm("c-2", []byte("not-a-real-signature"))
	if err != nil {
		t.Fatalf("LAN mode should tolerate signature failure, got error: %v", err)
	}
	if _, ok := m.VerifyToken(token); !ok {
		t.Fatal("expected token to verify")
	}
}

func TestRequestDiscardsPriorPairing(t *testing.T) {
	priv, pubPEM := genKey(t)
	store := filepath.Join(t.TempDir(), "clients.json")
	m := New(store, true, 300*time.Second)

	res, err := m.Request("c-1", "controller-one", pubPEM)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	token, err := m.Confirm("c-1", sign(t, priv, res.Challenge))
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	// Re-pair: the prior record should be discarded.
	if _, err := m.Request("c-1", "controller-one-renamed", pubPEM); err != nil {
		t.Fatalf("re-Request: %v", err)
	}
	if _, ok := m.VerifyToken(token); ok {
		t.Fatal("old token should no longer verify after re-pairing request")
	}
}

func TestExpiredChallengeFails(t *testing.T) {
	priv, pubPEM := genKey(t)
	store := filepath.Join(t.TempDir(), "clients.json")
	m := New(store, true, 1*time.Millisecond)

	res, err := m.Request("c-1", "controller-one", pubPEM)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := m.Confirm("c-1", sign(t, priv, res.Challenge)); err == nil {
		t.Fatal("expected expired challenge to fail confirmation")
	}
}

func TestUnpairRemovesCredential(t *testing.T) {
	priv, pubPEM := genKey(t)
	store := filepath.Join(t.TempDir(), "clients.json")
	m := New(store, true, 300*time.Second)

	res, _ := m.Request("c-1", "controller-one", pubPEM)
	token, err := m.Confirm("c-1", sign(t, priv, res.Challenge))
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if !m.Unpair("c-1") {
		t.Fatal("Unpair should report true for an existing client")
	}
	if m.Unpair("c-1") {
		t.Fatal("second Unpair should report false")
	}
	if _, ok := m.VerifyToken(token); ok {
		t.Fatal("token should no longer verify after unpair")
	}
}

func TestPersistenceSurvivesReload(t *testing.T) {
	priv, pubPEM := genKey(t)
	store := filepath.Join(t.TempDir(), "clients.json")
	m1 := New(store, true, 300*time.Second)

	res, _ := m1.Request("c-1", "controller-one", pubPEM)
	token, err := m1.Confirm("c-1", sign(t, priv, res.Challenge))
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	m2 := New(store, true, 300*time.Second)
	clientID, ok := m2.VerifyToken(token)
	if !ok || clientID != "c-1" {
		t.Fatalf("reloaded store should verify the same token, got (%q, %v)", clientID, ok)
	}
}
