package tlscert

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrGenerateCreatesPairWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "agent.crt")
	keyFile := filepath.Join(dir, "agent.key")

	cfg, err := LoadOrGenerate(certFile, keyFile)
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(cfg.Certificates))
	}
	if _, err := os.Stat(certFile); err != nil {
		t.Fatalf("cert file not written: %v", err)
	}
	if _, err := os.Stat(keyFile); err != nil {
		t.Fatalf("key file not written: %v", err)
	}
}

func TestLoadOrGenerateReusesExistingPair(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "agent.crt")
	keyFile := filepath.Join(dir, "agent.key")

	if _, err := LoadOrGenerate(certFile, keyFile); err != nil {
		t.Fatalf("first LoadOrGenerate: %v", err)
	}
	firstCert, err := os.ReadFile(certFile)
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}

	if _, err := LoadOrGenerate(certFile, keyFile); err != nil {
		t.Fatalf("second LoadOrGenerate: %v", err)
	}
	secondCert, err := os.ReadFile(certFile)
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}

	if string(firstCert) != string(secondCert) {
		t.Fatal("expected existing valid certificate to be reused, not regenerated")
	}
}

func TestNeedsGenerationDetectsInvalidCert(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "agent.crt")
	keyFile := filepath.Join(dir, "agent.key")

	if err := os.WriteFile(certFile, []byte("not a valid certificate"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(keyFile, []byte("not a valid key"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if !needsGeneration(certFile, keyFile) {
		t.Fatal("expected invalid PEM to trigger regeneration")
	}
}
