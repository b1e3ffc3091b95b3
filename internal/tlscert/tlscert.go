// Package tlscert loads the listener's TLS certificate and key, generating
// a self-signed pair on first run per spec.md's persisted-state requirement.
package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/Bazza1982/lily-remote/internal/logging"
)

var log = logging.L("tlscert")

const validity = 825 * 24 * time.Hour // under the 825-day CA/Browser Forum ceiling

// LoadOrGenerate returns a tls.Config for certFile/keyFile, generating and
// persisting a self-signed pair if either is missing, and regenerating if
// the existing certificate has expired.
func LoadOrGenerate(certFile, keyFile string) (*tls.Config, error) {
	if needsGeneration(certFile, keyFile) {
		if err := generate(certFile, keyFile); err != nil {
			return nil, fmt.Errorf("generate self-signed certificate: %w", err)
		}
		log.Info("generated self-signed TLS certificate", "cert", certFile, "key", keyFile)
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func needsGeneration(certFile, keyFile string) bool {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return true
	}
	if _, err := os.Stat(keyFile); err != nil {
		return true
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		log.Warn("existing TLS certificate is not valid PEM, regenerating")
		return true
	}
	parsed, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		log.Warn("existing TLS certificate unparsable, regenerating", "error", err)
		return true
	}
	if time.Now().After(parsed.NotAfter) {
		log.Warn("existing TLS certificate expired, regenerating", "expired", parsed.NotAfter)
		return true
	}
	return false
}

func generate(certFile, keyFile string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return err
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "lily-remote-agent"},
		NotBefore:    now.Add(-5 * time.Minute),
		NotAfter:     now.Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}

	for _, dir := range []string{filepath.Dir(certFile), filepath.Dir(keyFile)} {
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	}

	certOut, err := os.OpenFile(certFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		return err
	}

	keyOut, err := os.OpenFile(keyFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer keyOut.Close()
	return pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
}
