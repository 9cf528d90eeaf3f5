package tlsconfig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// generateCert returns a self-signed certificate and its key, both PEM.
func generateCert(t *testing.T, isCA bool) (certPEM, keyPEM []byte) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate private key: %v", err)
	}
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "sniffpart test"},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
}

func TestNewHTTPClient_Default(t *testing.T) {
	client, err := NewHTTPClient(Config{})
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	if client.Timeout != DefaultTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultTimeout, client.Timeout)
	}
	transport := client.Transport.(*http.Transport)
	if transport.TLSClientConfig.MinVersion != tls.VersionTLS12 {
		t.Error("expected TLS 1.2 minimum")
	}
	if transport.Proxy == nil {
		t.Error("expected proxy settings from the default transport")
	}
}

func TestNewHTTPClient_Insecure(t *testing.T) {
	client, err := NewHTTPClient(Config{Insecure: true})
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	if !client.Transport.(*http.Transport).TLSClientConfig.InsecureSkipVerify {
		t.Error("expected InsecureSkipVerify to be true")
	}
}

func TestNewHTTPClient_CustomCA(t *testing.T) {
	caPEM, _ := generateCert(t, true)
	caFile := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(caFile, caPEM, 0600); err != nil {
		t.Fatalf("failed to write CA file: %v", err)
	}

	client, err := NewHTTPClientWithTimeout(Config{CACertFile: caFile}, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	if client.Transport.(*http.Transport).TLSClientConfig.RootCAs == nil {
		t.Error("expected RootCAs to be set")
	}
	if client.Timeout != time.Second {
		t.Errorf("unexpected timeout %v", client.Timeout)
	}
}

func TestNewHTTPClient_InvalidCA(t *testing.T) {
	if _, err := NewHTTPClient(Config{CACertFile: "/nonexistent/ca.pem"}); err == nil {
		t.Error("expected error for missing CA file")
	}

	bad := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(bad, []byte("not a certificate"), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := NewHTTPClient(Config{CACertFile: bad}); err == nil {
		t.Error("expected error for invalid CA file")
	}
}

func TestValidateURL(t *testing.T) {
	if err := (Config{}).ValidateURL("https://s3.example.com"); err != nil {
		t.Errorf("https should be allowed: %v", err)
	}
	if err := (Config{}).ValidateURL("http://minio:9000"); err == nil {
		t.Error("http without insecure should be rejected")
	}
	if err := (Config{Insecure: true}).ValidateURL("http://minio:9000"); err != nil {
		t.Errorf("http with insecure should be allowed: %v", err)
	}
}

func TestServer(t *testing.T) {
	certPEM, keyPEM := generateCert(t, false)
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, certPEM, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Server(certFile, keyFile)
	if err != nil {
		t.Fatalf("Server failed: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("expected one certificate, got %d", len(cfg.Certificates))
	}

	if _, err := Server(certFile, certFile); err == nil {
		t.Error("expected error when the key file holds a certificate")
	}
}
