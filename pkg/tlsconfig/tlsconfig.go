// Package tlsconfig builds TLS settings for the upload server and for the
// HTTP clients that talk to S3 compatible endpoints.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Config holds client side TLS options for storage endpoints.
type Config struct {
	// Insecure disables certificate verification and allows http://
	// endpoints. NOT RECOMMENDED FOR PRODUCTION USE.
	Insecure bool

	// CACertFile is a PEM bundle of trusted CAs, for endpoints signed by a
	// private CA. System roots are used when empty.
	CACertFile string
}

// DefaultTimeout bounds a single storage request.
const DefaultTimeout = 5 * time.Minute

// NewHTTPClient returns a client for storage endpoints with DefaultTimeout.
func NewHTTPClient(cfg Config) (*http.Client, error) {
	return NewHTTPClientWithTimeout(cfg, DefaultTimeout)
}

// NewHTTPClientWithTimeout returns a client for storage endpoints.
func NewHTTPClientWithTimeout(cfg Config, timeout time.Duration) (*http.Client, error) {
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.Insecure,
	}
	if cfg.CACertFile != "" {
		pool, err := loadCertPool(cfg.CACertFile)
		if err != nil {
			return nil, err
		}
		tlsCfg.RootCAs = pool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate file %q: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("failed to parse CA certificate file %q: no valid certificates found", path)
	}
	return pool, nil
}

// ValidateURL rejects plain http:// endpoints unless Insecure is set.
func (c Config) ValidateURL(url string) error {
	if strings.HasPrefix(url, "http://") && !c.Insecure {
		return fmt.Errorf("endpoint %q uses insecure http:// protocol; use https:// or pass --insecure to allow it", url)
	}
	return nil
}

// Server loads a certificate and key for serving HTTPS.
func Server(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}
