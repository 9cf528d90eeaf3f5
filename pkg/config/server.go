package config

import (
	"fmt"

	"github.com/sniffpart/sniffpart/pkg/upload"
)

// ServerConfig is the "serve" section of a configuration file.
type ServerConfig struct {
	Listen      string         `json:"listen,omitempty"`
	Limits      LimitsConfig   `json:"limits,omitempty"`
	Charset     string         `json:"charset,omitempty"`
	Storage     StorageConfig  `json:"storage,omitempty"`
	Allow       []string       `json:"allow,omitempty"`
	Deny        []string       `json:"deny,omitempty"`
	KeyTemplate string         `json:"key_template,omitempty"`
	MaxField    Size           `json:"max_field_size,omitempty"`
	Manifests   ManifestConfig `json:"manifests,omitempty"`
	TLS         TLSConfig      `json:"tls,omitempty"`
}

// LimitsConfig holds upload.Limits in human units. Zero values keep the
// parser defaults.
type LimitsConfig struct {
	MaxRequestSize Size `json:"max_request_size,omitempty"`
	MaxPartSize    Size `json:"max_part_size,omitempty"`
	SizeThreshold  Size `json:"size_threshold,omitempty"`
	ReadBufferSize Size `json:"read_buffer_size,omitempty"`
}

// Limits converts to upload.Limits, applying defaults and validating.
func (c LimitsConfig) Limits() (upload.Limits, error) {
	l := upload.DefaultLimits()
	if c.MaxRequestSize != 0 {
		l.MaxRequestSize = int64(c.MaxRequestSize)
	}
	if c.MaxPartSize != 0 {
		l.MaxPartSize = int64(c.MaxPartSize)
	}
	if c.SizeThreshold != 0 {
		l.SizeThreshold = int(c.SizeThreshold)
	}
	if c.ReadBufferSize != 0 {
		l.ReadBufferSize = int(c.ReadBufferSize)
	}
	if err := l.Validate(); err != nil {
		return upload.Limits{}, err
	}
	return l, nil
}

// StorageConfig says where file parts go. Dir and S3 may be combined: the
// directory then acts as a store in the failover pool alongside the buckets.
type StorageConfig struct {
	Dir         string     `json:"dir,omitempty"`
	DirPriority int        `json:"dir_priority,omitempty"`
	SpoolDir    string     `json:"spool_dir,omitempty"`
	S3          []S3Bucket `json:"s3,omitempty"`
}

// S3Bucket is one S3 compatible destination.
type S3Bucket struct {
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix,omitempty"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"` // for S3 compatible services
	PathStyle bool   `json:"path_style,omitempty"`
	Priority  int    `json:"priority,omitempty"`
}

// ManifestConfig enables archiving upload manifests to S3.
type ManifestConfig struct {
	Bucket string `json:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	Region string `json:"region,omitempty"`
}

// TLSConfig holds the server certificate. Both files must be set to serve
// HTTPS.
type TLSConfig struct {
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}

// Validate checks the parts of the config that decoding cannot.
func (c *ServerConfig) Validate() error {
	if _, err := c.Limits.Limits(); err != nil {
		return err
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls: cert_file and key_file must be set together")
	}
	for i, b := range c.Storage.S3 {
		if b.Bucket == "" {
			return fmt.Errorf("storage.s3[%d]: bucket is required", i)
		}
	}
	return nil
}
