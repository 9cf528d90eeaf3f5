package uploadserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/sniffpart/sniffpart/pkg/router"
)

// ManifestLogger records the outcome of every upload request for audit and
// analytics.
type ManifestLogger interface {
	LogUpload(ctx context.Context, m *Manifest) error
}

// Manifest describes one upload request.
type Manifest struct {
	Timestamp  time.Time
	Session    string
	RequestID  string
	RemoteAddr string
	Mode       string // "blocking" or "reactive"
	Charset    string // charset part headers were decoded with
	Bytes      int64
	Duration   time.Duration
	Parts      []router.PartResult
	Error      string
}

// SlogManifestLogger writes manifests as structured log records.
type SlogManifestLogger struct {
	logger *slog.Logger
}

// NewSlogManifestLogger creates a manifest logger on top of logger.
func NewSlogManifestLogger(logger *slog.Logger) *SlogManifestLogger {
	return &SlogManifestLogger{logger: logger}
}

// LogUpload emits one record per request. Failed uploads log at warn level.
func (l *SlogManifestLogger) LogUpload(ctx context.Context, m *Manifest) error {
	level := slog.LevelInfo
	if m.Error != "" {
		level = slog.LevelWarn
	}
	files := 0
	for _, p := range m.Parts {
		if p.FileName != "" {
			files++
		}
	}
	l.logger.Log(ctx, level, "upload",
		slog.String("session", m.Session),
		slog.String("request_id", m.RequestID),
		slog.String("remote_addr", m.RemoteAddr),
		slog.String("mode", m.Mode),
		slog.Int64("bytes", m.Bytes),
		slog.Duration("duration", m.Duration),
		slog.Int("parts", len(m.Parts)),
		slog.Int("files", files),
		slog.String("error", m.Error),
	)
	return nil
}

// MultiManifestLogger fans out to several loggers. Every logger is called
// even if an earlier one fails.
type MultiManifestLogger struct {
	loggers []ManifestLogger
}

// NewMultiManifestLogger combines loggers.
func NewMultiManifestLogger(loggers ...ManifestLogger) *MultiManifestLogger {
	return &MultiManifestLogger{loggers: loggers}
}

// LogUpload calls all loggers and joins their errors.
func (m *MultiManifestLogger) LogUpload(ctx context.Context, man *Manifest) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.LogUpload(ctx, man); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopManifestLogger discards manifests.
type NoopManifestLogger struct{}

// LogUpload does nothing.
func (NoopManifestLogger) LogUpload(context.Context, *Manifest) error {
	return nil
}

type manifestJSON struct {
	Timestamp  time.Time           `json:"timestamp"`
	Session    string              `json:"session"`
	RequestID  string              `json:"request_id,omitempty"`
	RemoteAddr string              `json:"remote_addr,omitempty"`
	Mode       string              `json:"mode"`
	Charset    string              `json:"charset,omitempty"`
	Bytes      int64               `json:"bytes"`
	DurationMS int64               `json:"duration_ms"`
	Parts      []router.PartResult `json:"parts"`
	Error      string              `json:"error,omitempty"`
}

func (m *Manifest) toJSON() ([]byte, error) {
	parts := m.Parts
	if parts == nil {
		parts = []router.PartResult{}
	}
	return json.Marshal(manifestJSON{
		Timestamp:  m.Timestamp,
		Session:    m.Session,
		RequestID:  m.RequestID,
		RemoteAddr: m.RemoteAddr,
		Mode:       m.Mode,
		Charset:    m.Charset,
		Bytes:      m.Bytes,
		DurationMS: m.Duration.Milliseconds(),
		Parts:      parts,
		Error:      m.Error,
	})
}
