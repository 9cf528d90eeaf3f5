package upload

import (
	"fmt"
	"log/slog"
)

// Unlimited disables a size ceiling.
const Unlimited int64 = -1

const (
	// Default number of leading bytes held back for sink selection (4KB)
	defaultSizeThreshold = 4096

	// Default capacity of the buffer each driver reads into (1KB)
	defaultReadBufferSize = 1024
)

// Limits holds the per-parse size settings.
type Limits struct {
	// MaxRequestSize caps the bytes read from the source. Unlimited disables it.
	MaxRequestSize int64
	// MaxPartSize caps the body bytes of any single part. Unlimited disables it.
	MaxPartSize int64
	// SizeThreshold is how many leading bytes of each part are buffered
	// before OnPartBegin is called. Must be positive.
	SizeThreshold int
	// ReadBufferSize is the capacity of the driver's read buffer. Must be positive.
	ReadBufferSize int
}

// DefaultLimits returns unlimited ceilings with the default buffer sizes.
func DefaultLimits() Limits {
	return Limits{
		MaxRequestSize: Unlimited,
		MaxPartSize:    Unlimited,
		SizeThreshold:  defaultSizeThreshold,
		ReadBufferSize: defaultReadBufferSize,
	}
}

// Validate checks that every limit is in range.
func (l Limits) Validate() error {
	if l.MaxRequestSize < Unlimited {
		return fmt.Errorf("%w: max request size %d", ErrInvalidConfig, l.MaxRequestSize)
	}
	if l.MaxPartSize < Unlimited {
		return fmt.Errorf("%w: max part size %d", ErrInvalidConfig, l.MaxPartSize)
	}
	if l.SizeThreshold <= 0 {
		return fmt.Errorf("%w: size threshold must be positive, got %d", ErrInvalidConfig, l.SizeThreshold)
	}
	if l.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: read buffer size must be positive, got %d", ErrInvalidConfig, l.ReadBufferSize)
	}
	return nil
}

// config holds parser configuration.
type config struct {
	limits     Limits
	charset    string
	logger     *slog.Logger
	userObject any
}

// Option configures a Parser.
type Option func(*config)

// MaxRequestSize sets the ceiling for the whole request body.
//
// Default: Unlimited
func MaxRequestSize(n int64) Option {
	return func(c *config) {
		c.limits.MaxRequestSize = n
	}
}

// MaxPartSize sets the ceiling for each part's body.
//
// Default: Unlimited
func MaxPartSize(n int64) Option {
	return func(c *config) {
		c.limits.MaxPartSize = n
	}
}

// SizeThreshold sets how many leading bytes of a part are sniffed before
// the sink is chosen.
//
// Default: 4KB
func SizeThreshold(n int) Option {
	return func(c *config) {
		c.limits.SizeThreshold = n
	}
}

// ReadBufferSize sets the capacity of the drivers' read buffer, the most
// bytes pulled from the source at once.
//
// Default: 1KB
func ReadBufferSize(n int) Option {
	return func(c *config) {
		c.limits.ReadBufferSize = n
	}
}

// WithLimits replaces all limits at once.
func WithLimits(l Limits) Option {
	return func(c *config) {
		c.limits = l
	}
}

// HeaderCharset sets the charset used to decode part headers when the
// request's Content-Type does not name one.
//
// Default: ISO-8859-1
func HeaderCharset(name string) Option {
	return func(c *config) {
		c.charset = name
	}
}

// WithLogger sets the logger used for parse lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithUserObject attaches an arbitrary value that callbacks can retrieve
// with Session.UserObject, typically the http.ResponseWriter.
func WithUserObject(v any) Option {
	return func(c *config) {
		c.userObject = v
	}
}
