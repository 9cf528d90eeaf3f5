package multipart

const (
	// Default limit for a single part's header block (16KB)
	defaultMaxHeaderSize = 16 * 1024

	// Default limit for bytes before the first boundary (1MB)
	defaultMaxPreambleSize = 1024 * 1024

	// RFC 2046 caps boundaries at 70 characters.
	maxBoundaryLength = 70
)

// config holds parser configuration.
type config struct {
	maxHeaderSize   int
	maxPreambleSize int64
	charset         string
}

// Option configures a Parser.
type Option func(*config)

// MaxHeaderSize sets the maximum size of one part's header block, including
// the terminating empty line. A header block that has not terminated within
// this many bytes is reported as malformed.
//
// Default: 16KB
func MaxHeaderSize(n int) Option {
	return func(c *config) {
		c.maxHeaderSize = n
	}
}

// MaxPreambleSize sets how many bytes may precede the first boundary before
// the body is rejected as not containing the boundary at all. A negative
// value disables the check.
//
// Default: 1MB
func MaxPreambleSize(n int64) Option {
	return func(c *config) {
		c.maxPreambleSize = n
	}
}

// Charset sets the character encoding used to decode header blocks, using
// IANA names such as "UTF-8" or "ISO-8859-1". Boundary detection is always
// byte-exact and unaffected by this setting.
//
// Default: ISO-8859-1
func Charset(name string) Option {
	return func(c *config) {
		c.charset = name
	}
}
