package upload

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sniffpart/sniffpart/pkg/multipart"
)

// Session is the state of one request's parse. It is created when parsing
// starts and handed to every callback.
type Session struct {
	id           string
	boundary     string
	charset      string
	started      time.Time
	requestBytes int64
	part         *Part
	parts        int
	complete     bool
	userObject   any
	logger       *slog.Logger
}

func newSession(boundary, charset string, userObject any, logger *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:         id,
		boundary:   boundary,
		charset:    charset,
		started:    time.Now(),
		userObject: userObject,
		logger:     logger.With(slog.String("session", id)),
	}
}

// ID returns a unique identifier for the session.
func (s *Session) ID() string { return s.id }

// Boundary returns the boundary token the body is split on.
func (s *Session) Boundary() string { return s.boundary }

// Charset returns the header charset, "" meaning ISO-8859-1.
func (s *Session) Charset() string { return s.charset }

// Started returns when parsing began.
func (s *Session) Started() time.Time { return s.started }

// RequestBytes returns how many bytes have been read from the source.
func (s *Session) RequestBytes() int64 { return s.requestBytes }

// CurrentPart returns the open part, or nil between parts.
func (s *Session) CurrentPart() *Part { return s.part }

// PartsCompleted returns how many parts have ended.
func (s *Session) PartsCompleted() int { return s.parts }

// IsComplete reports whether the closing boundary was reached.
func (s *Session) IsComplete() bool { return s.complete }

// UserObject returns the value given with WithUserObject.
func (s *Session) UserObject() any { return s.userObject }

// Logger returns a logger tagged with the session ID.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Part is one multipart section while it is open.
type Part struct {
	index     int
	header    multipart.Header
	size      int64
	buffering bool
	sink      Sink
}

// Index returns the part's zero-based position in the body.
func (p *Part) Index() int { return p.index }

// Header returns the part's headers.
func (p *Part) Header() multipart.Header { return p.header }

// FieldName returns the form field name.
func (p *Part) FieldName() string { return p.header.FieldName() }

// FileName returns the client-supplied file name, "" for plain fields.
func (p *Part) FileName() string { return p.header.FileName() }

// IsFile reports whether the part carries a file name.
func (p *Part) IsFile() bool { return p.header.FileName() != "" }

// ContentType returns the declared Content-Type of the part.
func (p *Part) ContentType() string { return p.header.ContentType() }

// Size returns the body bytes read so far.
func (p *Part) Size() int64 { return p.size }

// IsBuffering reports whether the sink has yet to be chosen.
func (p *Part) IsBuffering() bool { return p.buffering }

// Sink returns the chosen sink, nil while buffering.
func (p *Part) Sink() Sink { return p.sink }
