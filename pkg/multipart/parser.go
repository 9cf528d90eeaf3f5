package multipart

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding"
)

// State is the parser's position in the multipart grammar.
type State int

const (
	// StatePreamble skips bytes before the first boundary.
	StatePreamble State = iota
	// StateHeaders accumulates a part's header block.
	StateHeaders
	// StateBody streams part content while looking for the boundary.
	StateBody
	// StateBoundaryTrailer reads the bytes after a boundary to decide
	// between another part and the end of the body.
	StateBoundaryTrailer
	// StateComplete is terminal: the closing boundary was seen.
	StateComplete
	// StateFailed is terminal: the input was rejected or a handler failed.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePreamble:
		return "preamble"
	case StateHeaders:
		return "headers"
	case StateBody:
		return "body"
	case StateBoundaryTrailer:
		return "boundary trailer"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handler receives part lifecycle events. Events for one part are always
// delivered as BeginPart, zero or more PartData, EndPart, and never
// interleave with another part's events.
//
// A non-nil error from any method stops the parser; Parse returns that
// error unchanged.
type Handler interface {
	// BeginPart is called once the part's header block is complete.
	BeginPart(h Header) error

	// PartData delivers body bytes. The slice is only valid for the
	// duration of the call and must not be modified.
	PartData(p []byte) error

	// EndPart is called when the boundary closing the part is seen.
	EndPart() error
}

// trailer sub-states, persisted across chunks.
const (
	trailerStart = iota
	trailerDash
	trailerCR
)

var crlf = []byte("\r\n")

// Parser is an incremental multipart decoder. Feed it with Parse; it is not
// safe for concurrent use.
type Parser struct {
	h        Handler
	enc      encoding.Encoding
	boundary []byte
	delim    *matcher

	maxHeaderSize   int
	maxPreambleSize int64

	state    State
	trailer  int
	header   []byte // partial header block
	preamble int64
	offset   int64
	err      error
}

// NewParser creates a parser for a body delimited by boundary, the token
// from the request's Content-Type, without the leading dashes.
//
// Example:
//
//	p, err := multipart.NewParser(h, []byte("----WebKitFormBoundary7MA4YWxk"), multipart.Charset("UTF-8"))
func NewParser(h Handler, boundary []byte, opts ...Option) (*Parser, error) {
	if len(boundary) == 0 {
		return nil, ErrMissingBoundary
	}
	if len(boundary) > maxBoundaryLength {
		return nil, fmt.Errorf("%w: boundary longer than %d bytes", ErrMissingBoundary, maxBoundaryLength)
	}

	cfg := &config{
		maxHeaderSize:   defaultMaxHeaderSize,
		maxPreambleSize: defaultMaxPreambleSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	enc, err := lookupCharset(cfg.charset)
	if err != nil {
		return nil, err
	}

	// Every delimiter is CRLF "--" boundary. The first one may start the
	// stream, so the matcher begins as if CRLF had just been read.
	pattern := make([]byte, 0, len(boundary)+4)
	pattern = append(pattern, crlf...)
	pattern = append(pattern, "--"...)
	pattern = append(pattern, boundary...)
	delim := newMatcher(pattern)
	delim.reset(len(crlf))

	return &Parser{
		h:               h,
		enc:             enc,
		boundary:        append([]byte(nil), boundary...),
		delim:           delim,
		maxHeaderSize:   cfg.maxHeaderSize,
		maxPreambleSize: cfg.maxPreambleSize,
		state:           StatePreamble,
	}, nil
}

// State returns the parser's current state.
func (p *Parser) State() State {
	return p.state
}

// IsComplete reports whether the closing boundary has been seen.
func (p *Parser) IsComplete() bool {
	return p.state == StateComplete
}

// Offset returns the number of bytes consumed so far.
func (p *Parser) Offset() int64 {
	return p.offset
}

// Err returns the error that stopped the parser, if any.
func (p *Parser) Err() error {
	return p.err
}

// Parse consumes one chunk completely. Bytes after the closing boundary are
// ignored. Parse(nil) is the end-of-input feed: it changes nothing in a
// well-formed stream but lets drivers treat "no more bytes" uniformly.
func (p *Parser) Parse(chunk []byte) error {
	if p.state == StateFailed {
		return ErrFailed
	}
	for len(chunk) > 0 && p.state != StateComplete {
		var n int
		var err error
		switch p.state {
		case StatePreamble:
			n, err = p.parsePreamble(chunk)
		case StateHeaders:
			n, err = p.parseHeaders(chunk)
		case StateBody:
			n, err = p.parseBody(chunk)
		case StateBoundaryTrailer:
			n, err = p.parseTrailer(chunk)
		}
		p.offset += int64(n)
		chunk = chunk[n:]
		if err != nil {
			return p.fail(err)
		}
	}
	return nil
}

// Close signals end of input. It returns nil only if the closing boundary
// was seen; a stream that ends anywhere else is malformed.
func (p *Parser) Close() error {
	switch p.state {
	case StateComplete:
		return nil
	case StateFailed:
		return p.err
	case StatePreamble:
		return p.fail(p.formatError("boundary not found in stream"))
	case StateHeaders:
		return p.fail(p.formatError("stream ended inside a part's headers"))
	case StateBody:
		return p.fail(p.formatError("stream ended inside a part's body"))
	default:
		return p.fail(p.formatError("stream ended before the closing boundary"))
	}
}

func (p *Parser) fail(err error) error {
	p.state = StateFailed
	p.err = err
	return err
}

func (p *Parser) formatError(reason string) error {
	return &FormatError{Offset: p.offset, State: p.state, Reason: reason}
}

func (p *Parser) parsePreamble(chunk []byte) (int, error) {
	released, data, consumed, found := p.delim.scan(chunk)
	p.preamble += int64(released + data)
	if p.maxPreambleSize >= 0 && p.preamble > p.maxPreambleSize {
		return consumed, p.formatError("boundary not found within preamble limit")
	}
	if found {
		p.state = StateBoundaryTrailer
		p.trailer = trailerStart
	}
	return consumed, nil
}

func (p *Parser) parseHeaders(chunk []byte) (int, error) {
	i := 0
	for i < len(chunk) {
		j := bytes.IndexByte(chunk[i:], '\n')
		end := len(chunk)
		if j >= 0 {
			end = i + j + 1
		}
		if len(p.header)+end-i > p.maxHeaderSize {
			return end, p.formatError(fmt.Sprintf("header block exceeds %d bytes", p.maxHeaderSize))
		}
		p.header = append(p.header, chunk[i:end]...)
		i = end

		if j >= 0 && blockDone(p.header) {
			h, reason := decodeHeader(p.header, p.enc)
			if reason != "" {
				return i, p.formatError(reason)
			}
			p.header = p.header[:0]
			p.state = StateBody
			p.delim.reset(0)
			if err := p.h.BeginPart(h); err != nil {
				return i, err
			}
			return i, nil
		}
	}
	return i, nil
}

// blockDone reports whether block ends with the empty line closing a
// header section.
func blockDone(block []byte) bool {
	if len(block) == 2 {
		return bytes.Equal(block, crlf)
	}
	return bytes.HasSuffix(block, []byte("\r\n\r\n"))
}

func (p *Parser) parseBody(chunk []byte) (int, error) {
	// Withheld bytes are a copy of the delimiter prefix, so they can be
	// handed out from the pattern once they are known to be data.
	pending := p.delim.pending()
	released, data, consumed, found := p.delim.scan(chunk)
	if released > 0 {
		if err := p.h.PartData(pending[:released]); err != nil {
			return consumed, err
		}
	}
	if data > 0 {
		if err := p.h.PartData(chunk[:data]); err != nil {
			return consumed, err
		}
	}
	if found {
		p.state = StateBoundaryTrailer
		p.trailer = trailerStart
		if err := p.h.EndPart(); err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

func (p *Parser) parseTrailer(chunk []byte) (int, error) {
	for i, b := range chunk {
		switch p.trailer {
		case trailerStart:
			switch b {
			case '-':
				p.trailer = trailerDash
			case '\r':
				p.trailer = trailerCR
			case ' ', '\t':
				// transport padding
			default:
				return i, p.formatError(fmt.Sprintf("unexpected %q after boundary", b))
			}
		case trailerDash:
			if b != '-' {
				return i, p.formatError(fmt.Sprintf("expected '-' in closing boundary, got %q", b))
			}
			p.state = StateComplete
			return i + 1, nil
		case trailerCR:
			if b != '\n' {
				return i, p.formatError(fmt.Sprintf("expected LF after boundary, got %q", b))
			}
			p.state = StateHeaders
			return i + 1, nil
		}
	}
	return len(chunk), nil
}
