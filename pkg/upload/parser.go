package upload

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sniffpart/sniffpart/pkg/multipart"
)

// PartBeginFunc chooses the sink for the current part. sniffed holds the
// part's leading bytes, up to SizeThreshold; it is read-only and only valid
// during the call. Returning an error or a nil sink aborts the parse.
type PartBeginFunc func(s *Session, sniffed []byte) (Sink, error)

// PartEndFunc is called after the current part's last byte reached its sink.
type PartEndFunc func(s *Session) error

// ErrorFunc is called once when a parse fails.
type ErrorFunc func(s *Session, err error)

// RequestCompleteFunc is called after the closing boundary was parsed.
type RequestCompleteFunc func(s *Session) error

// Parser holds the configuration and callbacks for parsing uploads. A
// Parser may be reused: every parse gets its own Session.
type Parser struct {
	cfg config

	onPartBegin       PartBeginFunc
	onPartEnd         PartEndFunc
	onError           ErrorFunc
	onRequestComplete RequestCompleteFunc
}

// New creates a Parser. OnPartBegin and OnPartEnd must be set before
// parsing.
//
// Example:
//
//	p := upload.New(upload.MaxRequestSize(100<<20), upload.MaxPartSize(50<<20))
func New(opts ...Option) *Parser {
	cfg := config{
		limits: DefaultLimits(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Parser{cfg: cfg}
}

// OnPartBegin sets the mandatory sink selection callback.
func (p *Parser) OnPartBegin(fn PartBeginFunc) *Parser {
	p.onPartBegin = fn
	return p
}

// OnPartEnd sets the mandatory part completion callback.
func (p *Parser) OnPartEnd(fn PartEndFunc) *Parser {
	p.onPartEnd = fn
	return p
}

// OnError sets the optional failure callback. The driver still returns
// the error.
func (p *Parser) OnError(fn ErrorFunc) *Parser {
	p.onError = fn
	return p
}

// OnRequestComplete sets the optional completion callback.
func (p *Parser) OnRequestComplete(fn RequestCompleteFunc) *Parser {
	p.onRequestComplete = fn
	return p
}

// Limits returns the parser's limits.
func (p *Parser) Limits() Limits {
	return p.cfg.limits
}

// run is one parse in progress: the session, the decoder and the guards.
// It implements multipart.Handler.
type run struct {
	p       *Parser
	session *Session
	machine *multipart.Parser
	sniff   sniffBuffer
	request sizeGuard
	part    sizeGuard
	err     error
}

// start validates the setup and prepares a run. On failure the returned
// run is nil unless a session was already created.
func (p *Parser) start(boundary, charset string, src any) (*run, error) {
	if p.onPartBegin == nil {
		return nil, fmt.Errorf("%w: OnPartBegin is mandatory", ErrMissingCallback)
	}
	if p.onPartEnd == nil {
		return nil, fmt.Errorf("%w: OnPartEnd is mandatory", ErrMissingCallback)
	}
	if err := p.cfg.limits.Validate(); err != nil {
		return nil, err
	}
	if charset == "" {
		charset = p.cfg.charset
	}

	r := &run{
		p:       p,
		session: newSession(boundary, charset, p.cfg.userObject, p.cfg.logger),
		sniff:   sniffBuffer{limit: p.cfg.limits.SizeThreshold},
		request: sizeGuard{limit: p.cfg.limits.MaxRequestSize},
		part:    sizeGuard{limit: p.cfg.limits.MaxPartSize},
	}

	// Fail fast on a declared length before reading anything.
	if lr, ok := src.(LengthReporter); ok {
		if declared := lr.DeclaredLength(); declared >= 0 && r.request.exceeds(declared) {
			return r, r.fail(&RequestSizeError{Actual: declared, Permitted: r.request.limit, Declared: true})
		}
	}

	machine, err := multipart.NewParser(r, []byte(boundary), multipart.Charset(charset))
	if err != nil {
		return r, r.fail(err)
	}
	r.machine = machine

	r.session.logger.Debug("upload parse started",
		slog.String("boundary", boundary),
		slog.String("charset", charset))
	return r, nil
}

// feed counts a chunk pulled from the source and decodes it.
func (r *run) feed(chunk []byte) error {
	r.session.requestBytes += int64(len(chunk))
	if r.request.add(len(chunk)) {
		return r.fail(&RequestSizeError{Actual: r.request.count, Permitted: r.request.limit})
	}
	if err := r.machine.Parse(chunk); err != nil {
		return r.fail(err)
	}
	return nil
}

// finish runs at end of input: one empty feed, then the completion check.
func (r *run) finish() error {
	if err := r.machine.Parse(nil); err != nil {
		return r.fail(err)
	}
	if err := r.machine.Close(); err != nil {
		return r.fail(err)
	}
	r.session.complete = true
	r.session.logger.Debug("upload parse complete",
		slog.Int("parts", r.session.parts),
		slog.String("size", humanize.IBytes(uint64(r.session.requestBytes))),
		slog.Duration("elapsed", time.Since(r.session.Started())))
	if r.p.onRequestComplete != nil {
		if err := r.p.onRequestComplete(r.session); err != nil {
			return r.fail(err)
		}
	}
	return nil
}

// fail records the first error, closes the open part's sink and reports.
func (r *run) fail(err error) error {
	if r.err != nil {
		return r.err
	}
	r.err = err

	if part := r.session.part; part != nil && part.sink != nil {
		if c, ok := part.sink.(io.Closer); ok {
			_ = c.Close()
		}
	}

	attrs := []any{
		slog.String("boundary", r.session.Boundary()),
		slog.String("charset", r.session.Charset()),
		slog.String("error", err.Error()),
	}
	if r.machine != nil {
		attrs = append(attrs, slog.Int64("offset", r.machine.Offset()))
	}
	r.session.logger.Debug("upload parse failed", attrs...)
	if r.p.onError != nil {
		r.p.onError(r.session, err)
	}
	return err
}

// BeginPart opens a part in buffering mode.
func (r *run) BeginPart(h multipart.Header) error {
	r.sniff.reset()
	r.part.reset()
	r.session.part = &Part{
		index:     r.session.parts,
		header:    h,
		buffering: true,
	}
	r.session.logger.Debug("part begin",
		slog.Int("index", r.session.parts),
		slog.String("field", h.FieldName()),
		slog.String("filename", h.FileName()),
		slog.Any("headers", h.Names()))
	return nil
}

// PartData checks the part ceiling, then buffers or forwards the bytes.
func (r *run) PartData(b []byte) error {
	part := r.session.part
	exceeded := r.part.add(len(b))
	part.size = r.part.count
	if exceeded {
		return &PartSizeError{Field: part.FieldName(), Actual: r.part.count, Permitted: r.part.limit}
	}

	if part.buffering {
		b = b[r.sniff.fill(b):]
		if r.sniff.full() {
			if err := r.selectSink(); err != nil {
				return err
			}
		}
	}
	if !part.buffering && len(b) > 0 {
		return writeFull(part.sink, b)
	}
	return nil
}

// EndPart selects a sink for a part that ended while buffering, then
// reports the part's end.
func (r *run) EndPart() error {
	part := r.session.part
	if part.buffering {
		if err := r.selectSink(); err != nil {
			return err
		}
	}
	if err := r.p.onPartEnd(r.session); err != nil {
		return err
	}
	r.session.logger.Debug("part end",
		slog.Int("index", part.index),
		slog.String("field", part.FieldName()),
		slog.String("size", humanize.IBytes(uint64(part.size))))
	r.session.parts++
	r.session.part = nil
	return nil
}

// selectSink hands the sniffed prefix to OnPartBegin exactly once and
// flushes it to the chosen sink.
func (r *run) selectSink() error {
	part := r.session.part
	sniffed := r.sniff.view()

	sink, err := r.p.onPartBegin(r.session, sniffed)
	if err != nil {
		return &SinkSelectionError{Field: part.FieldName(), Err: err}
	}
	if sink == nil {
		return &SinkSelectionError{Field: part.FieldName(), Err: errNilSink}
	}
	part.sink = sink
	part.buffering = false

	if len(sniffed) > 0 {
		return writeFull(sink, sniffed)
	}
	return nil
}
