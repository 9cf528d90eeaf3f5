package upload

import (
	"context"
	"errors"
	"io"
)

// ParseBlocking parses src until the closing boundary, the end of src or an
// error, occupying the calling goroutine throughout. If src implements
// LengthReporter, an oversized declared length fails before any read.
//
// ctx is checked between reads; cancellation fails the parse with a
// SourceError. A source that ends before the closing boundary fails with
// ErrMalformed.
func (p *Parser) ParseBlocking(ctx context.Context, boundary string, src io.Reader) (*Session, error) {
	return p.parseBlocking(ctx, boundary, "", src)
}

func (p *Parser) parseBlocking(ctx context.Context, boundary, charset string, src io.Reader) (*Session, error) {
	r, err := p.start(boundary, charset, src)
	if err != nil {
		return sessionOf(r), err
	}

	buf := make([]byte, p.cfg.limits.ReadBufferSize)
	for !r.machine.IsComplete() {
		if err := ctx.Err(); err != nil {
			return r.session, r.fail(&SourceError{Err: err})
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if err := r.feed(buf[:n]); err != nil {
				return r.session, err
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return r.session, r.fail(&SourceError{Err: rerr})
		}
	}
	return r.session, r.finish()
}

func sessionOf(r *run) *Session {
	if r == nil {
		return nil
	}
	return r.session
}
