package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Reactive drives a parse from a non-blocking source. The owner calls
// OnDataAvailable whenever the source signals readiness and OnAllDataRead
// once it is exhausted; each call processes exactly what is ready and
// returns. Run wraps both in an event loop for a NotifySource.
type Reactive struct {
	mu   sync.Mutex
	r    *run
	src  ReadySource
	buf  []byte
	done bool
	err  error
}

// StartReactive prepares a parse of src. Nothing is read until the first
// OnDataAvailable call, but a declared length over MaxRequestSize fails
// here.
func (p *Parser) StartReactive(boundary string, src ReadySource) (*Reactive, error) {
	return p.startReactive(boundary, "", src)
}

func (p *Parser) startReactive(boundary, charset string, src ReadySource) (*Reactive, error) {
	r, err := p.start(boundary, charset, src)
	if err != nil {
		return nil, err
	}
	return &Reactive{
		r:   r,
		src: src,
		buf: make([]byte, p.cfg.limits.ReadBufferSize),
	}, nil
}

// Session returns the parse's session.
func (x *Reactive) Session() *Session {
	return x.r.session
}

// Done reports whether the parse has finished, successfully or not.
func (x *Reactive) Done() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.done
}

// Err returns the error that ended the parse, if any.
func (x *Reactive) Err() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.err
}

// OnDataAvailable feeds every chunk the source has ready. A source that
// reports end of input finishes the parse.
func (x *Reactive) OnDataAvailable() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.done {
		return x.err
	}
	for x.src.Ready() && !x.r.machine.IsComplete() {
		n, rerr := x.src.Read(x.buf)
		if n > 0 {
			if err := x.r.feed(x.buf[:n]); err != nil {
				return x.end(err)
			}
		}
		if errors.Is(rerr, io.EOF) {
			return x.end(x.r.finish())
		}
		if rerr != nil {
			return x.end(x.r.fail(&SourceError{Err: rerr}))
		}
		if n == 0 {
			break
		}
	}
	if x.r.machine.IsComplete() {
		return x.end(x.r.finish())
	}
	return nil
}

// OnAllDataRead finishes the parse after the source reported end of input.
func (x *Reactive) OnAllDataRead() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.done {
		return x.err
	}
	return x.end(x.r.finish())
}

// OnError fails the parse with a transport error reported by the source's
// owner.
func (x *Reactive) OnError(err error) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.done {
		return x.err
	}
	return x.end(x.r.fail(&SourceError{Err: err}))
}

func (x *Reactive) end(err error) error {
	x.done = true
	x.err = err
	return err
}

// Run waits on the source's notifications and drives the parse until it is
// done or ctx is cancelled. The source must be a NotifySource.
func (x *Reactive) Run(ctx context.Context) error {
	src, ok := x.src.(NotifySource)
	if !ok {
		return fmt.Errorf("%w: source %T has no notification channel", ErrInvalidConfig, x.src)
	}
	notify := src.Notify()
	for {
		if err := x.OnDataAvailable(); err != nil || x.Done() {
			return err
		}
		select {
		case <-ctx.Done():
			return x.OnError(ctx.Err())
		case <-notify:
		}
	}
}
