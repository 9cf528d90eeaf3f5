package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrAborted is returned by Close after Abort.
var ErrAborted = errors.New("sink: spool aborted")

// Spool buffers a part in a temporary file and commits it to a Putter on
// Close. Close removes the temporary file whether or not the commit
// succeeds.
type Spool struct {
	putter  Putter
	obj     Object
	f       *os.File
	size    int64
	timeout time.Duration
	closed  bool
	aborted bool
}

// SpoolOption configures a Spool.
type SpoolOption func(*Spool)

// CommitTimeout bounds the Put call made by Close.
//
// Default: 30s
func CommitTimeout(d time.Duration) SpoolOption {
	return func(s *Spool) {
		s.timeout = d
	}
}

// NewSpool creates a spool in dir ("" for the system temp directory) that
// will commit obj to p. obj.Size is filled in on Close.
func NewSpool(p Putter, dir string, obj Object, opts ...SpoolOption) (*Spool, error) {
	f, err := os.CreateTemp(dir, "sniffpart-spool-*")
	if err != nil {
		return nil, fmt.Errorf("sink: create spool: %w", err)
	}
	s := &Spool{
		putter:  p,
		obj:     obj,
		f:       f,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Spool) Write(p []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	n, err := s.f.Write(p)
	s.size += int64(n)
	return n, err
}

// Size returns the bytes spooled so far.
func (s *Spool) Size() int64 {
	return s.size
}

// Object returns the object as it will be, or was, committed.
func (s *Spool) Object() Object {
	obj := s.obj
	obj.Size = s.size
	return obj
}

// SetContentType changes the content type used on commit.
func (s *Spool) SetContentType(ct string) {
	s.obj.ContentType = ct
}

// Abort marks the spool so that Close discards it instead of committing.
func (s *Spool) Abort() {
	s.aborted = true
}

// Close commits the spooled bytes and removes the temporary file.
func (s *Spool) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer os.Remove(s.f.Name())
	defer s.f.Close()

	if s.aborted {
		return ErrAborted
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("sink: rewind spool: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.putter.Put(ctx, s.Object(), s.f)
}
