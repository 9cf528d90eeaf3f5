package upload

import (
	"fmt"
	"io"
)

// Sink accepts a part's bytes in order. Sinks that also implement io.Closer
// are closed by the parser only when a parse fails; otherwise closing is up
// to the caller, typically in OnPartEnd.
type Sink interface {
	io.Writer
}

// sniffBuffer holds a part's leading bytes until the sink is chosen. It
// grows on demand up to limit and is reset, never shared, between parts.
type sniffBuffer struct {
	buf   []byte
	limit int
}

// fill copies as much of p as fits and returns the count.
func (s *sniffBuffer) fill(p []byte) int {
	n := min(s.limit-len(s.buf), len(p))
	s.buf = append(s.buf, p[:n]...)
	return n
}

func (s *sniffBuffer) full() bool {
	return len(s.buf) >= s.limit
}

// view returns the buffered bytes; appending to it cannot reach the buffer.
func (s *sniffBuffer) view() []byte {
	return s.buf[:len(s.buf):len(s.buf)]
}

func (s *sniffBuffer) reset() {
	s.buf = s.buf[:0]
}

// writeFull writes all of p to w.
func writeFull(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	return nil
}
