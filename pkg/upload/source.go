package upload

import (
	"context"
	"errors"
	"io"
	"sync"
)

// LengthReporter is implemented by sources that know their total length
// up front. DeclaredLength returns -1 when the length is unknown.
type LengthReporter interface {
	DeclaredLength() int64
}

// ReadySource is a byte source for the reactive driver. Read must not
// block while Ready reports true; it returns io.EOF once the source is
// exhausted.
type ReadySource interface {
	io.Reader
	Ready() bool
}

// NotifySource is a ReadySource that signals on Notify whenever more bytes
// may have become ready.
type NotifySource interface {
	ReadySource
	Notify() <-chan struct{}
}

// lengthReader adapts an io.Reader with a known length, such as an HTTP
// request body.
type lengthReader struct {
	io.Reader
	length int64
}

func (r lengthReader) DeclaredLength() int64 {
	return r.length
}

// WithDeclaredLength wraps r so drivers can reject an oversized request
// before reading it. A negative length means unknown.
func WithDeclaredLength(r io.Reader, length int64) io.Reader {
	return lengthReader{Reader: r, length: length}
}

// DefaultQueueCapacity is how many bytes a ChunkSource holds before Push
// waits for the consumer.
const DefaultQueueCapacity = 16 << 10

// ChunkSource is a NotifySource fed from another goroutine. Producers call
// Push and finally Close or CloseWithError; the reactive driver consumes.
//
// The queue is bounded: once it holds the capacity in bytes, Push waits
// until Read makes room, so a fast producer never runs more than one
// capacity ahead of the parser.
type ChunkSource struct {
	mu       sync.Mutex
	queue    [][]byte
	queued   int
	capacity int
	closed   bool
	err      error
	declared int64
	notify   chan struct{}
	room     chan struct{}
	done     chan struct{}
}

// ChunkSourceOption configures a ChunkSource.
type ChunkSourceOption func(*ChunkSource)

// QueueCapacity bounds the bytes queued ahead of the consumer. A single
// chunk larger than n is still accepted into an empty queue.
//
// Default: DefaultQueueCapacity
func QueueCapacity(n int) ChunkSourceOption {
	return func(s *ChunkSource) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// NewChunkSource creates an empty source. declared is the total length if
// known, -1 otherwise.
func NewChunkSource(declared int64, opts ...ChunkSourceOption) *ChunkSource {
	s := &ChunkSource{
		capacity: DefaultQueueCapacity,
		declared: declared,
		notify:   make(chan struct{}, 1),
		room:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push queues a chunk, waiting while the queue is full. The source takes
// ownership of p. Chunks pushed after Close are dropped.
func (s *ChunkSource) Push(p []byte) {
	_ = s.push(context.Background(), p)
}

func (s *ChunkSource) push(ctx context.Context, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil
		}
		if s.queued == 0 || s.queued+len(p) <= s.capacity {
			s.queue = append(s.queue, p)
			s.queued += len(p)
			s.mu.Unlock()
			s.signal()
			return nil
		}
		s.mu.Unlock()

		select {
		case <-s.room:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Buffered returns the number of bytes queued and not yet read.
func (s *ChunkSource) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued
}

// Close marks the end of input.
func (s *ChunkSource) Close() {
	s.CloseWithError(nil)
}

// CloseWithError marks the end of input with a transport failure. Queued
// chunks are still delivered before err.
func (s *ChunkSource) CloseWithError(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	close(s.done)
	s.mu.Unlock()
	s.signal()
}

func (s *ChunkSource) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Ready reports whether Read would return without blocking: bytes are
// queued or the end of input was reached.
func (s *ChunkSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) > 0 || s.closed
}

// Read copies queued bytes into p. It never blocks; with nothing queued on
// an open source it returns 0, nil.
func (s *ChunkSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 {
		n := copy(p, s.queue[0])
		s.queue[0] = s.queue[0][n:]
		if len(s.queue[0]) == 0 {
			s.queue[0] = nil
			s.queue = s.queue[1:]
		}
		s.queued -= n
		select {
		case s.room <- struct{}{}:
		default:
		}
		return n, nil
	}
	if s.closed {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	return 0, nil
}

func (s *ChunkSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Notify returns the readiness channel.
func (s *ChunkSource) Notify() <-chan struct{} {
	return s.notify
}

// DeclaredLength returns the length given to NewChunkSource.
func (s *ChunkSource) DeclaredLength() int64 {
	return s.declared
}

// Pump copies r into the source in chunks of up to size bytes until r is
// exhausted, fails or ctx is cancelled, then closes the source. It reads
// no further while the queue is full, and stops once the source was closed
// by someone else. It blocks; run it in its own goroutine.
func (s *ChunkSource) Pump(ctx context.Context, r io.Reader, size int) {
	for {
		if s.isClosed() {
			return
		}
		if err := ctx.Err(); err != nil {
			s.CloseWithError(err)
			return
		}
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n > 0 {
			if perr := s.push(ctx, buf[:n]); perr != nil {
				s.CloseWithError(perr)
				return
			}
		}
		if errors.Is(err, io.EOF) {
			s.Close()
			return
		}
		if err != nil {
			s.CloseWithError(err)
			return
		}
	}
}
