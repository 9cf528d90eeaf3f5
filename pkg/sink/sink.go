package sink

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Memory keeps a part in memory. It is meant for small form fields.
type Memory struct {
	bytes.Buffer
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Close is a no-op so Memory can stand in wherever an io.WriteCloser is
// expected.
func (m *Memory) Close() error {
	return nil
}

// Discard drops every byte.
var Discard io.Writer = io.Discard

// File writes a part to a file on local disk.
type File struct {
	f    *os.File
	path string
}

// CreateFile creates path, and its parent directories, for writing. An
// existing file is truncated.
func CreateFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sink: create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	return &File{f: f, path: path}, nil
}

// Path returns the file's location.
func (f *File) Path() string {
	return f.path
}

func (f *File) Write(p []byte) (int, error) {
	return f.f.Write(p)
}

// Close flushes and closes the file. It is safe to call more than once.
func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}

// Counting wraps a writer and counts the bytes it accepted.
type Counting struct {
	W io.Writer
	N int64
}

func (c *Counting) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.N += int64(n)
	return n, err
}

// Close closes the wrapped writer if it is an io.Closer.
func (c *Counting) Close() error {
	if cl, ok := c.W.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
