package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingPutter keeps every committed object in memory.
type recordingPutter struct {
	objects []Object
	bodies  [][]byte
	err     error
}

func (r *recordingPutter) Put(ctx context.Context, obj Object, body io.ReadSeeker) error {
	if r.err != nil {
		return r.err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	r.objects = append(r.objects, obj)
	r.bodies = append(r.bodies, b)
	return nil
}

func spoolFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestSpool_CommitOnClose(t *testing.T) {
	dir := t.TempDir()
	p := &recordingPutter{}
	s, err := NewSpool(p, dir, Object{Key: "a/b", ContentType: "text/plain"})
	require.NoError(t, err)

	_, err = s.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = s.Write([]byte("world"))
	require.NoError(t, err)
	s.SetContentType("text/plain; charset=utf-8")
	require.Equal(t, 1, spoolFiles(t, dir))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, []Object{{Key: "a/b", ContentType: "text/plain; charset=utf-8", Size: 11}}, p.objects)
	require.Equal(t, "hello world", string(p.bodies[0]))
	require.Zero(t, spoolFiles(t, dir))

	_, err = s.Write([]byte("late"))
	require.ErrorIs(t, err, os.ErrClosed)
}

func TestSpool_Abort(t *testing.T) {
	dir := t.TempDir()
	p := &recordingPutter{}
	s, err := NewSpool(p, dir, Object{Key: "k"})
	require.NoError(t, err)
	_, _ = s.Write(bytes.Repeat([]byte("x"), 100))

	s.Abort()
	require.ErrorIs(t, s.Close(), ErrAborted)
	require.Empty(t, p.objects)
	require.Zero(t, spoolFiles(t, dir))
}

func TestSpool_CommitFailureStillCleansUp(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("boom")
	s, err := NewSpool(&recordingPutter{err: boom}, dir, Object{Key: "k"})
	require.NoError(t, err)
	_, _ = s.Write([]byte("x"))

	require.ErrorIs(t, s.Close(), boom)
	require.Zero(t, spoolFiles(t, dir))
}
