package uploadserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lmittmann/tint"
	"github.com/sniffpart/sniffpart/internal/multiparttest"
	"github.com/sniffpart/sniffpart/pkg/router"
	"github.com/sniffpart/sniffpart/pkg/sink"
	"github.com/sniffpart/sniffpart/pkg/upload"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(tint.NewHandler(t.Output(), &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "15:04:05",
	}))
}

// memoryManifests keeps manifests for assertions.
type memoryManifests struct {
	mu        sync.Mutex
	manifests []*Manifest
}

func (m *memoryManifests) LogUpload(_ context.Context, man *Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifests = append(m.manifests, man)
	return nil
}

func newHandler(t *testing.T, limits upload.Limits, rcfg router.Config) (http.Handler, *memoryManifests) {
	t.Helper()
	rcfg.Logger = testLogger(t)
	rt, err := router.New(rcfg)
	require.NoError(t, err)
	manifests := &memoryManifests{}
	h, err := New(Config{
		Limits:   limits,
		Router:   rt,
		Manifest: NewMultiManifestLogger(manifests, NewSlogManifestLogger(testLogger(t))),
		Logger:   testLogger(t),
	})
	require.NoError(t, err)
	return h, manifests
}

func post(t *testing.T, h http.Handler, path, contentType string, body []byte) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestServer_Upload(t *testing.T) {
	root := t.TempDir()
	h, manifests := newHandler(t, upload.DefaultLimits(), router.Config{
		Store:       sink.Dir{Root: root},
		SpoolDir:    t.TempDir(),
		KeyTemplate: "{{session}}/{{filename}}",
	})

	pdf := []byte("%PDF-1.7\n" + strings.Repeat("stream ", 2000))
	body := multiparttest.Build(multiparttest.Boundary,
		multiparttest.Field("title", "report"),
		multiparttest.File("doc", "q3.pdf", "application/pdf", pdf),
	)

	for _, path := range []string{"/upload", "/upload/async"} {
		t.Run(path, func(t *testing.T) {
			rec, resp := post(t, h, path, multiparttest.ContentType(multiparttest.Boundary), body)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Empty(t, resp.Error)
			require.NotEmpty(t, resp.Session)
			require.Equal(t, int64(len(body)), resp.Bytes)
			require.Len(t, resp.Parts, 2)
			require.Equal(t, "report", resp.Parts[0].Value)
			require.Equal(t, "application/pdf", resp.Parts[1].DetectedType)
			require.Equal(t, resp.Session+"/q3.pdf", resp.Parts[1].Key)

			stored, err := os.ReadFile(filepath.Join(root, resp.Session, "q3.pdf"))
			require.NoError(t, err)
			require.Equal(t, pdf, stored)
		})
	}

	require.Len(t, manifests.manifests, 2)
	require.Equal(t, "blocking", manifests.manifests[0].Mode)
	require.Equal(t, "reactive", manifests.manifests[1].Mode)
}

func TestServer_ManifestRecordsSession(t *testing.T) {
	h, manifests := newHandler(t, upload.DefaultLimits(), router.Config{
		Store:    sink.Dir{Root: t.TempDir()},
		SpoolDir: t.TempDir(),
	})

	before := time.Now()
	body := multiparttest.Build(multiparttest.Boundary, multiparttest.Field("name", "caf\xe9"))
	rec, resp := post(t, h, "/upload", multiparttest.ContentType(multiparttest.Boundary)+"; charset=iso-8859-1", body)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, manifests.manifests, 1)
	m := manifests.manifests[0]
	require.Equal(t, resp.Session, m.Session)
	require.Equal(t, "iso-8859-1", m.Charset)
	require.False(t, m.Timestamp.Before(before.Add(-time.Second)))
	require.False(t, m.Timestamp.After(time.Now()))
}

func TestServer_ErrorStatus(t *testing.T) {
	ok := multiparttest.Build(multiparttest.Boundary, multiparttest.Field("a", strings.Repeat("x", 100)))
	ct := multiparttest.ContentType(multiparttest.Boundary)

	tests := []struct {
		name        string
		limits      func(*upload.Limits)
		rcfg        router.Config
		contentType string
		body        []byte
		status      int
	}{
		{
			name:        "request too large",
			limits:      func(l *upload.Limits) { l.MaxRequestSize = 50 },
			contentType: ct,
			body:        ok,
			status:      http.StatusRequestEntityTooLarge,
		},
		{
			name:        "part too large",
			limits:      func(l *upload.Limits) { l.MaxPartSize = 99 },
			contentType: ct,
			body:        ok,
			status:      http.StatusRequestEntityTooLarge,
		},
		{
			name:        "truncated",
			contentType: ct,
			body:        ok[:len(ok)-3],
			status:      http.StatusBadRequest,
		},
		{
			name:        "missing boundary",
			contentType: "multipart/form-data",
			body:        ok,
			status:      http.StatusBadRequest,
		},
		{
			name:        "not multipart",
			contentType: "application/json",
			body:        []byte("{}"),
			status:      http.StatusUnsupportedMediaType,
		},
		{
			name:        "denied type",
			rcfg:        router.Config{Deny: []string{"text/*"}},
			contentType: ct,
			body:        multiparttest.Build(multiparttest.Boundary, multiparttest.File("f", "a.txt", "", []byte("plain text"))),
			status:      http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		for _, path := range []string{"/upload", "/upload/async"} {
			t.Run(fmt.Sprintf("%s %s", tt.name, path), func(t *testing.T) {
				limits := upload.DefaultLimits()
				if tt.limits != nil {
					tt.limits(&limits)
				}
				h, manifests := newHandler(t, limits, tt.rcfg)
				rec, resp := post(t, h, path, tt.contentType, tt.body)
				require.Equal(t, tt.status, rec.Code, resp.Error)
				require.NotEmpty(t, resp.Error)
				require.NotNil(t, resp.Parts)
				require.Len(t, manifests.manifests, 1)
				require.Equal(t, resp.Error, manifests.manifests[0].Error)
			})
		}
	}
}

func TestServer_AsyncRespondsToStalledClient(t *testing.T) {
	limits := upload.DefaultLimits()
	limits.MaxPartSize = 64
	h, _ := newHandler(t, limits, router.Config{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	// The first part overflows the limit; the client then goes quiet with
	// most of its declared body unsent.
	body := multiparttest.Build(multiparttest.Boundary, multiparttest.Field("a", strings.Repeat("x", 256)))
	head := body[:len(body)-16]

	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	fmt.Fprintf(conn, "POST /upload/async HTTP/1.1\r\nHost: sniffpart\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n",
		multiparttest.ContentType(multiparttest.Boundary), len(body)+1<<20)
	_, err = conn.Write(head)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	res, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err, "handler must answer without waiting for the rest of the body")
	defer res.Body.Close()
	require.Equal(t, http.StatusRequestEntityTooLarge, res.StatusCode)
}

func TestServer_Healthz(t *testing.T) {
	h, _ := newHandler(t, upload.DefaultLimits(), router.Config{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestNew_InvalidLimits(t *testing.T) {
	limits := upload.DefaultLimits()
	limits.SizeThreshold = 0
	_, err := New(Config{Limits: limits})
	require.ErrorIs(t, err, upload.ErrInvalidConfig)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, StatusFor(fmt.Errorf("other")))
	require.Equal(t, http.StatusBadRequest, StatusFor(&upload.SourceError{Err: context.Canceled}))
	require.Equal(t, http.StatusRequestEntityTooLarge, StatusFor(&upload.PartSizeError{}))
}
