// Package uploadserver exposes the upload parser over HTTP.
//
// POST /upload parses the request body on the handler goroutine with the
// blocking driver. POST /upload/async pumps the body into a ChunkSource
// from a separate goroutine and drives the reactive parser from its
// readiness notifications. Both respond with the same JSON document.
package uploadserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sniffpart/sniffpart/pkg/router"
	"github.com/sniffpart/sniffpart/pkg/upload"
)

// DefaultTimeout bounds a whole request.
const DefaultTimeout = 5 * time.Minute

// queueChunks is how many read buffers of body the async endpoint holds
// ahead of the parser.
const queueChunks = 4

// Config configures the upload handler.
type Config struct {
	Limits   upload.Limits
	Charset  string // header charset when the request names none
	Router   *router.Router
	Manifest ManifestLogger // optional
	Logger   *slog.Logger   // optional
	Timeout  time.Duration  // optional, DefaultTimeout when zero
}

type server struct {
	limits   upload.Limits
	charset  string
	router   *router.Router
	manifest ManifestLogger
	log      *slog.Logger
}

// Response is the JSON body of every upload response.
type Response struct {
	Session string              `json:"session,omitempty"`
	Bytes   int64               `json:"bytes"`
	Parts   []router.PartResult `json:"parts"`
	Error   string              `json:"error,omitempty"`
}

// New returns the HTTP handler with the standard middleware stack.
func New(cfg Config) (http.Handler, error) {
	if err := cfg.Limits.Validate(); err != nil {
		return nil, err
	}
	if cfg.Router == nil {
		r, err := router.New(router.Config{Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		cfg.Router = r
	}
	if cfg.Manifest == nil {
		cfg.Manifest = NoopManifestLogger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	s := &server{
		limits:   cfg.Limits,
		charset:  cfg.Charset,
		router:   cfg.Router,
		manifest: cfg.Manifest,
		log:      cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))

	r.Get("/healthz", s.healthz)
	r.Post("/upload", s.uploadBlocking)
	r.Post("/upload/async", s.uploadReactive)
	return r, nil
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *server) parser(w http.ResponseWriter) (*upload.Parser, *router.Request) {
	p := upload.New(
		upload.WithLimits(s.limits),
		upload.HeaderCharset(s.charset),
		upload.WithLogger(s.log),
		upload.WithUserObject(w),
	)
	return s.router.Bind(p)
}

func (s *server) uploadBlocking(w http.ResponseWriter, r *http.Request) {
	if !upload.IsMultipart(r.Header.Get("Content-Type")) {
		s.reject(w, r, "blocking", upload.ErrNotMultipart)
		return
	}
	start := time.Now()
	p, req := s.parser(w)
	session, err := p.ParseRequest(r.Context(), r)
	s.respond(w, r, "blocking", start, session, req, err)
}

func (s *server) uploadReactive(w http.ResponseWriter, r *http.Request) {
	if !upload.IsMultipart(r.Header.Get("Content-Type")) {
		s.reject(w, r, "reactive", upload.ErrNotMultipart)
		return
	}
	start := time.Now()
	p, req := s.parser(w)

	src := upload.NewChunkSource(r.ContentLength, upload.QueueCapacity(queueChunks*s.limits.ReadBufferSize))
	x, err := p.StartRequest(r, src)
	if err != nil {
		s.respond(w, r, "reactive", start, nil, req, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		src.Pump(ctx, r.Body, s.limits.ReadBufferSize)
	}()

	err = x.Run(ctx)
	// Stop the pump before the handler returns and the body goes away. A
	// pump blocked reading from a stalled client is released by expiring
	// the connection's read deadline.
	src.CloseWithError(context.Canceled)
	cancel()
	select {
	case <-pumped:
	default:
		if derr := http.NewResponseController(w).SetReadDeadline(time.Now()); derr != nil {
			s.log.Debug("unable to interrupt body read", "error", derr)
		}
		<-pumped
	}
	s.respond(w, r, "reactive", start, x.Session(), req, err)
}

func (s *server) reject(w http.ResponseWriter, r *http.Request, mode string, err error) {
	s.respond(w, r, mode, time.Now(), nil, nil, err)
}

func (s *server) respond(w http.ResponseWriter, r *http.Request, mode string, start time.Time, session *upload.Session, req *router.Request, err error) {
	resp := Response{Parts: []router.PartResult{}}
	charset := ""
	if session != nil {
		resp.Session = session.ID()
		resp.Bytes = session.RequestBytes()
		start = session.Started()
		charset = session.Charset()
	}
	if req != nil && req.Results() != nil {
		resp.Parts = req.Results()
	}
	status := http.StatusOK
	if err != nil {
		status = StatusFor(err)
		resp.Error = err.Error()
	}

	m := &Manifest{
		Timestamp:  start,
		Session:    resp.Session,
		RequestID:  middleware.GetReqID(r.Context()),
		RemoteAddr: r.RemoteAddr,
		Mode:       mode,
		Charset:    charset,
		Bytes:      resp.Bytes,
		Duration:   time.Since(start),
		Parts:      resp.Parts,
		Error:      resp.Error,
	}
	if lerr := s.manifest.LogUpload(r.Context(), m); lerr != nil {
		s.log.Warn("failed to log upload manifest", "error", lerr)
	}

	out, jerr := json.Marshal(&resp)
	if jerr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		s.log.Warn("unable to jsonify response", "error", jerr)
		return
	}
	if status == http.StatusRequestEntityTooLarge {
		// The rest of the body is not wanted.
		w.Header().Set("Connection", "close")
	}
	w.Header().Add("Content-type", "application/json")
	w.WriteHeader(status)
	if _, werr := w.Write(out); werr != nil {
		s.log.Warn("unable to write response", "error", werr)
	}
}

// StatusFor maps a parse error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, upload.ErrRequestSize), errors.Is(err, upload.ErrPartSize):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrNotMultipart):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, upload.ErrSinkSelection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, upload.ErrMalformed), errors.Is(err, upload.ErrMissingBoundary), errors.Is(err, upload.ErrSource):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
