// Package router chooses a sink for each multipart part from its headers
// and sniffed leading bytes.
//
// Plain form fields are kept in memory. File parts are checked against
// allow and deny lists of media type globs, matched on the type detected
// from the part's content rather than the type the client declared, and
// then spooled to a store under a key rendered from a template.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/gobwas/glob"
	"github.com/sniffpart/sniffpart/pkg/sink"
	"github.com/sniffpart/sniffpart/pkg/upload"
)

// ErrDenied is returned from sink selection when a file's detected type is
// not accepted.
var ErrDenied = errors.New("router: content type not accepted")

// Config configures a Router.
type Config struct {
	// Store receives file parts. When nil, file contents are counted and
	// discarded.
	Store sink.Putter
	// SpoolDir holds in-flight file parts; "" uses the system temp directory.
	SpoolDir string
	// KeyTemplate renders object keys; "" uses sink.DefaultKeyTemplate.
	KeyTemplate string
	// Allow lists media type globs accepted for files, e.g. "image/*". Empty
	// accepts everything not denied.
	Allow []string
	// Deny lists media type globs rejected for files. Deny wins over Allow.
	Deny []string
	// MaxFieldSize caps the value of a plain form field kept in memory.
	// Zero means no cap beyond the parser's part limit.
	MaxFieldSize int64
	Logger       *slog.Logger
}

// Pattern wraps a compiled media type glob.
type Pattern struct {
	glob.Glob
	source string
}

// CompilePattern compiles a media type glob such as "image/*".
func CompilePattern(s string) (Pattern, error) {
	g, err := glob.Compile(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid media type pattern %q: %w", s, err)
	}
	return Pattern{Glob: g, source: s}, nil
}

func (p Pattern) String() string {
	return p.source
}

// Router holds the compiled policy. It is safe for concurrent use; each
// request gets its own Request.
type Router struct {
	store    sink.Putter
	spoolDir string
	keys     *sink.KeyTemplate
	allow    []Pattern
	deny     []Pattern
	maxField int64
	log      *slog.Logger
}

// New compiles cfg into a Router.
func New(cfg Config) (*Router, error) {
	keys, err := sink.ParseKeyTemplate(cfg.KeyTemplate)
	if err != nil {
		return nil, err
	}
	r := &Router{
		store:    cfg.Store,
		spoolDir: cfg.SpoolDir,
		keys:     keys,
		maxField: cfg.MaxFieldSize,
		log:      cfg.Logger,
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	for _, s := range cfg.Allow {
		p, err := CompilePattern(s)
		if err != nil {
			return nil, err
		}
		r.allow = append(r.allow, p)
	}
	for _, s := range cfg.Deny {
		p, err := CompilePattern(s)
		if err != nil {
			return nil, err
		}
		r.deny = append(r.deny, p)
	}
	return r, nil
}

// Accepts reports whether a file with the given media type may be stored.
func (r *Router) Accepts(mediaType string) bool {
	mediaType = baseType(mediaType)
	for _, p := range r.deny {
		if p.Match(mediaType) {
			return false
		}
	}
	if len(r.allow) == 0 {
		return true
	}
	for _, p := range r.allow {
		if p.Match(mediaType) {
			return true
		}
	}
	return false
}

// Detect returns the media type of a part from its sniffed bytes, falling
// back to the declared type when the content is not recognisable.
func Detect(sniffed []byte, declared string) string {
	detected := http.DetectContentType(sniffed)
	if baseType(detected) == "application/octet-stream" && declared != "" {
		return declared
	}
	return detected
}

// baseType strips parameters and lowercases a media type.
func baseType(ct string) string {
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	mt, _, _ := strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// Bind returns p with its part callbacks routed through a new Request.
func (r *Router) Bind(p *upload.Parser) (*upload.Parser, *Request) {
	req := &Request{r: r}
	return p.OnPartBegin(req.SelectSink).OnPartEnd(req.EndPart), req
}
