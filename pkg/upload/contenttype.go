package upload

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// IsMultipart reports whether contentType is a multipart media type.
func IsMultipart(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "multipart/")
	}
	return strings.HasPrefix(mediaType, "multipart/")
}

// BoundaryFromContentType extracts the boundary and optional charset from a
// multipart Content-Type value.
func BoundaryFromContentType(contentType string) (boundary, charset string, err error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrNotMultipart, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", "", fmt.Errorf("%w: %s", ErrNotMultipart, mediaType)
	}
	boundary = params["boundary"]
	if boundary == "" {
		return "", "", ErrMissingBoundary
	}
	return boundary, params["charset"], nil
}

// ParseRequest parses req's body with the blocking driver. The request's
// ContentLength is used as the declared length and its Content-Type charset,
// when present, overrides HeaderCharset.
func (p *Parser) ParseRequest(ctx context.Context, req *http.Request) (*Session, error) {
	boundary, charset, err := BoundaryFromContentType(req.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	return p.parseBlocking(ctx, boundary, charset, WithDeclaredLength(req.Body, req.ContentLength))
}

// StartRequest prepares a reactive parse of req's body from src, typically
// a ChunkSource pumped from req.Body.
func (p *Parser) StartRequest(req *http.Request, src ReadySource) (*Reactive, error) {
	boundary, charset, err := BoundaryFromContentType(req.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	return p.startReactive(boundary, charset, src)
}
