package multipart

import (
	"bytes"
	"fmt"
	"mime"
	"net/textproto"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Well-known part header names.
const (
	ContentDisposition = "Content-Disposition"
	ContentType        = "Content-Type"
)

// Header holds the headers of one part. Keys are case-insensitive and each
// key holds a single value; a repeated header keeps its last value.
type Header map[string]string

// Get returns the value for name, or "" if it is not present.
func (h Header) Get(name string) string {
	return h[textproto.CanonicalMIMEHeaderKey(name)]
}

// Set stores value under name, replacing any previous value.
func (h Header) Set(name, value string) {
	h[textproto.CanonicalMIMEHeaderKey(name)] = value
}

// Names returns the canonical header names in sorted order.
func (h Header) Names() []string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ContentType returns the part's declared Content-Type, if any.
func (h Header) ContentType() string {
	return h.Get(ContentType)
}

// FieldName returns the "name" parameter of a form-data Content-Disposition.
func (h Header) FieldName() string {
	return h.dispositionParam("name")
}

// FileName returns the "filename" parameter of a form-data
// Content-Disposition. An RFC 2231 "filename*" parameter wins when present.
func (h Header) FileName() string {
	return h.dispositionParam("filename")
}

// IsFormData reports whether the part's disposition is "form-data".
func (h Header) IsFormData() bool {
	d := strings.TrimSpace(h.Get(ContentDisposition))
	return len(d) >= len("form-data") && strings.EqualFold(d[:len("form-data")], "form-data")
}

func (h Header) dispositionParam(key string) string {
	d := h.Get(ContentDisposition)
	if d == "" {
		return ""
	}
	// mime.ParseMediaType decodes filename* and strips quotes.
	if _, params, err := mime.ParseMediaType(d); err == nil {
		return params[key]
	}
	return quotedParam(d, key)
}

// quotedParam extracts key="value" or key=value from a header value that
// mime.ParseMediaType rejects, e.g. one carrying a raw Windows path.
func quotedParam(header, key string) string {
	for _, field := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), key) {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		return value
	}
	return ""
}

// lookupCharset resolves an IANA charset name. An empty name selects
// ISO-8859-1, the default for HTTP header octets.
func lookupCharset(name string) (encoding.Encoding, error) {
	if name == "" {
		return charmap.ISO8859_1, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("multipart: unknown charset %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("multipart: unsupported charset %q", name)
	}
	return enc, nil
}

// decodeHeader parses a complete header block, including the terminating
// empty line, after converting it from enc.
func decodeHeader(block []byte, enc encoding.Encoding) (Header, string) {
	if enc != unicode.UTF8 {
		decoded, err := enc.NewDecoder().Bytes(block)
		if err != nil {
			return nil, fmt.Sprintf("header not decodable in the request charset: %v", err)
		}
		block = decoded
	}

	h := make(Header)
	var last string
	for len(block) > 0 {
		line, rest, _ := bytes.Cut(block, []byte("\r\n"))
		block = rest
		if len(line) == 0 {
			break
		}
		// Folded continuation of the previous header.
		if line[0] == ' ' || line[0] == '\t' {
			if last == "" {
				return nil, "continuation line without a header"
			}
			h[last] = h[last] + " " + strings.TrimSpace(string(line))
			continue
		}
		name, value, ok := bytes.Cut(line, []byte(":"))
		if !ok {
			return nil, fmt.Sprintf("header line without colon: %q", line)
		}
		key := strings.TrimSpace(string(name))
		if key == "" {
			return nil, "empty header name"
		}
		last = textproto.CanonicalMIMEHeaderKey(key)
		h[last] = strings.TrimSpace(string(value))
	}
	return h, ""
}
