package sink

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/cbroglie/mustache"
)

// DefaultKeyTemplate lays objects out by day and session.
const DefaultKeyTemplate = "{{date}}/{{session}}/{{index}}-{{filename}}"

// KeyTemplate renders object keys from part attributes.
//
// Available variables: session, field, filename, index, date (YYYY-MM-DD),
// ext (filename extension including the dot) and type (sniffed media type).
// field and filename are sanitised to letters, digits, '.', '-' and '_'.
type KeyTemplate struct {
	tmpl *mustache.Template
	now  func() time.Time
}

// KeyAttrs are the values a key is rendered from.
type KeyAttrs struct {
	Session     string
	Field       string
	FileName    string
	Index       int
	ContentType string
}

// ParseKeyTemplate compiles a mustache key template.
func ParseKeyTemplate(s string) (*KeyTemplate, error) {
	if s == "" {
		s = DefaultKeyTemplate
	}
	tmpl, err := mustache.ParseString(s)
	if err != nil {
		return nil, fmt.Errorf("sink: parse key template: %w", err)
	}
	return &KeyTemplate{tmpl: tmpl, now: time.Now}, nil
}

// Render produces the key for a part.
func (k *KeyTemplate) Render(a KeyAttrs) (string, error) {
	filename := sanitize(a.FileName)
	if filename == "" {
		filename = "part"
	}
	attrs := map[string]string{
		"session":  a.Session,
		"field":    sanitize(a.Field),
		"filename": filename,
		"index":    strconv.Itoa(a.Index),
		"date":     k.now().UTC().Format("2006-01-02"),
		"ext":      path.Ext(filename),
		"type":     a.ContentType,
	}
	key, err := k.tmpl.Render(attrs)
	if err != nil {
		return "", fmt.Errorf("sink: render key: %w", err)
	}
	key = strings.Trim(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("sink: key template rendered an empty key")
	}
	return key, nil
}

// sanitize keeps the base name of a client supplied name and replaces
// anything outside a conservative character set.
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return strings.TrimLeft(sb.String(), ".")
}
