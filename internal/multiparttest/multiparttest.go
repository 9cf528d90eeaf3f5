// Package multiparttest builds multipart bodies and chunkings for tests.
package multiparttest

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
)

// Boundary is the token used by Build when none is given.
const Boundary = "----sniffpartBoundary7MA4YWxkTrZu0gW"

// Part describes one section of a generated body.
type Part struct {
	Field       string
	FileName    string
	ContentType string
	Extra       []string // raw "Name: value" header lines
	Body        []byte
}

// Field returns a plain form field part.
func Field(name, value string) Part {
	return Part{Field: name, Body: []byte(value)}
}

// File returns a file part.
func File(name, filename, contentType string, body []byte) Part {
	return Part{Field: name, FileName: filename, ContentType: contentType, Body: body}
}

// Build renders parts as a multipart/form-data body delimited by boundary.
func Build(boundary string, parts ...Part) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		if p.FileName != "" {
			fmt.Fprintf(&buf, "Content-Disposition: form-data; name=%q; filename=%q\r\n", p.Field, p.FileName)
		} else if p.Field != "" {
			fmt.Fprintf(&buf, "Content-Disposition: form-data; name=%q\r\n", p.Field)
		}
		if p.ContentType != "" {
			fmt.Fprintf(&buf, "Content-Type: %s\r\n", p.ContentType)
		}
		for _, line := range p.Extra {
			fmt.Fprintf(&buf, "%s\r\n", line)
		}
		buf.WriteString("\r\n")
		buf.Write(p.Body)
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(&buf, "--%s--", boundary)
	return buf.Bytes()
}

// ContentType returns the request Content-Type for boundary.
func ContentType(boundary string) string {
	return "multipart/form-data; boundary=" + boundary
}

// Split cuts data at the given sizes, repeating the last size as needed.
func Split(data []byte, sizes ...int) [][]byte {
	if len(sizes) == 0 {
		return [][]byte{data}
	}
	var chunks [][]byte
	for i := 0; len(data) > 0; i++ {
		n := sizes[len(sizes)-1]
		if i < len(sizes) {
			n = sizes[i]
		}
		if n <= 0 || n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// RandomSplit cuts data into chunks of random length between 1 and max.
func RandomSplit(rng *rand.Rand, data []byte, max int) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := 1 + rng.Intn(max)
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// ChunkReader returns chunks one per Read call, like a network connection
// delivering packets.
type ChunkReader struct {
	chunks [][]byte
	Err    error // returned after the last chunk; io.EOF when nil
}

// NewChunkReader returns a reader over chunks.
func NewChunkReader(chunks [][]byte) *ChunkReader {
	return &ChunkReader{chunks: append([][]byte(nil), chunks...)}
}

func (r *ChunkReader) Read(p []byte) (int, error) {
	for len(r.chunks) > 0 && len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	if len(r.chunks) == 0 {
		if r.Err != nil {
			return 0, r.Err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	return n, nil
}
