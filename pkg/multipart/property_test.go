package multipart

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"testing/quick"

	"github.com/sniffpart/sniffpart/internal/multiparttest"
)

// Property: any body content survives the round trip through a generated
// multipart body, regardless of chunking.
func TestProperty_BodyRoundTrip(t *testing.T) {
	property := func(content []byte, chunkSize uint8) bool {
		body := multiparttest.Build("q1w2e3", multiparttest.File("f", "x.bin", "application/octet-stream", content))
		rec, err := parseChunks(t, "q1w2e3", multiparttest.Split(body, int(chunkSize)+1))
		if err != nil {
			t.Logf("parse failed: %v", err)
			return false
		}
		return len(rec.parts) == 1 && bytes.Equal(rec.parts[0].body.Bytes(), content)
	}

	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}

// Property: chunking never changes the event sequence.
func TestProperty_ChunkingInvariance(t *testing.T) {
	property := func(values []string, sizes []uint8) bool {
		var parts []multiparttest.Part
		for i, v := range values {
			if strings.Contains(v, "\r\n--zz") {
				// A value containing the delimiter is not a valid body.
				return true
			}
			parts = append(parts, multiparttest.Field(fmt.Sprintf("f%d", i), v))
		}
		body := multiparttest.Build("zz", parts...)

		whole, err := parseChunks(t, "zz", [][]byte{body})
		if err != nil {
			t.Logf("parse failed: %v", err)
			return false
		}

		split := make([]int, len(sizes))
		for i, s := range sizes {
			split[i] = int(s) + 1
		}
		chunked, err := parseChunks(t, "zz", multiparttest.Split(body, split...))
		if err != nil {
			t.Logf("chunked parse failed: %v", err)
			return false
		}
		return whole.summary() == chunked.summary() && len(whole.parts) == len(values)
	}

	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}
