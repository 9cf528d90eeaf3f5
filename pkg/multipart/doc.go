// Package multipart implements an incremental decoder for multipart bodies,
// as sent by browsers for file uploads.
//
// The decoder is a push parser: the caller hands it byte chunks of any size
// and it reports part lifecycle events to a Handler. It never needs more
// than one chunk in memory and never assumes that a boundary, a header line
// or a header block lies within a single chunk.
//
// # Grammar
//
//	preamble   (discarded)
//	--boundary CRLF
//	Name: value CRLF
//	...
//	CRLF
//	body bytes
//	CRLF --boundary CRLF
//	...
//	CRLF --boundary--
//	epilogue   (ignored)
//
// # Basic Usage
//
//	p, err := multipart.NewParser(handler, []byte(boundary))
//	for {
//		n, err := r.Read(buf)
//		if n > 0 {
//			if err := p.Parse(buf[:n]); err != nil {
//				return err
//			}
//		}
//		if err == io.EOF {
//			break
//		}
//	}
//	return p.Close()
//
// Close reports an error unless the terminal boundary was seen. A truncated
// body is never reported as complete.
//
// # Delivery Models
//
// The parser knows nothing about goroutines, readers or notifications.
// Blocking and event-driven drivers both live in package upload and feed
// the same parser.
package multipart
