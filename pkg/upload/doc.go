// Package upload parses multipart/form-data request bodies as a stream and
// lets the caller choose, per part, where the part's bytes go.
//
// Each part's leading bytes are held back until SizeThreshold bytes have
// arrived or the part ends. The OnPartBegin callback then sees that sniffed
// prefix together with the part's headers and returns a Sink; the held bytes
// are written to it first and the rest of the part streams straight through.
//
// # Basic Usage
//
//	p := upload.New(upload.MaxPartSize(50<<20), upload.SizeThreshold(4096)).
//		OnPartBegin(func(s *upload.Session, sniffed []byte) (upload.Sink, error) {
//			if s.CurrentPart().IsFile() {
//				return os.Create(filepath.Join(dir, filepath.Base(s.CurrentPart().FileName())))
//			}
//			return new(bytes.Buffer), nil
//		}).
//		OnPartEnd(func(s *upload.Session) error {
//			if c, ok := s.CurrentPart().Sink().(io.Closer); ok {
//				return c.Close()
//			}
//			return nil
//		})
//
//	session, err := p.ParseRequest(r.Context(), r)
//
// # Delivery Models
//
// ParseBlocking and ParseRequest occupy the calling goroutine until the body
// is consumed. StartReactive returns a Reactive driver for sources that
// deliver bytes in bursts: call OnDataAvailable whenever the source signals
// readiness and it processes exactly the bytes available, then returns.
// Both drivers share the same decoder and report identical events.
//
// # Limits
//
// MaxRequestSize and MaxPartSize are checked after every increment, before
// the offending bytes reach a sink. When the source declares its length (an
// http.Request's ContentLength, for instance) an oversized request is
// rejected before a single byte is read.
package upload
