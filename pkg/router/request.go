package router

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/sniffpart/sniffpart/pkg/sink"
	"github.com/sniffpart/sniffpart/pkg/upload"
)

// PartResult describes one part after it ended.
type PartResult struct {
	Index        int    `json:"index"`
	Field        string `json:"field"`
	FileName     string `json:"filename,omitempty"`
	DeclaredType string `json:"declared_type,omitempty"`
	DetectedType string `json:"detected_type"`
	Size         int64  `json:"size"`
	Key          string `json:"key,omitempty"`
	Value        string `json:"value,omitempty"`
}

// Request routes the parts of one upload. It is driven by the parser's
// callbacks and is not safe for concurrent use.
type Request struct {
	r       *Router
	results []PartResult
	open    *openPart
}

type openPart struct {
	result PartResult
	field  *sink.Memory
	spool  *sink.Spool
	count  *sink.Counting
}

// Results returns the parts that ended so far, in order.
func (q *Request) Results() []PartResult {
	return q.results
}

// SelectSink is an upload.PartBeginFunc.
func (q *Request) SelectSink(s *upload.Session, sniffed []byte) (upload.Sink, error) {
	part := s.CurrentPart()
	declared := part.ContentType()
	op := &openPart{result: PartResult{
		Index:        part.Index(),
		Field:        part.FieldName(),
		FileName:     part.FileName(),
		DeclaredType: declared,
		DetectedType: Detect(sniffed, declared),
	}}

	if !part.IsFile() {
		op.field = sink.NewMemory()
		op.count = &sink.Counting{W: fieldWriter{m: op.field, max: q.r.maxField, field: op.result.Field}}
		q.open = op
		return op.count, nil
	}

	if !q.r.Accepts(op.result.DetectedType) {
		s.Logger().Info("rejected upload",
			slog.String("field", op.result.Field),
			slog.String("filename", op.result.FileName),
			slog.String("detected_type", op.result.DetectedType))
		return nil, fmt.Errorf("%w: %s", ErrDenied, baseType(op.result.DetectedType))
	}

	if q.r.store == nil {
		op.count = &sink.Counting{W: sink.Discard}
		q.open = op
		return op.count, nil
	}

	key, err := q.r.keys.Render(sink.KeyAttrs{
		Session:     s.ID(),
		Field:       op.result.Field,
		FileName:    op.result.FileName,
		Index:       op.result.Index,
		ContentType: baseType(op.result.DetectedType),
	})
	if err != nil {
		return nil, err
	}
	op.result.Key = key

	spool, err := sink.NewSpool(q.r.store, q.r.spoolDir, sink.Object{Key: key, ContentType: op.result.DetectedType})
	if err != nil {
		return nil, err
	}
	op.spool = spool
	op.count = &sink.Counting{W: spool}
	q.open = op
	return abortOnClose{op.count, spool}, nil
}

// EndPart is an upload.PartEndFunc. File parts are committed to the store
// here.
func (q *Request) EndPart(s *upload.Session) error {
	op := q.open
	q.open = nil
	if op == nil {
		return fmt.Errorf("router: part %d ended without a sink", s.CurrentPart().Index())
	}
	op.result.Size = op.count.N
	if op.field != nil {
		op.result.Value = op.field.String()
	}
	if op.spool != nil {
		if err := op.spool.Close(); err != nil {
			return fmt.Errorf("router: store %s: %w", op.result.Key, err)
		}
		s.Logger().Info("stored upload",
			slog.String("field", op.result.Field),
			slog.String("key", op.result.Key),
			slog.Int64("size", op.result.Size))
	}
	q.results = append(q.results, op.result)
	return nil
}

// abortOnClose is handed to the parser for spooled parts. The parser only
// closes a sink when the parse fails, so closing discards the spool; a
// successful part is committed by EndPart instead.
type abortOnClose struct {
	io.Writer
	spool *sink.Spool
}

func (a abortOnClose) Close() error {
	a.spool.Abort()
	return a.spool.Close()
}

// fieldWriter keeps a form field value in memory up to max bytes; max <= 0
// disables the cap.
type fieldWriter struct {
	m     *sink.Memory
	max   int64
	field string
}

func (f fieldWriter) Write(p []byte) (int, error) {
	if f.max > 0 && int64(f.m.Len()+len(p)) > f.max {
		return 0, fmt.Errorf("router: field %q longer than %d bytes", f.field, f.max)
	}
	return f.m.Write(p)
}
