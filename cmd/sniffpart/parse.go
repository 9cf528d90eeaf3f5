package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"cuelang.org/go/cue"
	"github.com/sniffpart/sniffpart/pkg/config"
	"github.com/sniffpart/sniffpart/pkg/router"
	"github.com/sniffpart/sniffpart/pkg/sink"
	"github.com/sniffpart/sniffpart/pkg/tlsconfig"
	"github.com/sniffpart/sniffpart/pkg/upload"
)

// ParseCLI parses a captured multipart body, writing file parts under a
// directory and a JSON summary of every part to stdout.
type ParseCLI struct {
	File           string      `arg:"" optional:"" help:"Body to parse; stdin when omitted or \"-\""`
	Boundary       string      `help:"Boundary token" short:"b" xor:"boundary"`
	ContentType    string      `help:"Full Content-Type header to take the boundary and charset from" name:"content-type" short:"t" xor:"boundary"`
	Out            string      `help:"Directory to write file parts to; file parts are discarded when empty" short:"o"`
	Async          bool        `help:"Pump the input through the reactive driver instead of reading it directly"`
	Allow          []string    `help:"Media type globs accepted for files"`
	Deny           []string    `help:"Media type globs rejected for files"`
	MaxRequestSize config.Size `help:"Largest accepted body" name:"max-request-size"`
	MaxPartSize    config.Size `help:"Largest accepted part" name:"max-part-size"`
	Threshold      config.Size `help:"Bytes sniffed before a sink is chosen" name:"threshold"`

	stdin  io.Reader
	stdout io.Writer
}

func (c *ParseCLI) Run(logger *slog.Logger, _ tlsconfig.Config, _ cue.Value) error {
	boundary, charset := c.Boundary, ""
	if c.ContentType != "" {
		var err error
		boundary, charset, err = upload.BoundaryFromContentType(c.ContentType)
		if err != nil {
			return err
		}
	}
	if boundary == "" {
		return fmt.Errorf("one of --boundary or --content-type is required")
	}

	limits, err := config.LimitsConfig{
		MaxRequestSize: c.MaxRequestSize,
		MaxPartSize:    c.MaxPartSize,
		SizeThreshold:  c.Threshold,
	}.Limits()
	if err != nil {
		return err
	}

	rcfg := router.Config{
		Allow:  c.Allow,
		Deny:   c.Deny,
		Logger: logger,
	}
	if c.Out != "" {
		rcfg.Store = sink.Dir{Root: c.Out}
		rcfg.SpoolDir = c.Out
	}
	rt, err := router.New(rcfg)
	if err != nil {
		return err
	}

	in, closeIn, err := c.input()
	if err != nil {
		return err
	}
	defer closeIn()

	opts := []upload.Option{upload.WithLimits(limits), upload.WithLogger(logger)}
	if charset != "" {
		opts = append(opts, upload.HeaderCharset(charset))
	}
	p, req := rt.Bind(upload.New(opts...))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var session *upload.Session
	if c.Async {
		session, err = parseAsync(ctx, p, boundary, in, limits.ReadBufferSize)
	} else {
		session, err = p.ParseBlocking(ctx, boundary, in)
	}

	out := c.stdout
	if out == nil {
		out = os.Stdout
	}
	resp := parseResult{Parts: req.Results()}
	if session != nil {
		resp.Session = session.ID()
		resp.Boundary = session.Boundary()
		resp.Bytes = session.RequestBytes()
	}
	if err != nil {
		resp.Error = err.Error()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(resp); encErr != nil {
		return encErr
	}
	return err
}

type parseResult struct {
	Session  string              `json:"session,omitempty"`
	Boundary string              `json:"boundary,omitempty"`
	Bytes    int64               `json:"bytes"`
	Parts    []router.PartResult `json:"parts"`
	Error    string              `json:"error,omitempty"`
}

func (c *ParseCLI) input() (io.Reader, func(), error) {
	if c.File == "" || c.File == "-" {
		if c.stdin != nil {
			return c.stdin, func() {}, nil
		}
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(c.File)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return upload.WithDeclaredLength(f, info.Size()), func() { f.Close() }, nil
}

// parseAsync feeds in through a ChunkSource from a second goroutine and
// drives the reactive parser from its notifications.
func parseAsync(ctx context.Context, p *upload.Parser, boundary string, in io.Reader, bufSize int) (*upload.Session, error) {
	declared := int64(-1)
	if lr, ok := in.(upload.LengthReporter); ok {
		declared = lr.DeclaredLength()
	}
	src := upload.NewChunkSource(declared, upload.QueueCapacity(4*bufSize))
	x, err := p.StartReactive(boundary, src)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go src.Pump(ctx, in, bufSize)

	err = x.Run(ctx)
	// A pump blocked reading stdin exits after its next read returns.
	src.CloseWithError(context.Canceled)
	return x.Session(), err
}
