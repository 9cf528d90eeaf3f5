package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cuelang.org/go/cue"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sniffpart/sniffpart/pkg/config"
	"github.com/sniffpart/sniffpart/pkg/router"
	"github.com/sniffpart/sniffpart/pkg/sink"
	"github.com/sniffpart/sniffpart/pkg/tlsconfig"
	"github.com/sniffpart/sniffpart/pkg/uploadserver"
)

// ServeCLI runs the HTTP upload server. Storage, type filters and limits
// come from the "serve" section of the config; flags override it.
type ServeCLI struct {
	Listen         string        `help:"Address to listen on (host:port or unix:///path)" short:"l" env:"SNIFFPART_LISTEN" default:"0.0.0.0:8080"`
	Dir            string        `help:"Store file parts under this directory" name:"dir"`
	MaxRequestSize config.Size   `help:"Largest accepted request body, e.g. 64MiB" name:"max-request-size"`
	MaxPartSize    config.Size   `help:"Largest accepted part body" name:"max-part-size"`
	Timeout        time.Duration `help:"Per-request timeout" default:"5m"`
}

func (c *ServeCLI) Run(logger *slog.Logger, tlsCfg tlsconfig.Config, unifiedConfig cue.Value) error {
	cfg, err := loadServerConfig(unifiedConfig)
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}
	c.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	limits, err := cfg.Limits.Limits()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg.Storage, tlsCfg, logger)
	if err != nil {
		return err
	}

	rt, err := router.New(router.Config{
		Store:        store,
		SpoolDir:     cfg.Storage.SpoolDir,
		KeyTemplate:  cfg.KeyTemplate,
		Allow:        cfg.Allow,
		Deny:         cfg.Deny,
		MaxFieldSize: int64(cfg.MaxField),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	manifests, shutdown, err := buildManifestLogger(ctx, cfg.Manifests, tlsCfg, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	handler, err := uploadserver.New(uploadserver.Config{
		Limits:   limits,
		Charset:  cfg.Charset,
		Router:   rt,
		Manifest: manifests,
		Logger:   logger,
		Timeout:  c.Timeout,
	})
	if err != nil {
		return err
	}

	var serverTLS *tlsConfigFiles
	if cfg.TLS.CertFile != "" {
		serverTLS = &tlsConfigFiles{cert: cfg.TLS.CertFile, key: cfg.TLS.KeyFile}
	}

	logger.Info("listening", "address", cfg.Listen, "tls", serverTLS != nil,
		"max_request_size", config.Size(limits.MaxRequestSize),
		"max_part_size", config.Size(limits.MaxPartSize))
	return serve(ctx, cfg.Listen, handler, serverTLS, logger)
}

func loadServerConfig(unifiedConfig cue.Value) (*config.ServerConfig, error) {
	v := unifiedConfig.LookupPath(cue.ParsePath("serve"))
	if !v.Exists() {
		return &config.ServerConfig{}, nil
	}
	return config.Decode[config.ServerConfig](v)
}

func (c *ServeCLI) applyOverrides(cfg *config.ServerConfig) {
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	if c.Dir != "" {
		cfg.Storage.Dir = c.Dir
	}
	if c.MaxRequestSize != 0 {
		cfg.Limits.MaxRequestSize = c.MaxRequestSize
	}
	if c.MaxPartSize != 0 {
		cfg.Limits.MaxPartSize = c.MaxPartSize
	}
}

// buildStore assembles the configured destinations. A single destination
// is used directly; several are put behind a failover pool.
func buildStore(ctx context.Context, cfg config.StorageConfig, tlsCfg tlsconfig.Config, logger *slog.Logger) (sink.Putter, error) {
	var stores []sink.Store
	if cfg.Dir != "" {
		stores = append(stores, sink.Store{
			Name:     "dir:" + cfg.Dir,
			Putter:   sink.Dir{Root: cfg.Dir},
			Priority: cfg.DirPriority,
		})
	}
	for _, b := range cfg.S3 {
		client, err := newS3Client(ctx, b.Region, b.Endpoint, b.PathStyle, tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("s3 bucket %s: %w", b.Bucket, err)
		}
		stores = append(stores, sink.Store{
			Name: "s3:" + b.Bucket,
			Putter: &sink.S3{
				Client:    client,
				Bucket:    b.Bucket,
				KeyPrefix: b.Prefix,
				Logger:    logger,
			},
			Priority: b.Priority,
		})
	}

	switch len(stores) {
	case 0:
		logger.Warn("no storage configured, file parts will be discarded")
		return nil, nil
	case 1:
		logger.Info("storage", "store", stores[0].Name)
		return stores[0].Putter, nil
	default:
		for _, s := range stores {
			logger.Info("storage", "store", s.Name, "priority", s.Priority)
		}
		return sink.NewPool(stores, sink.DefaultBreakerSettings()), nil
	}
}

func newS3Client(ctx context.Context, region, endpoint string, pathStyle bool, tlsCfg tlsconfig.Config) (*s3.Client, error) {
	if endpoint != "" {
		if err := tlsCfg.ValidateURL(endpoint); err != nil {
			return nil, err
		}
	}
	httpClient, err := tlsconfig.NewHTTPClient(tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient),
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	}), nil
}

// buildManifestLogger always logs manifests through slog and also archives
// them to S3 when a bucket is configured. The returned func drains the
// archiver.
func buildManifestLogger(ctx context.Context, cfg config.ManifestConfig, tlsCfg tlsconfig.Config, logger *slog.Logger) (uploadserver.ManifestLogger, func(), error) {
	slogger := uploadserver.NewSlogManifestLogger(logger)
	if cfg.Bucket == "" {
		return slogger, func() {}, nil
	}

	client, err := newS3Client(ctx, cfg.Region, "", false, tlsCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("manifest archive: %w", err)
	}
	archiver := uploadserver.NewS3ManifestArchiver(uploadserver.S3ArchiverConfig{
		Client:    client,
		Bucket:    cfg.Bucket,
		KeyPrefix: cfg.Prefix,
		Logger:    logger,
	})
	logger.Info("archiving manifests", "bucket", cfg.Bucket, "prefix", cfg.Prefix)

	shutdown := func() {
		if err := archiver.Shutdown(10 * time.Second); err != nil {
			logger.Error("manifest archiver shutdown", "error", err)
		}
	}
	return uploadserver.NewMultiManifestLogger(slogger, archiver), shutdown, nil
}

type tlsConfigFiles struct {
	cert, key string
}

// serve runs an HTTP server until ctx is cancelled. An addr starting with
// "unix://" listens on a Unix domain socket.
func serve(ctx context.Context, addr string, handler http.Handler, files *tlsConfigFiles, logger *slog.Logger) error {
	ln, err := listen(addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	if files != nil {
		srv.TLSConfig, err = tlsconfig.Server(files.cert, files.key)
		if err != nil {
			ln.Close()
			return err
		}
	}

	errc := make(chan error, 1)
	go func() {
		if files != nil {
			errc <- srv.ServeTLS(ln, "", "")
			return
		}
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func listen(addr string) (net.Listener, error) {
	if path, ok := strings.CutPrefix(addr, "unix://"); ok {
		return net.Listen("unix", path)
	}
	return net.Listen("tcp", addr)
}
