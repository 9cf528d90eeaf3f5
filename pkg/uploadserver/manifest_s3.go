package uploadserver

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sniffpart/sniffpart/pkg/sink"
)

// S3ManifestArchiver writes manifests to S3 as JSON objects partitioned by
// date. Writes happen on a background goroutine; a full buffer drops
// manifests rather than slowing uploads down.
type S3ManifestArchiver struct {
	client    sink.S3API
	bucket    string
	keyPrefix string
	logger    *slog.Logger

	manifests chan *Manifest
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// S3ArchiverConfig configures an S3ManifestArchiver.
type S3ArchiverConfig struct {
	Client     sink.S3API
	Bucket     string
	KeyPrefix  string       // optional, e.g. "manifests"
	Logger     *slog.Logger // optional
	BufferSize int          // default 100
}

// NewS3ManifestArchiver starts an archiver. Call Shutdown to flush it.
func NewS3ManifestArchiver(cfg S3ArchiverConfig) *S3ManifestArchiver {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &S3ManifestArchiver{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		logger:    cfg.Logger,
		manifests: make(chan *Manifest, cfg.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// LogUpload queues m for archival without blocking.
func (a *S3ManifestArchiver) LogUpload(ctx context.Context, m *Manifest) error {
	select {
	case a.manifests <- m:
		return nil
	default:
		a.logger.Warn("manifest archiver buffer full, dropping manifest",
			slog.String("session", m.Session))
		return fmt.Errorf("manifest archiver buffer full")
	}
}

// Shutdown stops the archiver after writing queued manifests, or gives up
// after timeout.
func (a *S3ManifestArchiver) Shutdown(timeout time.Duration) error {
	a.cancel()
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

func (a *S3ManifestArchiver) writer() {
	defer a.wg.Done()
	for {
		select {
		case m := <-a.manifests:
			a.archive(m)
		case <-a.ctx.Done():
			for {
				select {
				case m := <-a.manifests:
					a.archive(m)
				default:
					return
				}
			}
		}
	}
}

func (a *S3ManifestArchiver) archive(m *Manifest) {
	if err := a.write(m); err != nil {
		a.logger.Error("failed to archive manifest",
			slog.String("session", m.Session),
			slog.String("error", err.Error()))
	}
}

func (a *S3ManifestArchiver) write(m *Manifest) error {
	body, err := m.toJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	key := a.key(m)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(append(body, '\n')),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to write to S3: %w", err)
	}
	a.logger.Debug("archived manifest",
		slog.String("bucket", a.bucket),
		slog.String("key", key))
	return nil
}

// key returns [prefix/]year=YYYY/month=MM/day=DD/<session>.json. Requests
// rejected before a session started get a fresh "rejected-<uuid>" name.
func (a *S3ManifestArchiver) key(m *Manifest) string {
	name := m.Session
	if name == "" {
		name = "rejected-" + uuid.NewString()
	}
	year, month, day := m.Timestamp.UTC().Date()
	key := fmt.Sprintf("year=%04d/month=%02d/day=%02d/%s.json", year, int(month), day, name)
	if a.keyPrefix != "" {
		key = a.keyPrefix + "/" + key
	}
	return key
}
