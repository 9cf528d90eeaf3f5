package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
)

// Object describes a part being committed to a store.
type Object struct {
	Key         string
	ContentType string
	Size        int64
}

// Putter commits a complete object to a store. body is positioned at its
// start and holds exactly obj.Size bytes.
type Putter interface {
	Put(ctx context.Context, obj Object, body io.ReadSeeker) error
}

// Dir stores objects as files under a root directory.
type Dir struct {
	Root string
}

// Put copies body to Root/key, creating directories as needed. Keys may not
// escape Root.
func (d Dir) Put(ctx context.Context, obj Object, body io.ReadSeeker) error {
	path, err := d.path(obj.Key)
	if err != nil {
		return err
	}
	f, err := CreateFile(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f.f, body); err != nil {
		_ = f.Close()
		return fmt.Errorf("sink: write %s: %w", path, err)
	}
	return f.Close()
}

func (d Dir) path(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("sink: invalid object key %q", key)
	}
	return filepath.Join(d.Root, strings.TrimPrefix(clean, string(filepath.Separator))), nil
}

// S3API is the subset of the S3 client used by S3.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores objects in a bucket.
type S3 struct {
	Client    S3API
	Bucket    string
	KeyPrefix string       // optional, joined to keys with "/"
	Logger    *slog.Logger // optional
}

// Put uploads body with a single PutObject call.
func (s *S3) Put(ctx context.Context, obj Object, body io.ReadSeeker) error {
	key := obj.Key
	if s.KeyPrefix != "" {
		key = strings.TrimSuffix(s.KeyPrefix, "/") + "/" + key
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(obj.Size),
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if _, err := s.Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("sink: put s3://%s/%s: %w", s.Bucket, key, err)
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("stored part in S3",
		slog.String("bucket", s.Bucket),
		slog.String("key", key),
		slog.String("size", humanize.IBytes(uint64(obj.Size))))
	return nil
}

var _ Putter = Dir{}
var _ Putter = (*S3)(nil)
