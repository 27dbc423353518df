// Package objectstore loads attachments from S3-compatible object storage.
package objectstore

import (
	"context"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailer/mail"
)

var tracer = otel.Tracer("github.com/pure-golang/mailer/mail/objectstore")

var (
	ErrNotFound = errors.New("object not found")
	ErrTooLarge = errors.New("object exceeds attachment size limit")
)

// Source opens stored objects.
type Source interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Loader reads objects into message attachments.
type Loader struct {
	source  Source
	bucket  string
	maxSize int64
	logger  *slog.Logger
}

// Options contains options for creating a Loader.
type Options struct {
	Logger *slog.Logger
	Source Source // defaults to a MinIO client built from Config
}

// New creates a Loader. Without a Source it connects to the configured
// endpoint and verifies the credentials by listing buckets.
func New(cfg Config, options *Options) (*Loader, error) {
	if options == nil {
		options = new(Options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	logger := options.Logger.WithGroup("s3")

	source := options.Source
	if source == nil {
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Region: cfg.Region,
			Secure: cfg.Secure,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create S3 client")
		}

		timeout := time.Duration(cfg.Timeout) * time.Second
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := client.ListBuckets(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to connect to S3 storage")
		}
		logger.Info("S3 client initialized", "endpoint", cfg.Endpoint, "region", cfg.Region)

		source = &MinioSource{Client: client}
	}

	return &Loader{
		source:  source,
		bucket:  cfg.Bucket,
		maxSize: cfg.MaxSize,
		logger:  logger,
	}, nil
}

// Attach downloads bucket/key and stores it in msg under name. An empty
// bucket selects the configured one; an empty name uses the last key element.
func (l *Loader) Attach(ctx context.Context, msg *mail.Message, bucket, key, name string, inline bool) error {
	if msg == nil {
		return &mail.InvalidArgumentError{Arg: "message"}
	}
	if key == "" {
		return &mail.InvalidArgumentError{Arg: "key", Reason: "object key is empty"}
	}
	if bucket == "" {
		bucket = l.bucket
	}
	if name == "" {
		name = path.Base(key)
	}

	ctx, span := tracer.Start(ctx, "S3.Attach", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("bucket", bucket),
		attribute.String("key", key),
		attribute.Bool("inline", inline),
	)

	data, err := l.read(ctx, bucket, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	msg.Attach(name, data, inline)
	span.SetAttributes(attribute.Int("size", len(data)))
	span.SetStatus(codes.Ok, "")
	l.logger.Debug("attachment loaded", "bucket", bucket, "key", key, "name", name, "size", len(data))
	return nil
}

func (l *Loader) read(ctx context.Context, bucket, key string) ([]byte, error) {
	rc, err := l.source.Open(ctx, bucket, key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s/%s", bucket, key)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			l.logger.With("error", err).Error("failed to close object")
		}
	}()

	var r io.Reader = rc
	if l.maxSize > 0 {
		r = io.LimitReader(rc, l.maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s/%s", bucket, key)
	}
	if l.maxSize > 0 && int64(len(data)) > l.maxSize {
		return nil, errors.Wrapf(ErrTooLarge, "%s/%s", bucket, key)
	}
	return data, nil
}

// MinioSource implements Source with minio-go.
type MinioSource struct {
	Client *minio.Client
}

// Open returns the object stream. Missing buckets and keys map to ErrNotFound.
func (s *MinioSource) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.Client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, toError(err)
	}
	// GetObject is lazy; Stat surfaces missing objects before reading.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, toError(err)
	}
	return obj, nil
}

func toError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return errors.Wrap(ErrNotFound, err.Error())
	}
	return err
}
