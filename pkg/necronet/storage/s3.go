package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/necronet/pkg/necronet"
)

// ErrObjectNotFound is wrapped by a *necronet.StorageError when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Object is an open artifact object. The caller closes Body.
type Object struct {
	Key         string
	Size        int64
	ContentType string
	Body        io.ReadCloser
}

// Fetcher reads artifact objects from S3 or an S3-compatible store.
type Fetcher struct {
	client          *s3.Client
	presignClient   *s3.PresignClient
	bucket          string
	presignDuration time.Duration
	urls            *URLBuilder
}

// NewFetcher creates a Fetcher. Static credentials are used when both keys
// are set, otherwise the default AWS credential chain. With an endpoint,
// path-style addressing is used.
func NewFetcher(ctx context.Context, cfg Config) (*Fetcher, error) {
	cfg = cfg.withDefaults()

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return &Fetcher{
		client:          client,
		presignClient:   s3.NewPresignClient(client),
		bucket:          cfg.Bucket,
		presignDuration: cfg.PresignDuration,
		urls:            NewURLBuilder(cfg),
	}, nil
}

// Bucket returns the bucket objects are read from.
func (f *Fetcher) Bucket() string {
	return f.bucket
}

// PublicURL returns the unsigned address of storageKey.
func (f *Fetcher) PublicURL(storageKey string) string {
	return f.urls.PublicURL(storageKey)
}

// Open starts reading the object stored under key.
func (f *Fetcher) Open(ctx context.Context, key string) (*Object, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, f.storageError("get", key, err)
	}
	obj := &Object{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		Body:        out.Body,
	}
	if obj.ContentType == "" {
		obj.ContentType = "application/octet-stream"
	}
	return obj, nil
}

// Download copies the object stored under key into w using concurrent
// ranged reads, and returns the number of bytes written.
func (f *Fetcher) Download(ctx context.Context, key string, w io.WriterAt) (int64, error) {
	downloader := manager.NewDownloader(f.client)
	n, err := downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return n, f.storageError("download", key, err)
	}
	return n, nil
}

// PresignURL returns a time-limited GET URL for key.
func (f *Fetcher) PresignURL(ctx context.Context, key string) (string, error) {
	req, err := f.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(f.presignDuration))
	if err != nil {
		return "", f.storageError("presign", key, err)
	}
	return req.URL, nil
}

func (f *Fetcher) storageError(op, key string, err error) error {
	if isNotFound(err) {
		err = fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	}
	return &necronet.StorageError{Bucket: f.bucket, Key: key, Op: op, Err: err}
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey"
}
