// Package config assembles client settings from defaults, the environment
// and programmatic options.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/necronet/pkg/necronet/client"
	"github.com/tendant/necronet/pkg/necronet/poller"
	"github.com/tendant/necronet/pkg/necronet/retry"
	"github.com/tendant/necronet/pkg/necronet/storage"
)

// ClientConfig holds everything needed to talk to the artifact service and
// its bucket.
type ClientConfig struct {
	APIURL         string        `env:"NECRONET_API_URL" env-default:"http://localhost:8000"`
	UploadTimeout  time.Duration `env:"NECRONET_UPLOAD_TIMEOUT" env-default:"120s"`
	RequestTimeout time.Duration `env:"NECRONET_REQUEST_TIMEOUT" env-default:"30s"`
	PageSize       int           `env:"NECRONET_PAGE_SIZE" env-default:"20"`
	Poll           PollConfig
	S3             S3Config
}

// PollConfig is the status polling schedule.
type PollConfig struct {
	InitialInterval time.Duration `env:"NECRONET_POLL_INITIAL_INTERVAL" env-default:"2s"`
	MaxInterval     time.Duration `env:"NECRONET_POLL_MAX_INTERVAL" env-default:"10s"`
	Multiplier      float64       `env:"NECRONET_POLL_MULTIPLIER" env-default:"1.5"`
	MaxAttempts     int           `env:"NECRONET_POLL_MAX_ATTEMPTS" env-default:"60"`
}

// S3Config locates the artifact bucket.
type S3Config struct {
	Bucket          string        `env:"AWS_S3_BUCKET" env-default:"necronet-artifacts-linford"`
	Region          string        `env:"AWS_S3_REGION" env-default:"eu-north-1"`
	Endpoint        string        `env:"AWS_S3_ENDPOINT"`
	AccessKeyID     string        `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string        `env:"AWS_SECRET_ACCESS_KEY"`
	PresignDuration time.Duration `env:"AWS_S3_PRESIGN_DURATION" env-default:"1h"`
}

// Option modifies a ClientConfig during Load.
type Option func(*ClientConfig) error

// Load applies opts on top of the defaults and validates the result.
func Load(opts ...Option) (*ClientConfig, error) {
	cfg := defaults()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func defaults() ClientConfig {
	policy := retry.DefaultPolicy()
	s3 := storage.DefaultConfig()
	return ClientConfig{
		APIURL:         client.DefaultBaseURL,
		UploadTimeout:  client.DefaultUploadTimeout,
		RequestTimeout: client.DefaultRequestTimeout,
		PageSize:       client.DefaultPageSize,
		Poll: PollConfig{
			InitialInterval: policy.InitialInterval,
			MaxInterval:     policy.MaxInterval,
			Multiplier:      policy.Multiplier,
			MaxAttempts:     policy.MaxAttempts,
		},
		S3: S3Config{
			Bucket:          s3.Bucket,
			Region:          s3.Region,
			PresignDuration: s3.PresignDuration,
		},
	}
}

// WithEnv reads the NECRONET_* and AWS_S3_* variables. Unset variables
// take their defaults, so apply WithEnv before other options.
func WithEnv() Option {
	return func(c *ClientConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		return nil
	}
}

// WithBaseURL sets the service address.
func WithBaseURL(u string) Option {
	return func(c *ClientConfig) error {
		if u == "" {
			return errors.New("base URL cannot be empty")
		}
		c.APIURL = u
		return nil
	}
}

// WithTimeouts sets the upload and per-request timeouts. Zero disables one.
func WithTimeouts(upload, request time.Duration) Option {
	return func(c *ClientConfig) error {
		c.UploadTimeout = upload
		c.RequestTimeout = request
		return nil
	}
}

// WithPollPolicy replaces the polling schedule.
func WithPollPolicy(p retry.Policy) Option {
	return func(c *ClientConfig) error {
		c.Poll = PollConfig{
			InitialInterval: p.InitialInterval,
			MaxInterval:     p.MaxInterval,
			Multiplier:      p.Multiplier,
			MaxAttempts:     p.MaxAttempts,
		}
		return nil
	}
}

// WithMaxAttempts sets the polling attempt budget.
func WithMaxAttempts(n int) Option {
	return func(c *ClientConfig) error {
		c.Poll.MaxAttempts = n
		return nil
	}
}

// WithPageSize sets the list page size.
func WithPageSize(n int) Option {
	return func(c *ClientConfig) error {
		c.PageSize = n
		return nil
	}
}

// WithS3 replaces the bucket settings.
func WithS3(s S3Config) Option {
	return func(c *ClientConfig) error {
		c.S3 = s
		return nil
	}
}

// Validate checks the configuration for consistency.
func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url must be http or https, got %q", c.APIURL)
	}
	if u.Host == "" {
		return fmt.Errorf("api url has no host: %q", c.APIURL)
	}
	if c.UploadTimeout < 0 || c.RequestTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}
	if c.PageSize < 1 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return err
	}
	if c.S3.Endpoint != "" {
		if _, err := url.ParseRequestURI(c.S3.Endpoint); err != nil {
			return fmt.Errorf("s3 endpoint: %w", err)
		}
	}
	return nil
}

// ClientOptions returns the client options matching c.
func (c *ClientConfig) ClientOptions() []client.Option {
	return []client.Option{
		client.WithBaseURL(c.APIURL),
		client.WithUploadTimeout(c.UploadTimeout),
		client.WithRequestTimeout(c.RequestTimeout),
	}
}

// RetryPolicy returns the polling schedule.
func (c *ClientConfig) RetryPolicy() retry.Policy {
	return retry.Policy{
		InitialInterval: c.Poll.InitialInterval,
		Multiplier:      c.Poll.Multiplier,
		MaxInterval:     c.Poll.MaxInterval,
		MaxAttempts:     c.Poll.MaxAttempts,
	}
}

// PollerOptions returns the poller options matching c.
func (c *ClientConfig) PollerOptions() []poller.Option {
	return []poller.Option{poller.WithPolicy(c.RetryPolicy())}
}

// StorageConfig returns the bucket settings for the storage package.
func (c *ClientConfig) StorageConfig() storage.Config {
	return storage.Config{
		Bucket:          c.S3.Bucket,
		Region:          c.S3.Region,
		Endpoint:        c.S3.Endpoint,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		PresignDuration: c.S3.PresignDuration,
	}
}
