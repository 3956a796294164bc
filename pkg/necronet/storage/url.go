// Package storage locates artifact bytes in object storage. Public URLs are
// derived from the storage key alone; Fetcher reads objects and presigns
// URLs through the S3 API.
package storage

import (
	"net/url"
	"strings"
	"time"
)

// Defaults for the artifact bucket.
const (
	DefaultBucket          = "necronet-artifacts-linford"
	DefaultRegion          = "eu-north-1"
	DefaultPresignDuration = time.Hour
)

// Config locates the artifact bucket.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // S3-compatible endpoint; empty means AWS
	AccessKeyID     string
	SecretAccessKey string
	PresignDuration time.Duration
}

// DefaultConfig returns the production bucket settings.
func DefaultConfig() Config {
	return Config{
		Bucket:          DefaultBucket,
		Region:          DefaultRegion,
		PresignDuration: DefaultPresignDuration,
	}
}

func (c Config) withDefaults() Config {
	if c.Bucket == "" {
		c.Bucket = DefaultBucket
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.PresignDuration <= 0 {
		c.PresignDuration = DefaultPresignDuration
	}
	c.Endpoint = strings.TrimSuffix(c.Endpoint, "/")
	return c
}

// URLBuilder derives public object URLs.
type URLBuilder struct {
	bucket   string
	region   string
	endpoint string
}

// NewURLBuilder creates a builder; empty fields of cfg take the defaults.
func NewURLBuilder(cfg Config) *URLBuilder {
	cfg = cfg.withDefaults()
	return &URLBuilder{bucket: cfg.Bucket, region: cfg.Region, endpoint: cfg.Endpoint}
}

// PublicURL returns the address of the object stored under storageKey:
// https://{bucket}.s3.{region}.amazonaws.com/{key}, or {endpoint}/{bucket}/{key}
// when an endpoint is configured. Key segments are path-escaped.
func (b *URLBuilder) PublicURL(storageKey string) string {
	key := escapeKey(storageKey)
	if b.endpoint != "" {
		return b.endpoint + "/" + b.bucket + "/" + key
	}
	return "https://" + b.bucket + ".s3." + b.region + ".amazonaws.com/" + key
}

var defaultURLs = NewURLBuilder(DefaultConfig())

// PublicURL derives the URL of storageKey in the default bucket.
func PublicURL(storageKey string) string {
	return defaultURLs.PublicURL(storageKey)
}

func escapeKey(key string) string {
	segments := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
