// Package objstore holds the media bucket behind a narrow interface: source
// uploads are read through time-limited URLs, transformed results are written
// back by key.
package objstore

import (
	"bytes"
	"context"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

const defaultURLTTL = 15 * time.Minute

// Store accesses the media bucket. Keys are opaque object names owned by the
// upload flow; the pipeline never parses them.
type Store interface {
	// Exists confirms an object is present under key.
	Exists(ctx context.Context, key string) error
	// Put writes data under key.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// SignedURL returns a time-limited URL granting read access to key.
	SignedURL(ctx context.Context, key string) (string, error)
}

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint  string
	bucket    string
	accessKey string
	secretKey string
	urlTTL    time.Duration
	useSSL    bool
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		useSSL: false,
		urlTTL: defaultURLTTL,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

type minioStore struct {
	cfg    *minioConfig
	client *minio.Client
}

func NewMinioStore(opts ...MinioOpts) (*minioStore, error) {
	cfg := newConfig(opts...)

	minioClient, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, err
	}

	return &minioStore{cfg: cfg, client: minioClient}, nil
}

func (s *minioStore) Exists(ctx context.Context, key string) error {
	if _, err := s.client.StatObject(ctx, s.cfg.bucket, key, minio.StatObjectOptions{}); err != nil {
		return errors.Wrapf(err, "failed to stat object %q", key)
	}
	return nil
}

func (s *minioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.cfg.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to store object %q", key)
	}
	return nil
}

func (s *minioStore) SignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.cfg.bucket, key, s.cfg.urlTTL, url.Values{})
	if err != nil {
		return "", errors.Wrapf(err, "failed to sign URL for object %q", key)
	}
	return u.String(), nil
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		c.bucket = bucket
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretKey = secretKey
	}
}

func WithURLTTL(ttl time.Duration) MinioOpts {
	return func(c *minioConfig) {
		c.urlTTL = ttl
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}
