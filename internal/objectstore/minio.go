package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tphakala/datamover/internal/etl"
)

// MinioConfig configures an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string // optional key prefix inside the bucket
}

func (c MinioConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return configError("minio: endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return configError("minio: endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" || strings.TrimSpace(c.SecretKey) == "" {
		return configError("minio: access key and secret key are required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return configError("minio: bucket is required")
	}
	return nil
}

// MinioStore writes objects to an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	cfg    MinioConfig
}

// NewMinioStore connects and creates the bucket when it does not exist.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, configError("minio: %v", err)
	}

	s := &MinioStore{client: client, cfg: cfg}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureBucket creates the bucket if it is missing.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return storeError(classifyMinioError(err), TypeMinio, "bucket_exists", s.cfg.Bucket)
	}
	if exists {
		return nil
	}
	GetLogger().Info("creating archive bucket", logString("bucket", s.cfg.Bucket))
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		// lost a race with another creator
		if resp := minio.ToErrorResponse(err); resp.Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return storeError(classifyMinioError(err), TypeMinio, "make_bucket", s.cfg.Bucket)
	}
	return nil
}

func (s *MinioStore) Name() string { return TypeMinio }

func (s *MinioStore) Close() error { return nil }

// Put uploads body as one object.
func (s *MinioStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", configError("%v", err)
	}
	objectKey := key
	if s.cfg.Prefix != "" {
		objectKey = path.Join(s.cfg.Prefix, key)
	}

	info, err := s.client.PutObject(ctx, s.cfg.Bucket, objectKey, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", storeError(classifyMinioError(err), TypeMinio, "put", objectKey)
	}

	return fmt.Sprintf("s3://%s/%s", info.Bucket, info.Key), nil
}

// classifyMinioError turns provider throttling into etl.RateLimitedError.
func classifyMinioError(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.Code == "SlowDown",
		resp.Code == "RequestLimitExceeded":
		return &etl.RateLimitedError{Err: err}
	default:
		return err
	}
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
