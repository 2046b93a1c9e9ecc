package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

var ErrNotConfigured = errors.New("object storage is not configured")

// ObjectStore keeps uploaded media and hands out time limited locators for it.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignedGetURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	URLExpiry time.Duration
	Logger    *zerolog.Logger
}

type MinioStore struct {
	client    *minio.Client
	bucket    string
	urlExpiry time.Duration
	logger    *zerolog.Logger
}

// NewMinioStore connects to an S3 compatible endpoint and creates the bucket
// when it does not exist yet.
func NewMinioStore(ctx context.Context, config MinioConfig) (*MinioStore, error) {
	if strings.TrimSpace(config.Endpoint) == "" {
		return nil, ErrNotConfigured
	}
	if config.URLExpiry <= 0 {
		config.URLExpiry = time.Hour
	}
	if config.Logger == nil {
		nop := zerolog.Nop()
		config.Logger = &nop
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{Region: config.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		config.Logger.Info().Str("bucket", config.Bucket).Msg("created upload bucket")
	}

	return &MinioStore{
		client:    client,
		bucket:    config.Bucket,
		urlExpiry: config.URLExpiry,
		logger:    config.Logger,
	}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("bucket", s.bucket).Str("key", key).Msg("store object failed")
		return fmt.Errorf("store object: %w", err)
	}
	return nil
}

func (s *MinioStore) PresignedGetURL(ctx context.Context, key string) (string, error) {
	locator, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return locator.String(), nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		s.logger.Error().Err(err).Str("bucket", s.bucket).Str("key", key).Msg("delete object failed")
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// ObjectKey builds the key of an uploaded file: uploads/<user>/<id>/<name>.
func ObjectKey(userID, uploadID, filename string) string {
	name := strings.TrimSpace(filename)
	if slash := strings.LastIndexAny(name, `/\`); slash >= 0 {
		name = name[slash+1:]
	}
	if name == "" || name == "." || name == ".." {
		name = "upload"
	}
	return strings.Join([]string{"uploads", sanitizeSegment(userID), uploadID, name}, "/")
}

func sanitizeSegment(value string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(value))
	if cleaned == "" {
		return "anonymous"
	}
	return cleaned
}
