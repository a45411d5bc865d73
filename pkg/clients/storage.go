package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/toolshelf/pkg/types"
)

const (
	bucketCreateRetries = 3
	bucketCreateDelay   = 500 * time.Millisecond
)

// StorageClient manages S3 operations for snapshot backups
type StorageClient struct {
	s3       *s3.Client
	uploader *manager.Uploader
	cfg      types.S3Config
}

func NewStorageClient(ctx context.Context, cfg types.S3Config) (*StorageClient, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(3),
		config.WithRetryMode(aws.RetryModeStandard),
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle || cfg.Endpoint != ""
	})

	log.Info().
		Str("region", cfg.Region).
		Str("endpoint", cfg.Endpoint).
		Str("bucket", cfg.Bucket).
		Msg("storage client initialized")

	return &StorageClient{
		s3:       s3Client,
		uploader: manager.NewUploader(s3Client),
		cfg:      cfg,
	}, nil
}

func (c *StorageClient) Bucket() string { return c.cfg.Bucket }

// EnsureBucket creates the configured bucket unless it already exists.
func (c *StorageClient) EnsureBucket(ctx context.Context) error {
	exists, err := c.BucketExists(ctx, c.cfg.Bucket)
	if err == nil && exists {
		return nil
	}
	return c.CreateBucket(ctx, c.cfg.Bucket)
}

func (c *StorageClient) CreateBucket(ctx context.Context, bucket string) error {
	var lastErr error
	for i := 0; i < bucketCreateRetries; i++ {
		_, err := c.s3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
		if err == nil {
			log.Info().Str("bucket", bucket).Msg("created S3 bucket")
			return nil
		}

		var exists *s3types.BucketAlreadyExists
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &exists) || errors.As(err, &owned) {
			return nil
		}

		lastErr = err
		time.Sleep(bucketCreateDelay)
	}
	return fmt.Errorf("create bucket %s: %w", bucket, lastErr)
}

func (c *StorageClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Upload writes data to key in the configured bucket through the multipart uploader.
func (c *StorageClient) Upload(ctx context.Context, key, contentType string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := c.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Download reads key from the configured bucket. A missing key returns (nil, nil).
func (c *StorageClient) Download(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func isNotFoundError(err error) bool {
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	var noSuchBucket *s3types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NotFound") || strings.Contains(errStr, "NoSuchKey")
}
