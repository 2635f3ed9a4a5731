package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pithecene-io/hopper/iox"
)

// S3Config holds configuration for the S3-compatible store backend.
type S3Config struct {
	// Bucket is the bucket name (required).
	Bucket string
	// Region is the region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom endpoint URL for S3-compatible providers
	// (e.g. MinIO, Cloudflare R2). Empty uses the default AWS endpoint.
	Endpoint string
	// AccessKey and SecretKey are static credentials. When empty the AWS
	// SDK default chain is used (env vars, shared config, IAM role).
	AccessKey string
	SecretKey string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// S3Store is the real Store implementation backed by an S3-compatible
// object store.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates a Store backed by an S3-compatible endpoint.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, WrapInitError(fmt.Errorf("failed to load AWS config: %w", err), cfg.Bucket)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Store{
		client: s3.NewFromConfig(awsConfig, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// Ping verifies connectivity and credentials by listing buckets.
func (s *S3Store) Ping(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		return WrapInitError(err, s.bucket)
	}
	return nil
}

// EnsureBucket checks bucket existence and creates the bucket if absent.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		// A concurrent creator or an earlier run may have won the race.
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return WrapInitError(fmt.Errorf("create bucket %s: %w", s.bucket, err), s.bucket)
	}
	return nil
}

// SetVersioning applies the versioning mode to the bucket.
// Non-actionable modes return nil without a store call.
func (s *S3Store) SetVersioning(ctx context.Context, mode VersioningMode) error {
	if !mode.IsActionable() {
		return nil
	}

	status := s3types.BucketVersioningStatusEnabled
	if mode == VersioningSuspended {
		status = s3types.BucketVersioningStatusSuspended
	}

	_, err := s.client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(s.bucket),
		VersioningConfiguration: &s3types.VersioningConfiguration{
			Status: status,
		},
	})
	if err != nil {
		return WrapInitError(fmt.Errorf("set versioning %s: %w", mode, err), s.bucket)
	}
	return nil
}

// Put writes an object from in-memory bytes with a content type.
func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return WrapWriteError(err, key)
	}
	return nil
}

// Upload writes an object from a local file path.
func (s *S3Store) Upload(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return WrapReadError(err, path)
	}
	defer iox.DiscardClose(f)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return WrapWriteError(err, key)
	}
	return nil
}

// Close releases client resources.
func (s *S3Store) Close() error {
	// The SDK client holds no resources requiring explicit close.
	return nil
}

// Verify S3Store implements Store.
var _ Store = (*S3Store)(nil)
