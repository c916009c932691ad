package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	apperrors "github.com/pixelserve/pixelserve/errors"
)

// S3Config holds S3 connection parameters.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional: MinIO, localstack, etc.
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3Client is the minimal S3 surface used by the adapter, so tests can
// inject a double instead of a live client.
type S3Client interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	HeadObject(ctx context.Context, bucket, key string) (bool, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// S3 is the StorageBackend backed by AWS S3 (or S3-compatible stores).
type S3 struct {
	client S3Client
	bucket string
}

// NewS3 creates an S3 backend.  client must not be nil.
func NewS3(client S3Client, bucket string) (*S3, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 storage: client must not be nil")
	}
	return &S3{client: client, bucket: bucket}, nil
}

func (s *S3) Put(ctx context.Context, key string, data []byte) error {
	if err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data)); err != nil {
		return apperrors.Transient("s3.put", err)
	}
	return nil
}

func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.client.GetObject(ctx, s.bucket, key)
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, apperrors.New(apperrors.KindNotFound, "s3.get", apperrors.ErrNotFound)
		}
		return nil, apperrors.Transient("s3.get", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperrors.Transient("s3.get", err)
	}
	return data, nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.HeadObject(ctx, s.bucket, key)
	if err != nil {
		return false, apperrors.Transient("s3.exists", err)
	}
	return ok, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	if err := s.client.DeleteObject(ctx, s.bucket, key); err != nil {
		return apperrors.Transient("s3.delete", err)
	}
	return nil
}

// AWSClient implements S3Client with aws-sdk-go-v2.
type AWSClient struct {
	api *awss3.Client
}

// NewAWSClient builds a live S3 client from cfg.  Static credentials are
// used when provided; otherwise the default AWS credential chain applies.
func NewAWSClient(ctx context.Context, cfg S3Config) (*AWSClient, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 storage: load aws config: %w", err)
	}

	api := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &AWSClient{api: api}, nil
}

func (c *AWSClient) PutObject(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := c.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	return err
}

func (c *AWSClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := c.api.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (c *AWSClient) HeadObject(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.api.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *AWSClient) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.api.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}
