package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// AWSConfig selects a sync server backed by an S3 bucket (AWS or any
// S3-compatible store such as MinIO). Credentials come from the default
// AWS chain.
type AWSConfig struct {
	// Bucket must already exist.
	Bucket string

	// Region defaults to us-east-1.
	Region string

	// Endpoint is optional; set it for S3-compatible stores.
	Endpoint string

	// PathStyle forces path-style addressing (needed by most
	// S3-compatible stores).
	PathStyle bool

	// AccessKeyID and SecretAccessKey, when both set, override the
	// default credential chain.
	AccessKeyID     string
	SecretAccessKey string

	// EncryptionSecret seals every object end to end.
	EncryptionSecret string
}

// NewServer implements Config.
func (c AWSConfig) NewServer(ctx context.Context, logger *log.Logger) (Server, error) {
	if c.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	region := c.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.PathStyle {
			o.UsePathStyle = true
		}
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})
	store := &s3Store{client: client, bucket: c.Bucket}
	return newCloudServer(store, c.EncryptionSecret, logger)
}

type s3Store struct {
	client *s3.Client
	bucket string
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func (s *s3Store) get(ctx context.Context, name string) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &name})
	if err != nil {
		if isS3NotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read object %s: %w", name, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read object %s: %w", name, err)
	}
	return data, true, nil
}

func (s *s3Store) put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &name,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to write object %s: %w", name, err)
	}
	return nil
}

func (s *s3Store) putIfAbsent(ctx context.Context, name string, data []byte) (bool, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &name,
		Body:        bytes.NewReader(data),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return false, nil
		}
		return false, fmt.Errorf("failed to write object %s: %w", name, err)
	}
	return true, nil
}

func (s *s3Store) close() error { return nil }
