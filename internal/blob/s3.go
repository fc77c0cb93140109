package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Store implements Store on an S3 (or S3-compatible) bucket.
// Conditional writes map to If-Match / If-None-Match on PutObject.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store loads the default AWS credential chain. endpoint is optional and
// switches to path-style addressing for S3-compatible stores.
func NewS3Store(ctx context.Context, bucket, region, endpoint string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 driver requires a bucket")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, bucket: bucket}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (*Object, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, key, err)
	}
	return &Object{Data: data, ETag: aws.ToString(resp.ETag)}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, opts PutOptions) (string, error) {
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPrivate,
	}
	if opts.IfMatch != "" {
		input.IfMatch = aws.String(opts.IfMatch)
	}
	if opts.IfNoneMatch {
		input.IfNoneMatch = aws.String("*")
	}
	resp, err := s.client.PutObject(ctx, input)
	if err != nil {
		return "", mapS3Error(err)
	}
	return aws.ToString(resp.ETag), nil
}

func mapS3Error(err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return ErrNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return ErrNotFound
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%w: %s", ErrPreconditionFailed, apiErr.ErrorMessage())
		}
	}
	return err
}
