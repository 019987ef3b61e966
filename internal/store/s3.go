package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Config holds settings for an S3-compatible bucket.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	AccessKeySecret string
}

// S3BlobStore stores each key as one object.
type S3BlobStore struct {
	client *s3.S3
	bucket string
	prefix string
}

func NewS3BlobStore(cfg S3Config) (*S3BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is not configured")
	}
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.Endpoint != ""),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" && cfg.AccessKeySecret != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.AccessKeySecret, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &S3BlobStore{client: s3.New(sess), bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3BlobStore) objectKey(key string) string {
	if s.prefix == "" {
		return key + ".json"
	}
	return path.Join(s.prefix, key+".json")
}

func (s *S3BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return body, nil
}

func (s *S3BlobStore) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (s *S3BlobStore) Close() error { return nil }
