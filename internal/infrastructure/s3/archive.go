package s3infra

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archive keeps raw webhook payloads for audit and replay.
type Archive interface {
	Put(ctx context.Context, key string, body []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewClient creates an S3 client. When endpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, endpointURL string) *s3.Client {
	var opts []func(*s3.Options)
	if endpointURL != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, opts...)
}

// Store is an S3-backed Archive.
type Store struct {
	client objectAPI
	bucket string
}

func NewStore(client *s3.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Put stores body under key as JSON and returns the object URI.
func (s *Store) Put(ctx context.Context, key string, body []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// WebhookKey lays archived payloads out by day so a bucket listing can be
// scoped to an incident window.
func WebhookKey(at time.Time, orderCode, id string) string {
	if orderCode == "" {
		orderCode = "unmatched"
	}
	return fmt.Sprintf("webhooks/%s/%s-%s.json", at.UTC().Format("2006/01/02"), orderCode, id)
}

type nopArchive struct{}

// Nop is used when no archive bucket is configured.
func Nop() Archive { return nopArchive{} }

func (nopArchive) Put(context.Context, string, []byte) (string, error) { return "", nil }

func (nopArchive) Get(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("webhook archive not configured")
}
