package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/example/go-news-bulletin/internal/config"
)

// S3Sink uploads to an S3-compatible bucket under Prefix.
type S3Sink struct {
	client   s3iface.S3API
	bucket   string
	prefix   string
	template string
}

// NewS3Sink builds a client from cfg. A custom endpoint switches to
// path-style addressing for S3-compatible stores; static keys are used when
// both are set, otherwise the SDK's default credential chain applies.
func NewS3Sink(cfg config.S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3: create session: %w", err)
	}

	return newS3Sink(s3.New(sess), cfg), nil
}

func newS3Sink(client s3iface.S3API, cfg config.S3Config) *S3Sink {
	return &S3Sink{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		template: cfg.Filename,
	}
}

func (s *S3Sink) Name() string { return "s3" }

func (s *S3Sink) key(art Artifact) string {
	name := FormatName(s.template, art.CreatedAt, art.Container)
	if s.prefix == "" {
		return name
	}

	return path.Join(s.prefix, name)
}

func (s *S3Sink) Publish(ctx context.Context, art Artifact) (string, error) {
	key := s.key(art)

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(art.Data),
		ContentLength: aws.Int64(int64(len(art.Data))),
		ContentType:   aws.String(art.ContentType),
		Metadata:      map[string]*string{"run-id": aws.String(art.RunID)},
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	return "s3://" + s.bucket + "/" + key, nil
}
