package publish

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/example/go-news-bulletin/internal/config"
)

type fakeS3 struct {
	s3iface.S3API
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3SinkPublish(t *testing.T) {
	fake := &fakeS3{}
	sink := newS3Sink(fake, config.S3Config{Bucket: "radio", Prefix: "/news/", Filename: "news_%Y%%m%%d%.%EXT%"})

	loc, err := sink.Publish(context.Background(), Artifact{
		RunID:       "run-1",
		Data:        []byte("mp3 bytes"),
		Container:   "mp3",
		ContentType: "audio/mpeg",
		CreatedAt:   stamp,
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if loc != "s3://radio/news/news_20260307.mp3" {
		t.Errorf("location = %q", loc)
	}
	if aws.StringValue(fake.input.Key) != "news/news_20260307.mp3" {
		t.Errorf("key = %q", aws.StringValue(fake.input.Key))
	}
	if aws.StringValue(fake.input.ContentType) != "audio/mpeg" {
		t.Errorf("content type = %q", aws.StringValue(fake.input.ContentType))
	}
	if string(fake.body) != "mp3 bytes" {
		t.Errorf("body = %q", fake.body)
	}
}

func TestS3SinkError(t *testing.T) {
	cause := errors.New("access denied")
	sink := newS3Sink(&fakeS3{err: cause}, config.S3Config{Bucket: "radio", Filename: "n.%EXT%"})

	if _, err := sink.Publish(context.Background(), Artifact{Container: "mp3", CreatedAt: stamp}); !errors.Is(err, cause) {
		t.Fatalf("err = %v; want wrapped cause", err)
	}
}

func TestNewS3SinkRequiresBucket(t *testing.T) {
	if _, err := NewS3Sink(config.S3Config{Region: "us-east-1"}); err == nil {
		t.Fatal("expected error without a bucket")
	}
}
