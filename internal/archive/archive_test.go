package archive

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	bucket, key, contentType string
	body                     string
	err                      error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	data, _ := io.ReadAll(in.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archiver_Archive(t *testing.T) {
	fake := &fakeS3{}
	a := newS3Archiver(fake, "sizes", "exports")
	a.now = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }

	key, err := a.Archive(context.Background(), "exported_sizes_20260309_120000.txt", strings.NewReader("A 1*1*1 a\n"))
	if err != nil {
		t.Fatal(err)
	}

	wantKey := "exports/2026/03/exported_sizes_20260309_120000.txt"
	if key != wantKey || fake.key != wantKey {
		t.Errorf("key = %q (uploaded %q), want %q", key, fake.key, wantKey)
	}
	if fake.bucket != "sizes" {
		t.Errorf("bucket = %q", fake.bucket)
	}
	if fake.body != "A 1*1*1 a\n" {
		t.Errorf("body = %q", fake.body)
	}
	if !strings.HasPrefix(fake.contentType, "text/plain") {
		t.Errorf("content type = %q", fake.contentType)
	}
}

func TestS3Archiver_NoPrefix(t *testing.T) {
	fake := &fakeS3{}
	a := newS3Archiver(fake, "b", "")
	a.now = func() time.Time { return time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC) }

	key, err := a.Archive(context.Background(), "f.txt", strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if key != "2025/12/f.txt" {
		t.Errorf("key = %q", key)
	}
}

func TestS3Archiver_Error(t *testing.T) {
	a := newS3Archiver(&fakeS3{err: errors.New("denied")}, "b", "p")
	if _, err := a.Archive(context.Background(), "f.txt", strings.NewReader("x")); err == nil {
		t.Error("expected upload error")
	}
}

func TestNewS3Archiver_RequiresBucket(t *testing.T) {
	if _, err := NewS3Archiver(context.Background(), Config{}); err == nil {
		t.Error("expected error without bucket")
	}
}

func TestNewS3Archiver_StaticCredentials(t *testing.T) {
	a, err := NewS3Archiver(context.Background(), Config{
		Bucket:          "sizes",
		Region:          "us-east-1",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.bucket != "sizes" {
		t.Errorf("bucket = %q", a.bucket)
	}
}
