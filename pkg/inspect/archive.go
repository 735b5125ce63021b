package inspect

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of *s3.Client the archive uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive stores flush traces in an S3 bucket as JSON lines.
//
// Example usage:
//
//	cfg := aws.Config{Region: "us-east-1", Credentials: creds}
//	archive := inspect.NewS3Archive(s3.NewFromConfig(cfg), "my-bucket", "traces/")
//	key, err := archive.Upload(ctx, rec.Session(), rec.Records())
type S3Archive struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Archive creates an archive writing below prefix in bucket.
func NewS3Archive(client PutObjectAPI, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key for a session's trace.
func (a *S3Archive) Key(session string) string {
	return path.Join(a.prefix, session+".jsonl")
}

// Upload writes records as one object and returns its key.
func (a *S3Archive) Upload(ctx context.Context, session string, records []Record) (string, error) {
	if a.bucket == "" {
		return "", fmt.Errorf("s3 archive: bucket not set")
	}
	var buf bytes.Buffer
	if err := WriteJSONL(&buf, records); err != nil {
		return "", err
	}

	key := a.Key(session)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"session":     session,
			"records":     fmt.Sprint(len(records)),
			"upload-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return key, nil
}

// UploadRecorder uploads everything rec currently holds under its session.
func (a *S3Archive) UploadRecorder(ctx context.Context, rec *Recorder) (string, error) {
	return a.Upload(ctx, rec.Session(), rec.Records())
}
