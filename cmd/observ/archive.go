package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	"github.com/vango-dev/observ/internal/config"
	"github.com/vango-dev/observ/internal/errors"
	"github.com/vango-dev/observ/pkg/inspect"
)

func archiveCmd(load loader) *cobra.Command {
	var (
		input    string
		bucket   string
		prefix   string
		region   string
		endpoint string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Upload a recorded flush trace to S3",
		Long: `Upload a JSON-lines flush trace (from /flushes.jsonl) to S3.

Credentials are read from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and
AWS_SESSION_TOKEN. Flags override the archive section of the config.

Examples:
  observ archive --input trace.jsonl --bucket my-traces
  observ archive -i trace.jsonl --endpoint http://localhost:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ac := cfg.Archive
			if bucket != "" {
				ac.Bucket = bucket
			}
			if prefix != "" {
				ac.Prefix = prefix
			}
			if region != "" {
				ac.Region = region
			}
			if endpoint != "" {
				ac.Endpoint = endpoint
				ac.PathStyle = true
			}
			if ac.Bucket == "" {
				return errors.New("R081").WithDetail("no bucket: pass --bucket or set archive.bucket")
			}

			f, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("open trace: %w", err)
			}
			defer f.Close()
			records, err := inspect.ReadJSONL(f)
			if err != nil {
				return fmt.Errorf("read trace %s: %w", input, err)
			}
			if len(records) == 0 {
				warn("%s holds no records", input)
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			archive := inspect.NewS3Archive(newS3Client(ac), ac.Bucket, ac.Prefix)
			key, err := archive.Upload(ctx, sessionOf(input, records), records)
			if err != nil {
				return errors.New("R081").WithDetailf("bucket %s", ac.Bucket).Wrap(err)
			}
			success("Uploaded %d records to s3://%s/%s", len(records), ac.Bucket, key)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "trace.jsonl", "Trace file to upload")
	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "S3 bucket")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Key prefix")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "S3-compatible endpoint URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Upload timeout")

	return cmd
}

// newS3Client builds a client from the archive settings and credentials in
// the environment.
func newS3Client(ac config.ArchiveConfig) *s3.Client {
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
		}
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}, nil
	})

	opts := s3.Options{
		Region:       ac.Region,
		Credentials:  aws.NewCredentialsCache(creds),
		UsePathStyle: ac.PathStyle,
	}
	if ac.Endpoint != "" {
		opts.BaseEndpoint = aws.String(ac.Endpoint)
	}
	return s3.New(opts)
}

// sessionOf names the uploaded trace after the recorder session, falling
// back to the file name.
func sessionOf(input string, records []inspect.Record) string {
	if s := records[0].Session; s != "" {
		return s
	}
	return strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
}
