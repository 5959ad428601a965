package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const ndjsonContentType = "application/x-ndjson"

// S3Options configures an S3Destination.
type S3Options struct {
	Bucket string
	Key    string
	Region string
	// Endpoint overrides the service URL and switches to path-style
	// addressing, for MinIO and similar.
	Endpoint string
}

// S3Destination uploads the channel export to a single object key.
type S3Destination struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Destination loads the default AWS credential chain and returns a
// destination for opts.
func NewS3Destination(ctx context.Context, opts S3Options) (*S3Destination, error) {
	if opts.Bucket == "" || opts.Key == "" {
		return nil, fmt.Errorf("s3 backup: bucket and key are required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})
	return &S3Destination{client: client, bucket: opts.Bucket, key: opts.Key}, nil
}

// Name identifies the destination in logs.
func (d *S3Destination) Name() string {
	return "s3://" + d.bucket + "/" + d.key
}

// Write replaces the object with data.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(d.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(ndjsonContentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", d.Name(), err)
	}
	return nil
}

// Fetch downloads the most recent export.
func (d *S3Destination) Fetch(ctx context.Context) ([]byte, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", d.Name(), err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
