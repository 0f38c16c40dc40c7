package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used for ranged reads.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 is a Source backed by ranged GETs against one object. Every Slice is
// one request, so planners and scanners should ask for large ranges.
type S3 struct {
	// ctx bounds every ranged read; Source.Slice carries no context.
	ctx    context.Context
	client S3API
	bucket string
	key    string
	size   int64
}

// OpenS3 resolves the object's size with a HEAD request.
func OpenS3(ctx context.Context, client S3API, bucket, key string) (*S3, error) {
	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
	}
	return &S3{
		ctx:    ctx,
		client: client,
		bucket: bucket,
		key:    key,
		size:   aws.ToInt64(out.ContentLength),
	}, nil
}

func (o *S3) Len() int64 { return o.size }

func (o *S3) Slice(start, end int64) ([]byte, error) {
	if err := checkRange(start, end, o.size); err != nil {
		return nil, err
	}
	if start == end {
		return []byte{}, nil
	}
	out, err := o.client.GetObject(o.ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end-1)),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s [%d,%d): %w", o.bucket, o.key, start, end, err)
	}
	defer func() { _ = out.Body.Close() }()

	buf := make([]byte, end-start)
	if _, err := io.ReadFull(out.Body, buf); err != nil {
		return nil, fmt.Errorf("read s3://%s/%s [%d,%d): %w", o.bucket, o.key, start, end, err)
	}
	return buf, nil
}

func (o *S3) Close() error { return nil }

// ParseS3URL splits "s3://bucket/key" into its parts.
func ParseS3URL(location string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(location, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
