package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSObject is the part of a GCS object handle used for ranged reads.
type GCSObject interface {
	Attrs(ctx context.Context) (*storage.ObjectAttrs, error)
	NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// gcsHandle adapts *storage.ObjectHandle to GCSObject.
type gcsHandle struct {
	*storage.ObjectHandle
}

func (h gcsHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	r, err := h.ObjectHandle.NewRangeReader(ctx, offset, length)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GCS is a Source backed by ranged reads of one Cloud Storage object. Like
// S3, every Slice is one request.
type GCS struct {
	ctx    context.Context
	obj    GCSObject
	name   string
	size   int64
	closer io.Closer
}

// OpenGCS resolves the object's size from its attributes.
func OpenGCS(ctx context.Context, obj GCSObject, bucket, object string) (*GCS, error) {
	name := "gs://" + bucket + "/" + object
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("attrs %s: %w", name, err)
	}
	return &GCS{ctx: ctx, obj: obj, name: name, size: attrs.Size}, nil
}

// dialGCS opens gs://bucket/object with application default credentials.
// The client is closed with the returned source.
func dialGCS(ctx context.Context, bucket, object string) (*GCS, error) {
	client, err := storage.NewClient(ctx, option.WithScopes(storage.ScopeReadOnly))
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	src, err := OpenGCS(ctx, gcsHandle{client.Bucket(bucket).Object(object)}, bucket, object)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	src.closer = client
	return src, nil
}

func (o *GCS) Len() int64 { return o.size }

func (o *GCS) Slice(start, end int64) ([]byte, error) {
	if err := checkRange(start, end, o.size); err != nil {
		return nil, err
	}
	if start == end {
		return []byte{}, nil
	}
	r, err := o.obj.NewRangeReader(o.ctx, start, end-start)
	if err != nil {
		return nil, fmt.Errorf("get %s [%d,%d): %w", o.name, start, end, err)
	}
	defer func() { _ = r.Close() }()

	buf := make([]byte, end-start)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read %s [%d,%d): %w", o.name, start, end, err)
	}
	return buf, nil
}

func (o *GCS) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

// ParseGCSURL splits "gs://bucket/object" into its parts.
func ParseGCSURL(location string) (bucket, object string, ok bool) {
	rest, found := strings.CutPrefix(location, "gs://")
	if !found {
		return "", "", false
	}
	bucket, object, found = strings.Cut(rest, "/")
	if !found || bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}
