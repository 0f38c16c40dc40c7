package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Stdin is the location that names standard input.
const Stdin = "-"

// Kind is how a location is read.
type Kind int

const (
	KindMmap     Kind = iota // local file, memory mapped
	KindSeekable             // seekable zstd, random access by frame
	KindS3                   // s3://bucket/key, ranged GETs
	KindGCS                  // gs://bucket/object, ranged reads
	KindAzure                // az://account/container/blob, ranged downloads
	KindStream               // stdin, gzip or plain zstd: sequential only
)

func (k Kind) String() string {
	return [...]string{"mmap", "seekable", "s3", "gcs", "azure", "stream"}[k]
}

// remotePrefixes maps URL schemes to object storage kinds.
var remotePrefixes = []struct {
	prefix string
	kind   Kind
}{
	{"s3://", KindS3},
	{"gs://", KindGCS},
	{"az://", KindAzure},
}

// IsRemote reports whether location names an object in S3, GCS or Azure.
// No sidecar can be written next to such a location.
func IsRemote(location string) bool {
	for _, r := range remotePrefixes {
		if strings.HasPrefix(location, r.prefix) {
			return true
		}
	}
	return false
}

// Random reports whether locations of this kind can be opened as a Source.
func (k Kind) Random() bool { return k != KindStream }

// KindOf classifies a location. Only ".zst" files are inspected on disk.
func KindOf(location string) (Kind, error) {
	for _, r := range remotePrefixes {
		if strings.HasPrefix(location, r.prefix) {
			return r.kind, nil
		}
	}
	switch {
	case location == Stdin:
		return KindStream, nil
	case strings.HasSuffix(location, ".gz"):
		return KindStream, nil
	case strings.HasSuffix(location, ".zst"):
		ok, err := IsSeekable(location)
		if err != nil {
			return 0, err
		}
		if ok {
			return KindSeekable, nil
		}
		return KindStream, nil
	}
	return KindMmap, nil
}

// OpenFile opens path for positioned reads without mapping it.
func OpenFile(path string) (*ReaderAt, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return NewReaderAt(f, info.Size()), nil
}

// Open opens a random-access location. Stream locations are rejected; use
// OpenStream for those.
func Open(ctx context.Context, location string) (File, error) {
	kind, err := KindOf(location)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindS3:
		bucket, key, ok := ParseS3URL(location)
		if !ok {
			return nil, fmt.Errorf("malformed s3 location %q", location)
		}
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return OpenS3(ctx, s3.NewFromConfig(cfg), bucket, key)
	case KindGCS:
		bucket, object, ok := ParseGCSURL(location)
		if !ok {
			return nil, fmt.Errorf("malformed gcs location %q", location)
		}
		return dialGCS(ctx, bucket, object)
	case KindAzure:
		account, container, name, ok := ParseAzureURL(location)
		if !ok {
			return nil, fmt.Errorf("malformed azure location %q", location)
		}
		client, err := dialAzure(account, container, name)
		if err != nil {
			return nil, err
		}
		return OpenAzure(ctx, client, account, container, name)
	case KindSeekable:
		return OpenSeekable(location)
	case KindMmap:
		return OpenMmap(location)
	}
	return nil, fmt.Errorf("%s is a %s location, not random access", location, kind)
}

// OpenStream opens a location for one sequential pass, decompressing gzip and
// zstd on the fly.
func OpenStream(location string) (io.ReadCloser, error) {
	if location == Stdin {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(filepath.Clean(location))
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(location, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case strings.HasSuffix(location, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open zstd: %w", err)
		}
		rc := zr.IOReadCloser()
		return &stackedCloser{Reader: rc, closers: []io.Closer{rc, f}}, nil
	}
	return f, nil
}

// stackedCloser closes a decompressor and then the file under it.
type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
