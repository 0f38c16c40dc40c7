package format

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression is the outer encoding of an index file.
type Compression string

const (
	CompressNone   Compression = "none"
	CompressZstd   Compression = "zstd"
	CompressBrotli Compression = "br"
	CompressGzip   Compression = "gzip"
)

// brotliQuality trades speed for size on index files, which compress well.
const brotliQuality = 6

var ErrUnsupported = errors.New("unsupported format combination")

// ParseCompression accepts the names used on the command line.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(s)); c {
	case "", CompressNone:
		return CompressNone, nil
	case CompressZstd, CompressBrotli, CompressGzip:
		return c, nil
	case "zst":
		return CompressZstd, nil
	case "brotli":
		return CompressBrotli, nil
	case "gz":
		return CompressGzip, nil
	}
	return "", fmt.Errorf("%w: compression %q", ErrUnsupported, s)
}

// Ext is the file name suffix for c.
func (c Compression) Ext() string {
	switch c {
	case CompressZstd:
		return ".zst"
	case CompressBrotli:
		return ".br"
	case CompressGzip:
		return ".gz"
	}
	return ""
}

// CompressionOf guesses the compression of a file from its name.
func CompressionOf(path string) Compression {
	for _, c := range []Compression{CompressZstd, CompressBrotli, CompressGzip} {
		if strings.HasSuffix(path, c.Ext()) {
			return c
		}
	}
	return CompressNone
}

// NewWriter wraps w so that everything written is compressed with c. Close
// flushes the compressor but does not close w.
func NewWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressNone, "":
		return nopWriteCloser{w}, nil
	case CompressZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case CompressBrotli:
		return brotli.NewWriterLevel(w, brotliQuality), nil
	case CompressGzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	}
	return nil, fmt.Errorf("%w: compression %q", ErrUnsupported, c)
}

// NewReader undoes NewWriter.
func NewReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressNone, "":
		return io.NopCloser(r), nil
	case CompressZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open zstd: %w", err)
		}
		return dec.IOReadCloser(), nil
	case CompressBrotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	case CompressGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		return zr, nil
	}
	return nil, fmt.Errorf("%w: compression %q", ErrUnsupported, c)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
