// Package source exposes files as read-only, random-access byte ranges.
//
// A Source is shared by every scan worker of an indexing run, so all
// implementations are safe for concurrent Slice calls. Slice never reads
// more than the requested range; the mmap and in-memory sources do not copy
// at all.
package source

import (
	"errors"
	"fmt"
	"io"
)

var ErrOutOfRange = errors.New("byte range out of bounds")

// Source is a read-only, random-access view of a file.
type Source interface {
	// Len returns the total length of the file in bytes.
	Len() int64
	// Slice returns the bytes in [start, end). Callers must not modify
	// the returned slice.
	Slice(start, end int64) ([]byte, error)
}

// File is a Source that holds resources until closed.
type File interface {
	Source
	io.Closer
}

func checkRange(start, end, length int64) error {
	if start < 0 || start > end || end > length {
		return fmt.Errorf("%w: [%d,%d) of %d", ErrOutOfRange, start, end, length)
	}
	return nil
}

// Bytes is an in-memory Source.
type Bytes []byte

func (b Bytes) Len() int64 { return int64(len(b)) }

func (b Bytes) Slice(start, end int64) ([]byte, error) {
	if err := checkRange(start, end, int64(len(b))); err != nil {
		return nil, err
	}
	return b[start:end:end], nil
}

func (Bytes) Close() error { return nil }

// ReaderAt adapts an io.ReaderAt of known size. Each Slice allocates exactly
// end-start bytes.
type ReaderAt struct {
	r      io.ReaderAt
	size   int64
	closer io.Closer
}

// NewReaderAt wraps r, which must hold size bytes. If r is an io.Closer it is
// closed by Close.
func NewReaderAt(r io.ReaderAt, size int64) *ReaderAt {
	ra := &ReaderAt{r: r, size: size}
	if c, ok := r.(io.Closer); ok {
		ra.closer = c
	}
	return ra
}

func (ra *ReaderAt) Len() int64 { return ra.size }

func (ra *ReaderAt) Slice(start, end int64) ([]byte, error) {
	if err := checkRange(start, end, ra.size); err != nil {
		return nil, err
	}
	buf := make([]byte, end-start)
	if len(buf) == 0 {
		return buf, nil
	}
	n, err := ra.r.ReadAt(buf, start)
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("read [%d,%d): %w", start, end, err)
}

func (ra *ReaderAt) Close() error {
	if ra.closer == nil {
		return nil
	}
	return ra.closer.Close()
}
