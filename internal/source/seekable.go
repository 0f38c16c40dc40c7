package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go/pkg"
	"github.com/klauspost/compress/zstd"
)

// seekableFrameSize is the uncompressed size of each independently
// compressed frame. Random access decompresses at most the frames covering
// the requested range, so smaller frames mean less read amplification per
// Slice at the cost of compression ratio.
const seekableFrameSize = 1 << 20

// seekableMagic ends every seekable zstd file (seek table footer).
const seekableMagic = 0x8F92EAB1

// zstdDec is concurrent-safe and shared by every Seekable source.
var zstdDec *zstd.Decoder

func init() {
	var err error
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("zstd: init decoder: " + err.Error())
	}
}

// Seekable is a Source over a seekable zstd file: the length and offsets are
// those of the decompressed content.
type Seekable struct {
	mu   sync.Mutex
	file *os.File
	r    seekable.Reader
	size int64
}

// OpenSeekable opens a seekable zstd file written by CompressSeekable (or any
// tool producing the seekable format).
func OpenSeekable(path string) (*Seekable, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	r, err := seekable.NewReader(f, zstdDec)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open seekable zstd: %w", err)
	}
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		_ = r.Close()
		_ = f.Close()
		return nil, fmt.Errorf("seek to end: %w", err)
	}
	return &Seekable{file: f, r: r, size: size}, nil
}

func (s *Seekable) Len() int64 { return s.size }

// Slice decompresses the frames covering [start, end). Calls are serialized
// because the frame reader shares one underlying file cursor.
func (s *Seekable) Slice(start, end int64) ([]byte, error) {
	if err := checkRange(start, end, s.size); err != nil {
		return nil, err
	}
	buf := make([]byte, end-start)
	if len(buf) == 0 {
		return buf, nil
	}

	s.mu.Lock()
	n, err := s.r.ReadAt(buf, start)
	s.mu.Unlock()

	if n == len(buf) {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("read [%d,%d): %w", start, end, err)
}

func (s *Seekable) Close() error {
	err := s.r.Close()
	if closeErr := s.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// IsSeekable reports whether path ends with a seekable zstd seek table.
// A plain zstd stream returns false and has to be indexed as a stream.
func IsSeekable(path string) (bool, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() < 4 {
		return false, nil
	}
	var tail [4]byte
	if _, err := f.ReadAt(tail[:], info.Size()-4); err != nil {
		return false, err
	}
	return binary.LittleEndian.Uint32(tail[:]) == seekableMagic, nil
}

// CompressSeekable streams src into dst as seekable zstd, one frame per
// seekableFrameSize bytes, writing through a temp file renamed into place.
func CompressSeekable(src, dst string, level zstd.EncoderLevel) (err error) {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	defer func() { _ = enc.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".compress-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	sw, err := seekable.NewWriter(tmp, enc)
	if err != nil {
		return err
	}
	buf := make([]byte, seekableFrameSize)
	for {
		n, rerr := io.ReadFull(in, buf)
		if n > 0 {
			if _, err = sw.Write(buf[:n]); err != nil {
				return err
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	if err = sw.Close(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, dst)
}
