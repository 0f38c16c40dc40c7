//go:build unix

package source

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Mmap is a read-only memory mapping of a whole file. Slices alias the
// mapping and stay valid until Close.
type Mmap struct {
	file *os.File
	data []byte
}

// OpenMmap maps path read-only. An empty file is valid and yields a Source
// of length zero without a mapping.
func OpenMmap(path string) (File, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.Size() == 0 {
		return &Mmap{file: file}, nil
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	// Advisory only; scanning walks each chunk front to back.
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)

	return &Mmap{file: file, data: data}, nil
}

func (m *Mmap) Len() int64 { return int64(len(m.data)) }

func (m *Mmap) Slice(start, end int64) ([]byte, error) {
	if err := checkRange(start, end, int64(len(m.data))); err != nil {
		return nil, err
	}
	return m.data[start:end:end], nil
}

func (m *Mmap) Close() error {
	var err error
	if m.data != nil {
		if unmapErr := unix.Munmap(m.data); unmapErr != nil {
			err = unmapErr
		}
		m.data = nil
	}
	if m.file != nil {
		if closeErr := m.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		m.file = nil
	}
	return err
}
