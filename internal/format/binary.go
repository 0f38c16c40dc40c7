package format

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fastaidx/internal/index"
	"fastaidx/internal/scan"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Binary layout, little endian:
//
//	header   (4 bytes, type 'x')
//	id       (16 bytes, uuid v7)
//	length   (8 bytes, indexed file length)
//	count    (4 bytes, entry count)
//	marker   (1 byte, the header marker the index was built with)
//	entries  (count * 32 bytes: header start, header end, payload start, payload end)
//
// With FlagCompressed the entries are one zstd frame instead.
const (
	binaryVersion = 0x02

	idSize     = 16
	lengthSize = 8
	countSize  = 4
	markerSize = 1
	offsetSize = 8

	binaryHeaderSize = HeaderSize + idSize + lengthSize + countSize + markerSize
	entrySize        = 4 * offsetSize

	maxEntries = 1<<32 - 1
)

var (
	ErrIndexTooSmall     = errors.New("index file too small")
	ErrIncomplete        = errors.New("index file incomplete")
	ErrEntrySizeMismatch = errors.New("index entry size mismatch")
)

var zstdEnc *zstd.Encoder

func init() {
	var err error
	zstdEnc, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("zstd: init encoder: " + err.Error())
	}
}

// Document is an index together with its identity and the marker byte it
// was built with. Marker is zero when the encoding does not carry it.
type Document struct {
	ID     uuid.UUID
	Marker byte
	Index  index.Index
}

// NewDocument stamps idx, built with marker, with a fresh time-ordered id.
// A zero marker means '>'.
func NewDocument(idx index.Index, marker byte) Document {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Document{ID: id, Marker: cmp.Or(marker, scan.DefaultMarker), Index: idx}
}

// EncodeBinary serializes doc. With compress the entry table is zstd
// compressed.
func EncodeBinary(doc Document, compress bool) ([]byte, error) {
	entries := doc.Index.Entries
	if int64(len(entries)) > maxEntries {
		return nil, fmt.Errorf("%w: %d entries do not fit the count field", ErrEntrySizeMismatch, len(entries))
	}
	body := make([]byte, len(entries)*entrySize)
	cursor := 0
	for _, e := range entries {
		for _, v := range [4]int64{e.HeaderStart, e.HeaderEnd, e.PayloadStart, e.PayloadEnd} {
			binary.LittleEndian.PutUint64(body[cursor:cursor+offsetSize], uint64(v))
			cursor += offsetSize
		}
	}

	flags := byte(FlagComplete)
	if compress {
		flags |= FlagCompressed
		body = zstdEnc.EncodeAll(body, nil)
	}

	buf := make([]byte, binaryHeaderSize, binaryHeaderSize+len(body))
	cursor = Header{Type: TypeIndex, Version: binaryVersion, Flags: flags}.EncodeInto(buf)
	copy(buf[cursor:cursor+idSize], doc.ID[:])
	cursor += idSize
	binary.LittleEndian.PutUint64(buf[cursor:cursor+lengthSize], uint64(doc.Index.Length))
	cursor += lengthSize
	binary.LittleEndian.PutUint32(buf[cursor:cursor+countSize], uint32(len(entries)))
	cursor += countSize
	buf[cursor] = cmp.Or(doc.Marker, scan.DefaultMarker)
	return append(buf, body...), nil
}

// DecodeBinary parses an index file. It checks the layout only; use
// index.Index.Validate for the offset invariants.
func DecodeBinary(data []byte) (Document, error) {
	if len(data) < binaryHeaderSize {
		return Document{}, ErrIndexTooSmall
	}
	h, err := DecodeAndValidate(data, TypeIndex, binaryVersion)
	if err != nil {
		return Document{}, err
	}
	if !h.Has(FlagComplete) {
		return Document{}, ErrIncomplete
	}
	cursor := HeaderSize

	var doc Document
	copy(doc.ID[:], data[cursor:cursor+idSize])
	cursor += idSize
	doc.Index.Length = int64(binary.LittleEndian.Uint64(data[cursor : cursor+lengthSize]))
	cursor += lengthSize
	count := int64(binary.LittleEndian.Uint32(data[cursor : cursor+countSize]))
	cursor += countSize
	doc.Marker = data[cursor]
	cursor += markerSize
	// Every record starts at its own marker byte, so a count above the
	// length cannot be real.
	if doc.Index.Length < 0 || count > doc.Index.Length {
		return Document{}, fmt.Errorf("%w: length %d, %d entries", ErrEntrySizeMismatch, doc.Index.Length, count)
	}

	want := count * entrySize
	body := data[cursor:]
	if h.Has(FlagCompressed) {
		body, err = decompressEntries(body, want)
		if err != nil {
			return Document{}, err
		}
	}
	if int64(len(body)) != want {
		return Document{}, fmt.Errorf("%w: %d bytes for %d entries", ErrEntrySizeMismatch, len(body), count)
	}

	if count > 0 {
		doc.Index.Entries = make([]index.Entry, count)
	}
	cursor = 0
	next := func() int64 {
		v := int64(binary.LittleEndian.Uint64(body[cursor : cursor+offsetSize]))
		cursor += offsetSize
		return v
	}
	for i := range doc.Index.Entries {
		e := &doc.Index.Entries[i]
		e.HeaderStart = next()
		e.HeaderEnd = next()
		e.PayloadStart = next()
		e.PayloadEnd = next()
	}
	return doc, nil
}

// decompressEntries inflates a compressed entry table, stopping one byte
// past want so that a frame claiming more than the count allows is caught
// without inflating all of it.
func decompressEntries(body []byte, want int64) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(body),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
	)
	if err != nil {
		return nil, fmt.Errorf("decompress entries: %w", err)
	}
	defer zr.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(io.LimitReader(zr, want+1)); err != nil {
		return nil, fmt.Errorf("decompress entries: %w", err)
	}
	return out.Bytes(), nil
}

// LoadBinary reads and decodes the index file at path.
func LoadBinary(path string) (Document, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Document{}, fmt.Errorf("read index: %w", err)
	}
	doc, err := DecodeBinary(data)
	if err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}

// WriteFileAtomic writes data to path through a temp file in the same
// directory and a rename, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+TempSuffix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// TempSuffix is part of the name of every temp file WriteFileAtomic creates.
const TempSuffix = ".tmp."
