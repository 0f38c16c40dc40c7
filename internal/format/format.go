package format

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Format is the encoding of an index.
type Format string

const (
	FormatText    Format = "text"
	FormatBinary  Format = "binary"
	FormatMsgpack Format = "msgpack"
)

// SidecarExt is appended to an input path to name its binary index.
const SidecarExt = ".fidx"

// ParseFormat accepts the names used on the command line.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatBinary, FormatMsgpack:
		return f, nil
	case "fidx":
		return FormatBinary, nil
	}
	return "", fmt.Errorf("%w: format %q", ErrUnsupported, s)
}

// Ext is the file name suffix for f.
func (f Format) Ext() string {
	switch f {
	case FormatBinary:
		return SidecarExt
	case FormatMsgpack:
		return ".msgpack"
	}
	return ".txt"
}

// Write writes doc to w in format f with compression c.
//
// Binary files carry their own zstd body compression; they cannot be wrapped
// in brotli or gzip.
func Write(w io.Writer, f Format, c Compression, doc Document) error {
	if f == FormatBinary {
		switch c {
		case CompressNone, CompressZstd, "":
		default:
			return fmt.Errorf("%w: %s index with %s compression", ErrUnsupported, f, c)
		}
		data, err := EncodeBinary(doc, c == CompressZstd)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	cw, err := NewWriter(w, c)
	if err != nil {
		return err
	}
	switch f {
	case FormatText, "":
		err = WriteText(cw, doc.Index)
	case FormatMsgpack:
		err = EncodeMsgpack(cw, doc)
	default:
		err = fmt.Errorf("%w: format %q", ErrUnsupported, f)
	}
	if err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

// Detect guesses the format of uncompressed index data from its first
// bytes.
func Detect(prefix []byte) Format {
	switch {
	case len(prefix) >= 2 && prefix[0] == Signature && prefix[1] == TypeIndex:
		return FormatBinary
	case len(prefix) > 0 && (prefix[0]&0xf0 == 0x80 || prefix[0] == 0xde || prefix[0] == 0xdf):
		// fixmap, map16, map32
		return FormatMsgpack
	}
	return FormatText
}

// Read reads an index written by Write. The outer compression is taken
// from c and the format is detected.
func Read(r io.Reader, c Compression) (Document, error) {
	rc, err := NewReader(r, c)
	if err != nil {
		return Document{}, err
	}
	defer func() { _ = rc.Close() }()

	br := bufio.NewReader(rc)
	prefix, err := br.Peek(2)
	if err != nil && len(prefix) == 0 {
		if err == io.EOF {
			// An empty text index.
			return Document{}, nil
		}
		return Document{}, err
	}

	switch Detect(prefix) {
	case FormatBinary:
		data, err := io.ReadAll(br)
		if err != nil {
			return Document{}, err
		}
		return DecodeBinary(data)
	case FormatMsgpack:
		return DecodeMsgpack(br)
	}
	idx, err := ReadText(br)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: uuid.Nil, Index: idx}, nil
}

// Load reads the index file at path, whatever its format and compression.
func Load(path string) (Document, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Document{}, fmt.Errorf("open index: %w", err)
	}
	defer func() { _ = f.Close() }()
	doc, err := Read(f, CompressionOf(path))
	if err != nil {
		return Document{}, fmt.Errorf("load %s: %w", path, err)
	}
	return doc, nil
}

// Save writes doc to path atomically.
func Save(path string, f Format, c Compression, doc Document) error {
	var buf bytes.Buffer
	if err := Write(&buf, f, c, doc); err != nil {
		return err
	}
	return WriteFileAtomic(path, buf.Bytes())
}
