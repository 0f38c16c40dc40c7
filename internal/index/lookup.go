package index

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"fastaidx/internal/source"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("record not found")

// Record is one record read back through an index.
type Record struct {
	Entry   Entry
	Header  []byte // header line without marker and line terminator
	Payload []byte
}

// Name returns the record identifier: the header text up to the first
// space or tab.
func (r Record) Name() string {
	return string(headerName(r.Header))
}

// Read slices record i out of src. Only the record's own bytes are read.
func (idx Index) Read(src source.Source, i int) (Record, error) {
	if i < 0 || i >= len(idx.Entries) {
		return Record{}, fmt.Errorf("%w: record %d of %d", ErrNotFound, i, len(idx.Entries))
	}
	if src.Len() != idx.Length {
		return Record{}, fmt.Errorf("%w: index covers %d bytes, source has %d", ErrInvariant, idx.Length, src.Len())
	}
	e := idx.Entries[i]
	header, err := src.Slice(e.HeaderStart, e.HeaderEnd)
	if err != nil {
		return Record{}, fmt.Errorf("read header %d: %w", i, err)
	}
	p := e.Payload()
	payload, err := src.Slice(p.Start, p.End)
	if err != nil {
		return Record{}, fmt.Errorf("read payload %d: %w", i, err)
	}
	return Record{Entry: e, Header: trimHeader(header), Payload: payload}, nil
}

// Find returns the first record whose header text or name equals key.
// Each header is read on its own; payloads are only read for the match.
func (idx Index) Find(src source.Source, key string) (Record, int, error) {
	want := []byte(key)
	for i, e := range idx.Entries {
		header, err := src.Slice(e.HeaderStart, e.HeaderEnd)
		if err != nil {
			return Record{}, -1, fmt.Errorf("read header %d: %w", i, err)
		}
		h := trimHeader(header)
		if bytes.Equal(h, want) || bytes.Equal(headerName(h), want) {
			rec, err := idx.Read(src, i)
			return rec, i, err
		}
	}
	return Record{}, -1, fmt.Errorf("%w: %q", ErrNotFound, key)
}

// Lookup resolves key as a record number when it parses as one, and as a
// header name otherwise.
func (idx Index) Lookup(src source.Source, key string) (Record, int, error) {
	if n, err := strconv.Atoi(key); err == nil {
		rec, err := idx.Read(src, n)
		return rec, n, err
	}
	return idx.Find(src, key)
}

// trimHeader drops the marker and a trailing '\r'.
func trimHeader(h []byte) []byte {
	if len(h) > 0 {
		h = h[1:]
	}
	return bytes.TrimSuffix(h, []byte{'\r'})
}

func headerName(h []byte) []byte {
	if i := bytes.IndexAny(h, " \t"); i >= 0 {
		return h[:i]
	}
	return h
}
