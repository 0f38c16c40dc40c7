// Package scan finds record markers in byte ranges.
//
// A record starts with a header line whose first byte is the marker. For
// each record the scanner reports the marker offset (HeaderStart), the
// offset of the '\n' ending the header line (HeaderEnd; the file length if
// the header is the unterminated last line), and PayloadStart =
// HeaderEnd+1. PayloadEnd is inclusive and only known once the next record
// (or the end of the file) has been seen, so it is optional here.
//
// Only '\n' terminates lines. In CRLF files the '\r' is part of the header
// text and of the payload.
package scan

import (
	"bytes"
	"context"
	"fmt"

	"fastaidx/internal/chunk"
	"fastaidx/internal/source"
)

// DefaultMarker introduces a FASTA header line.
const DefaultMarker = '>'

// extendSize is how much the scanner reads per step when a header line runs
// past the end of its range.
const extendSize = 64 << 10

// Offset is an optional file offset.
type Offset struct {
	Value int64
	Valid bool
}

// Resolved returns a valid Offset.
func Resolved(v int64) Offset { return Offset{Value: v, Valid: true} }

func (o Offset) String() string {
	if !o.Valid {
		return "?"
	}
	return fmt.Sprint(o.Value)
}

// Record holds the offsets of one record as far as a scan could determine
// them.
type Record struct {
	HeaderStart  int64
	HeaderEnd    int64
	PayloadStart int64
	PayloadEnd   Offset
}

// ChunkResult is the outcome of scanning one range, in file order.
type ChunkResult struct {
	Range   chunk.Range
	Records []Record
}

// Chunk scans r for marker lines. Offsets are absolute. The payload end of
// every record but the last is set from the next header in the range; the
// last is left unresolved because it depends on what follows r.
//
// Markers are recognised only at line starts. The byte before r.Start is
// consulted, so r need not begin on a line boundary; a marker line that
// starts before r.Start belongs to the previous range.
func Chunk(ctx context.Context, src source.Source, r chunk.Range, marker byte) (ChunkResult, error) {
	length := src.Len()
	if r.Start < 0 || r.Start > r.End || r.End > length {
		return ChunkResult{}, fmt.Errorf("%w: %s of %d", chunk.ErrMalformedRange, r, length)
	}
	res := ChunkResult{Range: r}
	if r.Start == r.End {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return ChunkResult{}, err
	}

	base := max(r.Start-1, 0)
	buf, err := src.Slice(base, r.End)
	if err != nil {
		return ChunkResult{}, fmt.Errorf("read %s: %w", r, err)
	}

	i := int(r.Start - base)
	if i > 0 && buf[i-1] != '\n' {
		nl := bytes.IndexByte(buf[i:], '\n')
		if nl < 0 {
			return res, nil
		}
		i += nl + 1
	}

	// i is always a line start here.
	for i < len(buf) {
		nl := bytes.IndexByte(buf[i:], '\n')
		if buf[i] == marker {
			if err := ctx.Err(); err != nil {
				return ChunkResult{}, err
			}
			start := base + int64(i)
			end := base + int64(i+nl)
			if nl < 0 {
				end, err = lineEnd(ctx, src, r.End)
				if err != nil {
					return ChunkResult{}, err
				}
			}
			if n := len(res.Records); n > 0 {
				res.Records[n-1].PayloadEnd = Resolved(start - 1)
			}
			res.Records = append(res.Records, Record{
				HeaderStart:  start,
				HeaderEnd:    end,
				PayloadStart: end + 1,
			})
		}
		if nl < 0 {
			break
		}
		i += nl + 1
	}
	return res, nil
}

// lineEnd returns the offset of the first '\n' at or after from, or the
// source length if there is none.
func lineEnd(ctx context.Context, src source.Source, from int64) (int64, error) {
	length := src.Len()
	for from < length {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		to := min(from+extendSize, length)
		buf, err := src.Slice(from, to)
		if err != nil {
			return 0, fmt.Errorf("read header past %d: %w", from, err)
		}
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			return from + int64(i), nil
		}
		from = to
	}
	return length, nil
}
