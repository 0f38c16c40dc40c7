// Package index builds the positional index of a record file.
//
// Build plans line-aligned chunks, scans them concurrently and stitches the
// per-chunk results into one Index. BuildStream produces the same Index in a
// single sequential pass for inputs that cannot be read at random.
package index

import (
	"errors"
	"fmt"

	"fastaidx/internal/chunk"
)

var (
	// ErrInvalidInput reports a bad argument to an entry point: parallelism
	// below one, an unusable marker, a missing file. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMalformedRange reports a broken planner, scanner or stitch
	// contract. It indicates a defect and is never corrected silently.
	ErrMalformedRange = chunk.ErrMalformedRange
	// ErrTaskFailed matches any *TaskError.
	ErrTaskFailed = errors.New("scan task failed")
	// ErrInvariant reports an index that breaks its ordering or coverage
	// invariants.
	ErrInvariant = errors.New("index invariant violated")
)

// TaskError is the first failure of a chunk scan. The whole build fails with
// it and no partial index is returned.
type TaskError struct {
	Chunk int
	Range chunk.Range
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("scan chunk %d %s: %v", e.Chunk, e.Range, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

func (e *TaskError) Is(target error) bool { return target == ErrTaskFailed }

// Entry holds the resolved offsets of one record.
//
// HeaderEnd is the offset of the '\n' ending the header line, or the file
// length when the header is the unterminated last line. PayloadStart is
// HeaderEnd+1. PayloadEnd is inclusive; PayloadEnd < PayloadStart means the
// payload is empty.
type Entry struct {
	HeaderStart  int64
	HeaderEnd    int64
	PayloadStart int64
	PayloadEnd   int64
}

// Header returns the header line range, marker included, terminator
// excluded.
func (e Entry) Header() chunk.Range {
	return chunk.Range{Start: e.HeaderStart, End: e.HeaderEnd}
}

// Payload returns the payload bytes as a half-open range. It is empty for
// records without payload.
func (e Entry) Payload() chunk.Range {
	end := e.PayloadEnd + 1
	return chunk.Range{Start: min(e.PayloadStart, end), End: end}
}

// Index is the ordered list of records of one file.
type Index struct {
	// Length is the length of the indexed file in bytes.
	Length  int64
	Entries []Entry
}

// Len returns the number of records.
func (idx Index) Len() int { return len(idx.Entries) }

// Validate checks the stitched invariants: entries ascend by HeaderStart,
// each payload ends one byte before the next header, and the last payload
// ends at Length-1.
func (idx Index) Validate() error {
	for i, e := range idx.Entries {
		if e.HeaderStart < 0 || e.HeaderStart >= idx.Length {
			return fmt.Errorf("%w: entry %d header start %d outside [0,%d)", ErrInvariant, i, e.HeaderStart, idx.Length)
		}
		if e.HeaderEnd < e.HeaderStart || e.PayloadStart != e.HeaderEnd+1 {
			return fmt.Errorf("%w: entry %d header [%d,%d] payload start %d", ErrInvariant, i, e.HeaderStart, e.HeaderEnd, e.PayloadStart)
		}
		if i+1 < len(idx.Entries) {
			next := idx.Entries[i+1]
			if next.HeaderStart <= e.HeaderEnd {
				return fmt.Errorf("%w: entry %d starts at %d inside entry %d", ErrInvariant, i+1, next.HeaderStart, i)
			}
			if e.PayloadEnd != next.HeaderStart-1 {
				return fmt.Errorf("%w: entry %d payload end %d, next header at %d", ErrInvariant, i, e.PayloadEnd, next.HeaderStart)
			}
		} else if e.PayloadEnd != idx.Length-1 {
			return fmt.Errorf("%w: last payload end %d, length %d", ErrInvariant, e.PayloadEnd, idx.Length)
		}
	}
	return nil
}

// Equal reports whether two indexes are identical.
func (idx Index) Equal(other Index) bool {
	if idx.Length != other.Length || len(idx.Entries) != len(other.Entries) {
		return false
	}
	for i := range idx.Entries {
		if idx.Entries[i] != other.Entries[i] {
			return false
		}
	}
	return true
}
