// Package chunk splits a file into line-aligned byte ranges that can be
// scanned independently.
package chunk

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidChunkCount = errors.New("chunk count must be at least 1")
	ErrMalformedRange    = errors.New("malformed byte range")
)

// Range is a half-open byte range [Start, End) in absolute file offsets.
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 { return r.End - r.Start }

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Plan is an ordered partition of [0, length) into ranges.
type Plan []Range

// Validate checks that p covers [0, length) exactly once with strictly
// increasing, non-empty ranges. The empty plan is valid only for length 0.
func (p Plan) Validate(length int64) error {
	if len(p) == 0 {
		if length != 0 {
			return fmt.Errorf("%w: empty plan for length %d", ErrMalformedRange, length)
		}
		return nil
	}
	var next int64
	for i, r := range p {
		if r.Start != next {
			return fmt.Errorf("%w: chunk %d %s does not start at %d", ErrMalformedRange, i, r, next)
		}
		if r.End <= r.Start {
			return fmt.Errorf("%w: chunk %d %s is empty or inverted", ErrMalformedRange, i, r)
		}
		next = r.End
	}
	if next != length {
		return fmt.Errorf("%w: plan ends at %d, length is %d", ErrMalformedRange, next, length)
	}
	return nil
}
