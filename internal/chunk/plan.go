package chunk

import (
	"bytes"
	"context"
	"fmt"

	"fastaidx/internal/source"
)

// DefaultLookahead bounds how far past a candidate split the planner searches
// for a line start. It has to exceed the longest line in the file, and
// unwrapped sequence lines can be long, so the default is generous; the
// search itself only reads probeSize bytes at a time.
const DefaultLookahead = 16 << 20

// probeSize is how much the planner reads per step while searching.
const probeSize = 64 << 10

// PlanStats describes how a plan was derived from the requested chunk count.
type PlanStats struct {
	Requested int
	Chunks    int
	// NoLineStart counts splits dropped because no newline was found
	// within the lookahead window. The neighbouring chunks merge.
	NoLineStart int
	// Collapsed counts splits whose line start coincided with the previous
	// boundary or with the end of the file.
	Collapsed int
}

// NewPlan divides src into at most n line-aligned chunks.
//
// The approximate width w = length/n yields candidate split points k*w. Each
// candidate moves forward to the first line start at or after it: the byte
// after the first '\n' at or after offset k*w-1. A boundary is therefore
// never inside a line, so never inside a header. An empty source yields an
// empty plan.
func NewPlan(ctx context.Context, src source.Source, n int, lookahead int64) (Plan, PlanStats, error) {
	stats := PlanStats{Requested: n}
	if n < 1 {
		return nil, stats, fmt.Errorf("%w: got %d", ErrInvalidChunkCount, n)
	}
	length := src.Len()
	if length == 0 {
		return Plan{}, stats, nil
	}
	if lookahead < 1 {
		lookahead = DefaultLookahead
	}

	width := max(length/int64(n), 1)
	bounds := []int64{0}
	for k := 1; k < n; k++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		candidate := int64(k) * width
		if candidate >= length {
			break
		}
		prev := bounds[len(bounds)-1]
		if candidate <= prev {
			// The previous split was pushed past this candidate; the
			// first line start at or after it is prev itself.
			stats.Collapsed++
			continue
		}

		b, ok, err := nextLineStart(src, candidate, lookahead)
		if err != nil {
			return nil, stats, fmt.Errorf("search split %d at %d: %w", k, candidate, err)
		}
		if !ok {
			stats.NoLineStart++
			continue
		}
		if b <= prev || b >= length {
			stats.Collapsed++
			continue
		}
		bounds = append(bounds, b)
	}
	bounds = append(bounds, length)

	plan := make(Plan, 0, len(bounds)-1)
	for i := 1; i < len(bounds); i++ {
		plan = append(plan, Range{Start: bounds[i-1], End: bounds[i]})
	}
	stats.Chunks = len(plan)
	return plan, stats, nil
}

// nextLineStart returns the first line start at or after pos (pos >= 1),
// looking at no more than lookahead bytes starting with the byte before pos.
func nextLineStart(src source.Source, pos, lookahead int64) (int64, bool, error) {
	from := pos - 1
	limit := min(from+lookahead, src.Len())
	for from < limit {
		to := min(from+probeSize, limit)
		buf, err := src.Slice(from, to)
		if err != nil {
			return 0, false, err
		}
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			return from + int64(i) + 1, true, nil
		}
		from = to
	}
	return 0, false, nil
}
