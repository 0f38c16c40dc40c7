package index

import (
	"fmt"

	"fastaidx/internal/scan"
)

// Stitch merges per-chunk results, given in plan order, into the index of a
// file of the given length.
//
// Plan ranges are disjoint and ascending and records inside a chunk ascend,
// so concatenating the chunks in plan order is already file order; nothing
// is sorted. Every payload end is then recomputed from the following header
// start (the scanner's values are advisory), and the last one from the file
// length. Empty chunks contribute nothing, so the following header is
// always the next record found, whichever chunk it came from.
func Stitch(results []scan.ChunkResult, length int64) (Index, error) {
	total := 0
	for _, res := range results {
		total += len(res.Records)
	}
	entries := make([]Entry, 0, total)

	for ci, res := range results {
		for _, rec := range res.Records {
			if rec.HeaderStart < 0 || rec.HeaderStart >= length || rec.HeaderEnd > length {
				return Index{}, fmt.Errorf("%w: chunk %d record at %d outside file of length %d", ErrMalformedRange, ci, rec.HeaderStart, length)
			}
			if n := len(entries); n > 0 {
				prev := &entries[n-1]
				if rec.HeaderStart <= prev.HeaderEnd {
					return Index{}, fmt.Errorf("%w: chunk %d record at %d overlaps record at %d", ErrMalformedRange, ci, rec.HeaderStart, prev.HeaderStart)
				}
				prev.PayloadEnd = rec.HeaderStart - 1
			}
			entries = append(entries, Entry{
				HeaderStart:  rec.HeaderStart,
				HeaderEnd:    rec.HeaderEnd,
				PayloadStart: rec.PayloadStart,
			})
		}
	}
	if n := len(entries); n > 0 {
		entries[n-1].PayloadEnd = length - 1
	}
	return Index{Length: length, Entries: entries}, nil
}
