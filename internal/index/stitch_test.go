package index_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"fastaidx/internal/chunk"
	"fastaidx/internal/index"
	"fastaidx/internal/memtest"
	"fastaidx/internal/scan"
	"fastaidx/internal/source"
)

func scanPlan(t *testing.T, data string, n int) []scan.ChunkResult {
	t.Helper()
	src := source.Bytes(data)
	plan, _, err := chunk.NewPlan(context.Background(), src, n, chunk.DefaultLookahead)
	if err != nil {
		t.Fatal(err)
	}
	results, err := index.Execute(context.Background(), src, plan, 3, '>')
	if err != nil {
		t.Fatal(err)
	}
	return results
}

// sortStitch is the straightforward merge: pool every record, sort by
// header start, link neighbours.
func sortStitch(results []scan.ChunkResult, length int64) index.Index {
	var all []scan.Record
	for _, res := range results {
		all = append(all, res.Records...)
	}
	slices.SortFunc(all, func(a, b scan.Record) int {
		return int(a.HeaderStart - b.HeaderStart)
	})
	idx := index.Index{Length: length}
	for i, r := range all {
		pe := length - 1
		if i+1 < len(all) {
			pe = all[i+1].HeaderStart - 1
		}
		idx.Entries = append(idx.Entries, index.Entry{
			HeaderStart:  r.HeaderStart,
			HeaderEnd:    r.HeaderEnd,
			PayloadStart: r.PayloadStart,
			PayloadEnd:   pe,
		})
	}
	return idx
}

func TestStitchMatchesSortedMerge(t *testing.T) {
	for seed := range uint64(4) {
		data := memtest.Fasta(100+seed, 150)
		for _, n := range []int{1, 2, 9, 40, 500} {
			results := scanPlan(t, data, n)
			got, err := index.Stitch(results, int64(len(data)))
			if err != nil {
				t.Fatal(err)
			}
			want := sortStitch(results, int64(len(data)))
			if !got.Equal(want) {
				t.Fatalf("seed %d chunks %d: stitched index differs from sorted merge", seed, n)
			}
		}
	}
}

func TestStitchSkipsEmptyChunks(t *testing.T) {
	// Records in chunks 0 and 3, nothing in between: the first payload runs
	// up to the second header.
	results := []scan.ChunkResult{
		{Range: chunk.Range{Start: 0, End: 10}, Records: []scan.Record{{HeaderStart: 0, HeaderEnd: 2, PayloadStart: 3}}},
		{Range: chunk.Range{Start: 10, End: 20}},
		{Range: chunk.Range{Start: 20, End: 30}},
		{Range: chunk.Range{Start: 30, End: 40}, Records: []scan.Record{{HeaderStart: 30, HeaderEnd: 33, PayloadStart: 34}}},
	}
	idx, err := index.Stitch(results, 40)
	if err != nil {
		t.Fatal(err)
	}
	assertEntries(t, []index.Entry{entry(0, 2, 3, 29), entry(30, 33, 34, 39)}, idx)
}

func TestStitchOverridesScannerPayloadEnd(t *testing.T) {
	results := []scan.ChunkResult{{
		Range: chunk.Range{Start: 0, End: 12},
		Records: []scan.Record{
			{HeaderStart: 0, HeaderEnd: 2, PayloadStart: 3, PayloadEnd: scan.Resolved(99)},
			{HeaderStart: 6, HeaderEnd: 8, PayloadStart: 9, PayloadEnd: scan.Resolved(1)},
		},
	}}
	idx, err := index.Stitch(results, 12)
	if err != nil {
		t.Fatal(err)
	}
	assertEntries(t, []index.Entry{entry(0, 2, 3, 5), entry(6, 8, 9, 11)}, idx)
}

func TestStitchEmpty(t *testing.T) {
	idx, err := index.Stitch(nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 0 || idx.Length != 0 {
		t.Fatalf("expected empty index, got %+v", idx)
	}
}

func TestStitchMalformed(t *testing.T) {
	rec := func(hs, he int64) scan.Record {
		return scan.Record{HeaderStart: hs, HeaderEnd: he, PayloadStart: he + 1}
	}
	tests := []struct {
		name    string
		results []scan.ChunkResult
	}{
		{"out of order", []scan.ChunkResult{
			{Records: []scan.Record{rec(10, 12)}},
			{Records: []scan.Record{rec(0, 2)}},
		}},
		{"duplicate", []scan.ChunkResult{
			{Records: []scan.Record{rec(0, 2)}},
			{Records: []scan.Record{rec(0, 2)}},
		}},
		{"inside previous header", []scan.ChunkResult{
			{Records: []scan.Record{rec(0, 5), rec(3, 7)}},
		}},
		{"past end", []scan.ChunkResult{
			{Records: []scan.Record{rec(20, 22)}},
		}},
		{"negative", []scan.ChunkResult{
			{Records: []scan.Record{rec(-1, 2)}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := index.Stitch(tt.results, 20)
			if !errors.Is(err, index.ErrMalformedRange) {
				t.Fatalf("expected ErrMalformedRange, got %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		idx  index.Index
		ok   bool
	}{
		{"empty", index.Index{}, true},
		{"good", index.Index{Length: 13, Entries: []index.Entry{entry(0, 3, 4, 6), entry(7, 10, 11, 12)}}, true},
		{"header only at eof", index.Index{Length: 5, Entries: []index.Entry{entry(0, 5, 6, 4)}}, true},
		{"gap", index.Index{Length: 13, Entries: []index.Entry{entry(0, 3, 4, 5), entry(7, 10, 11, 12)}}, false},
		{"short last", index.Index{Length: 13, Entries: []index.Entry{entry(0, 3, 4, 11)}}, false},
		{"unordered", index.Index{Length: 13, Entries: []index.Entry{entry(7, 10, 11, -1), entry(0, 3, 4, 12)}}, false},
		{"payload start", index.Index{Length: 13, Entries: []index.Entry{entry(0, 3, 5, 12)}}, false},
		{"beyond length", index.Index{Length: 3, Entries: []index.Entry{entry(3, 4, 5, 2)}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.idx.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, index.ErrInvariant) {
				t.Fatalf("expected ErrInvariant, got %v", err)
			}
		})
	}
}

func TestEntryRanges(t *testing.T) {
	e := entry(7, 10, 11, 12)
	if h := e.Header(); h != (chunk.Range{Start: 7, End: 10}) {
		t.Fatalf("header range %s", h)
	}
	if p := e.Payload(); p != (chunk.Range{Start: 11, End: 13}) {
		t.Fatalf("payload range %s", p)
	}
	// Header-only record at end of file: empty payload, clamped.
	if p := entry(0, 5, 6, 4).Payload(); p.Len() != 0 || p.End != 5 {
		t.Fatalf("empty payload range %s", p)
	}
}
