package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"fastaidx/internal/chunk"
	"fastaidx/internal/source"
)

func rec(hs, he, ps int64, pe Offset) Record {
	return Record{HeaderStart: hs, HeaderEnd: he, PayloadStart: ps, PayloadEnd: pe}
}

func assertRecords(t *testing.T, want, got []Record) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("record count: want %d got %d\nwant %v\ngot  %v", len(want), len(got), want, got)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("record %d: want %+v got %+v", i, want[i], got[i])
		}
	}
}

func scanAll(t *testing.T, data string) ChunkResult {
	t.Helper()
	res, err := Chunk(context.Background(), source.Bytes(data), chunk.Range{Start: 0, End: int64(len(data))}, DefaultMarker)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	return res
}

func TestChunkTwoRecords(t *testing.T) {
	// ">r1\nAC\n>r2\nG\n": headers at 0 and 7, newlines at 3 and 10.
	res := scanAll(t, ">r1\nAC\n>r2\nG\n")
	assertRecords(t, []Record{
		rec(0, 3, 4, Resolved(6)),
		rec(7, 10, 11, Offset{}),
	}, res.Records)
}

func TestChunkNoMarkers(t *testing.T) {
	res := scanAll(t, "ACGT\nACGT\n")
	if len(res.Records) != 0 {
		t.Fatalf("expected no records, got %v", res.Records)
	}
}

func TestChunkMarkerMidLineIgnored(t *testing.T) {
	res := scanAll(t, ">r1\nAC>GT\n  >not\n>r2\n")
	assertRecords(t, []Record{
		rec(0, 3, 4, Resolved(16)),
		rec(17, 20, 21, Offset{}),
	}, res.Records)
}

func TestChunkHeaderWithoutNewlineAtEOF(t *testing.T) {
	res := scanAll(t, ">r1\nAC\n>r2")
	assertRecords(t, []Record{
		rec(0, 3, 4, Resolved(6)),
		rec(7, 10, 11, Offset{}),
	}, res.Records)
}

func TestChunkCRLFHeaderKeepsCarriageReturn(t *testing.T) {
	res := scanAll(t, ">r1\r\nAC\r\n")
	assertRecords(t, []Record{rec(0, 4, 5, Offset{})}, res.Records)
}

func TestChunkAbsoluteOffsets(t *testing.T) {
	data := ">a\nCCCC\n>b\nGG\n>c\nT\n"
	// [8, 18) starts at the second header.
	res, err := Chunk(context.Background(), source.Bytes(data), chunk.Range{Start: 8, End: 18}, DefaultMarker)
	if err != nil {
		t.Fatal(err)
	}
	assertRecords(t, []Record{
		rec(8, 10, 11, Resolved(13)),
		rec(14, 16, 17, Offset{}),
	}, res.Records)
}

func TestChunkRangeStartsMidLine(t *testing.T) {
	data := ">a\nCC>C\n>b\nGG\n"
	// Starting inside "CC>C": the '>' at 5 is not at a line start and the
	// byte before 5 is 'C', so scanning resumes at the next line.
	res, err := Chunk(context.Background(), source.Bytes(data), chunk.Range{Start: 5, End: int64(len(data))}, DefaultMarker)
	if err != nil {
		t.Fatal(err)
	}
	assertRecords(t, []Record{rec(8, 10, 11, Offset{})}, res.Records)

	// Starting at 1 is inside the first header, which belongs to the
	// chunk that contains offset 0.
	res, err = Chunk(context.Background(), source.Bytes(data), chunk.Range{Start: 1, End: 8}, DefaultMarker)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 0 {
		t.Fatalf("expected no records, got %v", res.Records)
	}
}

func TestChunkHeaderRunsPastRangeEnd(t *testing.T) {
	data := ">a\nC\n>long header line\nG\n"
	// The range ends inside the second header line.
	res, err := Chunk(context.Background(), source.Bytes(data), chunk.Range{Start: 0, End: 9}, DefaultMarker)
	if err != nil {
		t.Fatal(err)
	}
	assertRecords(t, []Record{
		rec(0, 2, 3, Resolved(4)),
		rec(5, 22, 23, Offset{}),
	}, res.Records)
}

func TestChunkEmptyRange(t *testing.T) {
	res, err := Chunk(context.Background(), source.Bytes(">a\n"), chunk.Range{Start: 2, End: 2}, DefaultMarker)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 0 {
		t.Fatalf("expected no records, got %v", res.Records)
	}
}

func TestChunkMalformedRange(t *testing.T) {
	src := source.Bytes(">a\nC\n")
	for _, r := range []chunk.Range{{Start: 3, End: 2}, {Start: 0, End: 6}, {Start: -1, End: 2}} {
		_, err := Chunk(context.Background(), src, r, DefaultMarker)
		if !errors.Is(err, chunk.ErrMalformedRange) {
			t.Errorf("%s: expected ErrMalformedRange, got %v", r, err)
		}
	}
}

func TestChunkCustomMarker(t *testing.T) {
	data := "@r1\nACGT\n+\nIIII\n@r2\nA\n+\nI\n"
	res, err := Chunk(context.Background(), source.Bytes(data), chunk.Range{Start: 0, End: int64(len(data))}, '@')
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 || res.Records[1].HeaderStart != 16 {
		t.Fatalf("unexpected records %v", res.Records)
	}
}

func TestChunkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Chunk(ctx, source.Bytes(">a\nC\n"), chunk.Range{Start: 0, End: 5}, DefaultMarker)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func fold(t *testing.T, r io.Reader, blockSize int) ([]Record, int64) {
	t.Helper()
	var got []Record
	n, err := Fold(context.Background(), r, DefaultMarker, blockSize, func(r Record) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	return got, n
}

// resolveLast fills the payload end a single-chunk scan leaves open.
func resolveLast(records []Record, length int64) []Record {
	out := append([]Record(nil), records...)
	if n := len(out); n > 0 {
		out[n-1].PayloadEnd = Resolved(length - 1)
	}
	return out
}

func TestFoldMatchesChunkScan(t *testing.T) {
	inputs := []string{
		"",
		"ACGT\n",
		">r1\nAC\n>r2\nG\n",
		">r1\nAC\n>r2\nG",
		">only",
		">r1\n>r2\n>r3\n",
		">r1\r\nAC\r\n>r2\r\nGG\r\n",
		"junk before\n>r1 desc\nACGT\nAC>GT\n>r2\n\n\n>r3\nT",
		strings.Repeat(">seq with a longer description\nACGTACGTACGT\nACGT\n", 20),
	}
	for i, data := range inputs {
		want := resolveLast(scanAll(t, data).Records, int64(len(data)))
		for _, bs := range []int{1, 2, 3, 7, 64, 0} {
			t.Run(fmt.Sprintf("input%d/block%d", i, bs), func(t *testing.T) {
				got, n := fold(t, strings.NewReader(data), bs)
				if n != int64(len(data)) {
					t.Fatalf("length: want %d got %d", len(data), n)
				}
				assertRecords(t, want, got)
			})
		}
	}
}

func TestFoldOneByteReads(t *testing.T) {
	data := ">r1\nAC\n>r2\nG\n"
	got, _ := fold(t, iotest.OneByteReader(strings.NewReader(data)), 0)
	assertRecords(t, []Record{
		rec(0, 3, 4, Resolved(6)),
		rec(7, 10, 11, Resolved(12)),
	}, got)
}

func TestFoldHeaderOnlyLastLine(t *testing.T) {
	got, _ := fold(t, strings.NewReader(">r1\nAC\n>r2"), 4)
	assertRecords(t, []Record{
		rec(0, 3, 4, Resolved(6)),
		rec(7, 10, 11, Resolved(9)),
	}, got)
}

func TestFoldEmitError(t *testing.T) {
	stop := errors.New("stop")
	_, err := Fold(context.Background(), strings.NewReader(">a\nC\n>b\nG\n"), DefaultMarker, 0, func(Record) error {
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected emit error, got %v", err)
	}
}

func TestFoldReadError(t *testing.T) {
	boom := errors.New("disk on fire")
	r := io.MultiReader(strings.NewReader(">a\nC\n"), iotest.ErrReader(boom))
	_, err := Fold(context.Background(), r, DefaultMarker, 0, func(Record) error { return nil })
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}
