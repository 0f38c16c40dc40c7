package chunk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"fastaidx/internal/source"
)

// wrapped builds a multi-record file with fixed-width sequence lines.
func wrapped(records, lines int) string {
	var sb strings.Builder
	for r := range records {
		fmt.Fprintf(&sb, ">seq%d description %d\n", r, r*r)
		for l := range lines {
			sb.WriteString(strings.Repeat(string("ACGT"[(r+l)%4]), 60))
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func TestNewPlanInvalidChunkCount(t *testing.T) {
	for _, n := range []int{0, -3} {
		_, _, err := NewPlan(context.Background(), source.Bytes(">a\nA\n"), n, 0)
		if !errors.Is(err, ErrInvalidChunkCount) {
			t.Errorf("n=%d: expected ErrInvalidChunkCount, got %v", n, err)
		}
	}
}

func TestNewPlanEmptySource(t *testing.T) {
	plan, _, err := NewPlan(context.Background(), source.Bytes(nil), 4, 0)
	if err != nil {
		t.Fatalf("empty source should not be an error: %v", err)
	}
	if len(plan) != 0 {
		t.Fatalf("expected empty plan, got %v", plan)
	}
	if err := plan.Validate(0); err != nil {
		t.Fatalf("empty plan should validate for length 0: %v", err)
	}
}

func TestNewPlanSingleChunk(t *testing.T) {
	data := wrapped(3, 2)
	plan, stats, err := NewPlan(context.Background(), source.Bytes(data), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 1 || plan[0] != (Range{0, int64(len(data))}) {
		t.Fatalf("unexpected plan %v", plan)
	}
	if stats.Chunks != 1 {
		t.Fatalf("stats.Chunks: want 1 got %d", stats.Chunks)
	}
}

func TestNewPlanBoundariesAreLineStarts(t *testing.T) {
	data := wrapped(50, 7)
	src := source.Bytes(data)
	for _, n := range []int{1, 2, 3, 7, 16, 64, 1000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			plan, stats, err := NewPlan(context.Background(), src, n, 0)
			if err != nil {
				t.Fatal(err)
			}
			if err := plan.Validate(int64(len(data))); err != nil {
				t.Fatal(err)
			}
			if len(plan) > n {
				t.Fatalf("asked for %d chunks, got %d", n, len(plan))
			}
			if stats.Chunks != len(plan) {
				t.Fatalf("stats.Chunks %d != len(plan) %d", stats.Chunks, len(plan))
			}
			for _, r := range plan[1:] {
				if data[r.Start-1] != '\n' {
					t.Fatalf("boundary %d is not a line start", r.Start)
				}
			}
		})
	}
}

func TestNewPlanSplitAfterMarkerMovesToNextLine(t *testing.T) {
	// '>' at 8, so width 9 puts the candidate one byte after the marker.
	data := ">a\nCCCC\n>b\nGGGGGG\n"
	if len(data) != 18 {
		t.Fatalf("fixture length changed: %d", len(data))
	}
	plan, _, err := NewPlan(context.Background(), source.Bytes(data), 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := Plan{{0, 11}, {11, 18}}
	if len(plan) != len(want) || plan[0] != want[0] || plan[1] != want[1] {
		t.Fatalf("want %v got %v", want, plan)
	}
}

func TestNewPlanCandidateOnLineStartIsKept(t *testing.T) {
	// Width 8 lands exactly on the '>' of the second record.
	data := ">a\nCCCC\n>b\nGGGG\n"
	plan, _, err := NewPlan(context.Background(), source.Bytes(data), 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 2 || plan[1].Start != 8 {
		t.Fatalf("expected split at 8, got %v", plan)
	}
}

func TestNewPlanDropsSplitWithoutNewlineInWindow(t *testing.T) {
	data := strings.Repeat("A", 40) + "\n>x\nC\n"
	plan, stats, err := NewPlan(context.Background(), source.Bytes(data), 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := plan.Validate(int64(len(data))); err != nil {
		t.Fatal(err)
	}
	if stats.NoLineStart == 0 {
		t.Fatalf("expected dropped splits, stats=%+v plan=%v", stats, plan)
	}
	if len(plan) >= 4 {
		t.Fatalf("expected merged chunks, got %v", plan)
	}
}

func TestNewPlanMoreChunksThanLines(t *testing.T) {
	data := ">a\n>b\n"
	plan, stats, err := NewPlan(context.Background(), source.Bytes(data), 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := Plan{{0, 3}, {3, 6}}
	if len(plan) != 2 || plan[0] != want[0] || plan[1] != want[1] {
		t.Fatalf("want %v got %v", want, plan)
	}
	if stats.Collapsed == 0 {
		t.Fatalf("expected collapsed splits, stats=%+v", stats)
	}
}

func TestNewPlanNoTrailingNewline(t *testing.T) {
	data := ">a\nAAAA\n>b\nCCCC"
	plan, _, err := NewPlan(context.Background(), source.Bytes(data), 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := plan.Validate(int64(len(data))); err != nil {
		t.Fatal(err)
	}
}

func TestNewPlanLookaheadSpansProbes(t *testing.T) {
	// The newline sits beyond the first probe read.
	data := strings.Repeat("A", probeSize*2) + "\n>b\nC\n"
	plan, stats, err := NewPlan(context.Background(), source.Bytes(data), 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 2 || plan[1].Start != int64(probeSize*2+1) {
		t.Fatalf("unexpected plan %v (stats %+v)", plan, stats)
	}
}

func TestNewPlanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewPlan(ctx, source.Bytes(wrapped(5, 2)), 4, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name   string
		plan   Plan
		length int64
		ok     bool
	}{
		{"ok", Plan{{0, 4}, {4, 9}}, 9, true},
		{"gap", Plan{{0, 4}, {5, 9}}, 9, false},
		{"overlap", Plan{{0, 5}, {4, 9}}, 9, false},
		{"short", Plan{{0, 4}}, 9, false},
		{"empty chunk", Plan{{0, 4}, {4, 4}, {4, 9}}, 9, false},
		{"empty plan nonzero length", Plan{}, 9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate(tt.length)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrMalformedRange) {
				t.Fatalf("expected ErrMalformedRange, got %v", err)
			}
		})
	}
}
