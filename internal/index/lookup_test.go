package index_test

import (
	"errors"
	"testing"

	"fastaidx/internal/index"
	"fastaidx/internal/source"
)

func TestLookup(t *testing.T) {
	data := ">r1 first record\nACGT\nAC\n>r2\r\nGG\r\n>r3\n"
	idx := build(t, data, index.Options{Parallelism: 2})
	src := source.Bytes(data)

	tests := []struct {
		key     string
		n       int
		name    string
		header  string
		payload string
	}{
		{"0", 0, "r1", "r1 first record", "ACGT\nAC\n"},
		{"r1", 0, "r1", "r1 first record", "ACGT\nAC\n"},
		{"r1 first record", 0, "r1", "r1 first record", "ACGT\nAC\n"},
		{"1", 1, "r2", "r2", "GG\r\n"},
		{"r2", 1, "r2", "r2", "GG\r\n"},
		{"r3", 2, "r3", "r3", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			rec, n, err := idx.Lookup(src, tt.key)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.n || rec.Name() != tt.name || string(rec.Header) != tt.header || string(rec.Payload) != tt.payload {
				t.Fatalf("got #%d name %q header %q payload %q", n, rec.Name(), rec.Header, rec.Payload)
			}
		})
	}
}

func TestLookupNotFound(t *testing.T) {
	data := ">r1\nA\n"
	idx := build(t, data, index.Options{Parallelism: 1})
	for _, key := range []string{"1", "-1", "nope", "r"} {
		if _, _, err := idx.Lookup(source.Bytes(data), key); !errors.Is(err, index.ErrNotFound) {
			t.Errorf("%q: expected ErrNotFound, got %v", key, err)
		}
	}
}

func TestReadHeaderOnlyRecord(t *testing.T) {
	data := ">r1\nA\n>tail"
	idx := build(t, data, index.Options{Parallelism: 1})
	rec, err := idx.Read(source.Bytes(data), 1)
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Header) != "tail" || len(rec.Payload) != 0 {
		t.Fatalf("got header %q payload %q", rec.Header, rec.Payload)
	}
}

func TestReadLengthMismatch(t *testing.T) {
	idx := build(t, ">r1\nA\n", index.Options{Parallelism: 1})
	if _, err := idx.Read(source.Bytes(">r1\nAC\n"), 0); !errors.Is(err, index.ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}
