// Package memtest provides shared test fixtures: deterministic FASTA inputs,
// a byte-at-a-time reference indexer to check parallel builds against, and
// helpers that put inputs on disk.
package memtest

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fastaidx/internal/index"
)

// Fasta produces a deterministic input of records with uneven sizes:
// headers with descriptions, zero to five sequence lines of 1 to 120 bases.
func Fasta(seed uint64, records int) string {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	var sb strings.Builder
	for i := range records {
		fmt.Fprintf(&sb, ">seq%d some description %d\n", i, rng.IntN(1000))
		for range rng.IntN(6) {
			width := 1 + rng.IntN(120)
			for range width {
				sb.WriteByte("ACGT"[rng.IntN(4)])
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Reference indexes data one byte at a time: a record starts at every
// marker that begins a line.
func Reference(data string, marker byte) index.Index {
	idx := index.Index{Length: int64(len(data))}
	for i := 0; i < len(data); i++ {
		if data[i] != marker || (i > 0 && data[i-1] != '\n') {
			continue
		}
		he := int64(len(data))
		if nl := strings.IndexByte(data[i:], '\n'); nl >= 0 {
			he = int64(i + nl)
		}
		if n := len(idx.Entries); n > 0 {
			idx.Entries[n-1].PayloadEnd = int64(i) - 1
		}
		idx.Entries = append(idx.Entries, index.Entry{
			HeaderStart:  int64(i),
			HeaderEnd:    he,
			PayloadStart: he + 1,
			PayloadEnd:   int64(len(data)) - 1,
		})
		i = int(he)
	}
	return idx
}

// WriteFile writes content to name under dir and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("memtest.WriteFile: %v", err)
	}
	return path
}
