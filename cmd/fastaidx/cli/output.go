package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// printer handles key-value or JSON output of reports.
type printer struct {
	json bool
	w    io.Writer
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	return &printer{json: asJSON, w: w}
}

// print writes v as indented JSON in JSON mode and pairs as a detail view
// otherwise.
func (p *printer) print(v any, pairs [][2]string) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	p.kv(pairs)
	return nil
}

// kv prints a key-value detail view.
func (p *printer) kv(pairs [][2]string) {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	for _, pair := range pairs {
		_, _ = fmt.Fprintf(tw, "%s:\t%s\n", pair[0], pair[1])
	}
	_ = tw.Flush()
}
