package cli

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fastaidx/internal/format"
	"fastaidx/internal/index"
	"fastaidx/internal/source"
)

// ErrVerifyFailed is returned when an index does not describe its input.
var ErrVerifyFailed = errors.New("index does not match input")

type verifyReport struct {
	Input   string `json:"input"`
	Index   string `json:"index"`
	ID      string `json:"id,omitempty"`
	Length  int64  `json:"length"`
	Records int    `json:"records"`
	OK      bool   `json:"ok"`
	Problem string `json:"problem,omitempty"`
}

func newVerifyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <file> <index>",
		Short: "Check an index file against its input",
		Long: "Decodes an index in any format and checks that it covers the input's length, " +
			"that its entries are ordered and contiguous, and that every header starts with the marker. " +
			"Binary and msgpack indexes carry the marker they were built with; text indexes use --marker.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return a.runVerify(cmd, args[0], args[1], asJSON)
		},
	}
	cmd.Flags().Bool("json", false, "print the report as JSON")
	return cmd
}

func (a *app) runVerify(cmd *cobra.Command, location, indexPath string, asJSON bool) error {
	doc, err := format.Load(indexPath)
	if err != nil {
		return fmt.Errorf("%w: %w", index.ErrInvalidInput, err)
	}
	src, err := source.Open(cmd.Context(), location)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", index.ErrInvalidInput, location, err)
	}
	defer func() { _ = src.Close() }()

	report := verifyReport{
		Input:   location,
		Index:   indexPath,
		Length:  doc.Index.Length,
		Records: doc.Index.Len(),
	}
	if doc.ID != uuid.Nil {
		report.ID = doc.ID.String()
	}
	problem := verifyIndex(src, doc.Index, cmp.Or(doc.Marker, a.cfg.Marker))
	report.OK = problem == nil
	if problem != nil {
		report.Problem = problem.Error()
		a.logger.Warn("verify failed", "input", location, "index", indexPath, "error", problem)
	}

	p := newPrinter(cmd.OutOrStdout(), asJSON)
	if err := p.print(report, [][2]string{
		{"Input", report.Input},
		{"Index", report.Index},
		{"Length", strconv.FormatInt(report.Length, 10)},
		{"Records", strconv.Itoa(report.Records)},
		{"OK", strconv.FormatBool(report.OK)},
	}); err != nil {
		return err
	}
	if problem != nil {
		return fmt.Errorf("%w: %w", ErrVerifyFailed, problem)
	}
	return nil
}

// verifyIndex reports the first way idx fails to describe src.
func verifyIndex(src source.Source, idx index.Index, marker byte) error {
	// A text index without records cannot carry the input length.
	if idx.Length != src.Len() && !(idx.Len() == 0 && idx.Length == 0) {
		return fmt.Errorf("index covers %d bytes, input has %d", idx.Length, src.Len())
	}
	if err := idx.Validate(); err != nil {
		return err
	}
	for i, e := range idx.Entries {
		b, err := src.Slice(e.HeaderStart, e.HeaderStart+1)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if b[0] != marker {
			return fmt.Errorf("record %d: byte at %d is %q, not the marker %q", i, e.HeaderStart, b[0], marker)
		}
		if e.HeaderEnd < src.Len() {
			nl, err := src.Slice(e.HeaderEnd, e.HeaderEnd+1)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			if nl[0] != '\n' {
				return fmt.Errorf("record %d: header does not end at a line break", i)
			}
		}
		if e.HeaderStart > 0 {
			prev, err := src.Slice(e.HeaderStart-1, e.HeaderStart)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			if prev[0] != '\n' {
				return fmt.Errorf("record %d: header at %d does not start a line", i, e.HeaderStart)
			}
		}
	}
	return nil
}
