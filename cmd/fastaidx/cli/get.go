package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fastaidx/internal/format"
	"fastaidx/internal/index"
	"fastaidx/internal/source"
	"fastaidx/internal/watch"
)

func newGetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <file> <n|name>",
		Short: "Print one record",
		Long: "Prints record n (0-based) or the first record whose header, or header up to " +
			"the first space, equals name. A current " + format.SidecarExt + " sidecar is used " +
			"when present; otherwise the file is indexed first. Only the record's own bytes are read.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payloadOnly, _ := cmd.Flags().GetBool("payload")
			return a.runGet(cmd, args[0], args[1], payloadOnly)
		},
	}
	cmd.Flags().Bool("payload", false, "print only the payload")
	return cmd
}

func (a *app) runGet(cmd *cobra.Command, location, key string, payloadOnly bool) error {
	ctx := cmd.Context()
	src, err := source.Open(ctx, location)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", index.ErrInvalidInput, location, err)
	}
	defer func() { _ = src.Close() }()

	idx, err := a.loadOrBuild(ctx, location)
	if err != nil {
		return err
	}
	rec, n, err := idx.Lookup(src, key)
	if err != nil {
		return err
	}
	a.logger.Debug("record found", "location", location, "record", n, "name", rec.Name())

	w := cmd.OutOrStdout()
	if !payloadOnly {
		header, err := src.Slice(rec.Entry.HeaderStart, rec.Entry.HeaderEnd)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n", header); err != nil {
			return err
		}
	}
	_, err = w.Write(rec.Payload)
	return err
}

// loadOrBuild uses the sidecar of location when it is current and was built
// with the configured marker, and builds the index otherwise.
func (a *app) loadOrBuild(ctx context.Context, location string) (index.Index, error) {
	if !source.IsRemote(location) {
		if ok, err := watch.UpToDate(location, a.cfg.Marker); err == nil && ok {
			doc, err := format.LoadBinary(watch.SidecarPath(location))
			if err == nil {
				a.logger.Debug("using sidecar", "path", watch.SidecarPath(location))
				return doc.Index, nil
			}
		}
	}
	b, err := a.newBuilder()
	if err != nil {
		return index.Index{}, err
	}
	return b.BuildLocation(ctx, location)
}
