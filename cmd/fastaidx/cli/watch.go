package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fastaidx/internal/format"
	"fastaidx/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <paths|globs>...",
		Short: "Keep index sidecars next to matching files up to date",
		Long: "Indexes every matching file into <file>" + format.SidecarExt + ", then rebuilds a " +
			"sidecar whenever its file is written and indexes new matching files. Rebuilds of " +
			"one file are at least --min-interval apart. --rescan or --rescan-cron adds a " +
			"periodic full pass. Runs until interrupted.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd, args)
		},
	}
	cmd.Flags().Duration("rescan", 0, "interval of a full rescan, 0 to disable")
	cmd.Flags().String("rescan-cron", "", "cron schedule of a full rescan, instead of --rescan")
	cmd.Flags().Duration("min-interval", 2*time.Second, "minimum time between rebuilds of one file")
	cmd.Flags().String("compress", "none", "sidecar compression: none or zstd")
	cmd.MarkFlagsMutuallyExclusive("rescan", "rescan-cron")
	return cmd
}

func (a *app) runWatch(cmd *cobra.Command, patterns []string) error {
	if c := a.cfg.Compression; c != format.CompressNone && c != format.CompressZstd {
		return fmt.Errorf("%w: sidecars support zstd compression only", format.ErrUnsupported)
	}
	b, err := a.newBuilder()
	if err != nil {
		return err
	}
	w, err := watch.New(b, watch.Config{
		Patterns:    patterns,
		Rescan:      a.cfg.Rescan,
		RescanCron:  a.cfg.RescanCron,
		MinInterval: a.cfg.MinInterval,
		Compress:    a.cfg.Compression == format.CompressZstd,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}

	events := make(chan watch.Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		out := cmd.OutOrStdout()
		for ev := range events {
			switch {
			case ev.Err != nil:
				_, _ = fmt.Fprintf(out, "error\t%s\t%s\t%v\n", ev.Trigger, ev.Path, ev.Err)
			case ev.Rebuilt:
				_, _ = fmt.Fprintf(out, "indexed\t%s\t%s\t%d\n", ev.Trigger, ev.Path, ev.Records)
			}
		}
	}()

	err = w.Run(cmd.Context(), events)
	close(events)
	<-done
	return err
}
