// Package cli implements the fastaidx command tree.
//
// Configuration is merged once per invocation in the root command's
// PersistentPreRunE: config.Default, then the FASTAIDX_* environment, then
// any flag the user set explicitly. The merged config and the logger built
// from it are shared by every subcommand through app.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fastaidx/internal/config"
	"fastaidx/internal/format"
	"fastaidx/internal/index"
	"fastaidx/internal/logging"
)

// app is the state a subcommand runs with.
type app struct {
	lookup func(string) (string, bool)
	cfg    config.Config
	logger *slog.Logger
	levels *logging.ComponentFilterHandler
}

// NewRootCommand returns the "fastaidx" command with all subcommands wired in.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(version, os.LookupEnv)
}

func newRootCommand(version string, lookup func(string) (string, bool)) *cobra.Command {
	a := &app{lookup: lookup, logger: logging.Discard()}

	cmd := &cobra.Command{
		Use:   "fastaidx",
		Short: "Parallel FASTA record offset indexer",
		Long: "Index the byte offsets of every record in FASTA-like files in parallel, " +
			"read records back by number or name, and keep index sidecars fresh.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.IntP("parallelism", "p", config.Default().Parallelism, "number of concurrent scan workers (or "+config.EnvParallelism+")")
	pf.Int("chunks-per-worker", index.DefaultChunksPerWorker, "chunks planned per worker")
	pf.String("marker", ">", `record marker byte: a character, an escape like \t, or hex like 0x40`)
	pf.String("lookahead", "16MB", "how far a chunk boundary may move to reach a line start")
	pf.Int("files", 1, "number of inputs indexed at the same time")
	pf.String("log-level", "warn", "log level: debug, info, warn or error")
	pf.String("log-format", "text", "log format: text or json")
	pf.StringSlice("log-component", nil, "per-component log level, e.g. index=debug (repeatable)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	cmd.AddCommand(
		newIndexCmd(a),
		newGetCmd(a),
		newVerifyCmd(a),
		newCompressCmd(a),
		newWatchCmd(a),
		versionCmd,
	)
	return cmd
}

// setup merges the configuration layers and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.Default()
	if err := cfg.ApplyEnv(a.lookup); err != nil {
		return err
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger, a.levels = newLogger(cmd.ErrOrStderr(), cfg)
	overrides, _ := cmd.Flags().GetStringSlice("log-component")
	for _, o := range overrides {
		component, level, ok := strings.Cut(o, "=")
		if !ok || component == "" {
			return fmt.Errorf("%w: --log-component %q: want component=level", config.ErrInvalid, o)
		}
		l, err := config.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("%w: --log-component %q: %w", config.ErrInvalid, o, err)
		}
		a.levels.SetLevel(component, l)
	}
	a.logger.Debug("configuration loaded",
		"parallelism", cfg.Parallelism,
		"chunks_per_worker", cfg.ChunksPerWorker,
		"lookahead", cfg.Lookahead,
		"files", cfg.Files,
	)
	return nil
}

// newLogger builds the base handler. Filtering is left to the
// ComponentFilterHandler so levels can be set per component.
func newLogger(w io.Writer, cfg config.Config) (*slog.Logger, *logging.ComponentFilterHandler) {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	var base slog.Handler
	if cfg.LogFormat == "json" {
		base = slog.NewJSONHandler(w, opts)
	} else {
		base = slog.NewTextHandler(w, opts)
	}
	levels := logging.NewComponentFilterHandler(base, cfg.LogLevel)
	return slog.New(levels), levels
}

// applyFlags copies every flag the user set on the command line into cfg.
// Flags a command does not define are skipped.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}
	var err error
	invalid := func(name string, e error) error {
		return fmt.Errorf("%w: --%s: %w", config.ErrInvalid, name, e)
	}

	if changed("parallelism") {
		cfg.Parallelism, _ = flags.GetInt("parallelism")
	}
	if changed("chunks-per-worker") {
		cfg.ChunksPerWorker, _ = flags.GetInt("chunks-per-worker")
	}
	if changed("files") {
		cfg.Files, _ = flags.GetInt("files")
	}
	if changed("marker") {
		s, _ := flags.GetString("marker")
		if cfg.Marker, err = config.ParseMarker(s); err != nil {
			return invalid("marker", err)
		}
	}
	if changed("lookahead") {
		s, _ := flags.GetString("lookahead")
		n, err := config.ParseBytes(s)
		if err != nil {
			return invalid("lookahead", err)
		}
		cfg.Lookahead = int64(n)
	}
	if changed("log-level") {
		s, _ := flags.GetString("log-level")
		if cfg.LogLevel, err = config.ParseLevel(s); err != nil {
			return invalid("log-level", err)
		}
	}
	if changed("log-format") {
		s, _ := flags.GetString("log-format")
		cfg.LogFormat = strings.ToLower(s)
	}
	if changed("format") {
		s, _ := flags.GetString("format")
		if cfg.Format, err = format.ParseFormat(s); err != nil {
			return invalid("format", err)
		}
	}
	if changed("compress") {
		s, _ := flags.GetString("compress")
		if cfg.Compression, err = format.ParseCompression(s); err != nil {
			return invalid("compress", err)
		}
	}
	if changed("rescan") {
		cfg.Rescan, _ = flags.GetDuration("rescan")
	}
	if changed("rescan-cron") {
		cfg.RescanCron, _ = flags.GetString("rescan-cron")
	}
	if changed("min-interval") {
		cfg.MinInterval, _ = flags.GetDuration("min-interval")
	}
	return nil
}

// newBuilder returns an index builder for the merged config.
func (a *app) newBuilder() (*index.Builder, error) {
	return index.NewBuilder(a.cfg.IndexOptions(a.logger))
}
