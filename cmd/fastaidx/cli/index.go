package cli

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fastaidx/internal/format"
	"fastaidx/internal/index"
	"fastaidx/internal/source"
	"fastaidx/internal/sysmetrics"
)

func newIndexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [paths|globs|s3://bucket/key|gs://bucket/object|az://account/container/blob|-]...",
		Short: "Index the records of one or more inputs",
		Long: "Indexes every record of each input and writes one line per record: " +
			"header_start header_end payload_start payload_end. With no input, " +
			"standard input is read. Globs may use ** to match across directories.\n\n" +
			"A single input is written to --output or standard output. Several inputs " +
			"need --sidecar, which writes <input>" + format.SidecarExt + " next to each one.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			sidecar, _ := cmd.Flags().GetBool("sidecar")
			headersOnly, _ := cmd.Flags().GetBool("headers-only")
			stats, _ := cmd.Flags().GetBool("stats")
			return a.runIndex(cmd, args, indexFlags{
				output:      output,
				sidecar:     sidecar,
				headersOnly: headersOnly,
				stats:       stats,
			})
		},
	}

	cmd.Flags().StringP("format", "f", "text", "index format: text, binary or msgpack")
	cmd.Flags().StringP("output", "o", "", "write the index to this file instead of standard output")
	cmd.Flags().Bool("sidecar", false, "write a binary <input>"+format.SidecarExt+" next to each input")
	cmd.Flags().String("compress", "none", "output compression: none, zstd, br or gzip")
	cmd.Flags().Bool("headers-only", false, "print only header_start header_end per record")
	cmd.Flags().Bool("stats", false, "print records, throughput, CPU and memory use to standard error")
	cmd.MarkFlagsMutuallyExclusive("output", "sidecar")
	cmd.MarkFlagsMutuallyExclusive("headers-only", "sidecar")
	return cmd
}

type indexFlags struct {
	output      string
	sidecar     bool
	headersOnly bool
	stats       bool
}

func (a *app) runIndex(cmd *cobra.Command, args []string, fl indexFlags) error {
	output, sidecar, headersOnly := fl.output, fl.sidecar, fl.headersOnly
	if len(args) == 0 {
		args = []string{source.Stdin}
	}
	locations, err := source.Discover(args)
	if err != nil {
		return fmt.Errorf("%w: %w", index.ErrInvalidInput, err)
	}
	if len(locations) == 0 {
		return fmt.Errorf("%w: no input matches %s", index.ErrInvalidInput, strings.Join(args, " "))
	}
	if len(locations) > 1 && !sidecar {
		return fmt.Errorf("%w: %d inputs need --sidecar", index.ErrInvalidInput, len(locations))
	}
	if sidecar {
		for _, loc := range locations {
			if loc == source.Stdin || source.IsRemote(loc) {
				return fmt.Errorf("%w: no sidecar can be written for %s", index.ErrInvalidInput, loc)
			}
		}
	}
	if headersOnly && a.cfg.Format != format.FormatText {
		return fmt.Errorf("%w: --headers-only prints text", index.ErrInvalidInput)
	}

	b, err := a.newBuilder()
	if err != nil {
		return err
	}
	sampler := sysmetrics.Start()
	var indexes []index.Index
	if locations[0] == source.Stdin {
		idx, err := b.BuildStream(cmd.Context(), cmd.InOrStdin())
		if err != nil {
			return err
		}
		indexes = []index.Index{idx}
	} else {
		indexes, err = b.BuildAll(cmd.Context(), locations)
		if err != nil {
			return err
		}
	}

	if fl.stats {
		printStats(cmd.ErrOrStderr(), indexes, sampler.Stop(), a.cfg.Parallelism)
	}

	if sidecar {
		compress := a.cfg.Compression
		for i, loc := range locations {
			path := loc + format.SidecarExt
			if err := format.Save(path, format.FormatBinary, compress, format.NewDocument(indexes[i], a.cfg.Marker)); err != nil {
				return fmt.Errorf("write sidecar %s: %w", path, err)
			}
			a.logger.Info("sidecar written", "path", path, "records", indexes[i].Len())
		}
		return nil
	}

	idx := indexes[0]
	if headersOnly {
		return writeTo(cmd.OutOrStdout(), output, func(w io.Writer) error {
			return format.WriteHeaders(w, idx)
		})
	}
	doc := format.NewDocument(idx, a.cfg.Marker)
	if output != "" {
		compress := a.cfg.Compression
		if !cmd.Flags().Changed("compress") && a.cfg.Format != format.FormatBinary {
			compress = format.CompressionOf(output)
		}
		return format.Save(output, a.cfg.Format, compress, doc)
	}
	return format.Write(cmd.OutOrStdout(), a.cfg.Format, a.cfg.Compression, doc)
}

// writeTo runs write against path, or against stdout when path is empty.
func writeTo(stdout io.Writer, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(stdout)
	}
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	return format.WriteFileAtomic(path, buf.Bytes())
}

// printStats reports what indexing cost.
func printStats(w io.Writer, indexes []index.Index, u sysmetrics.Usage, parallelism int) {
	var records int
	var size int64
	for _, idx := range indexes {
		records += idx.Len()
		size += idx.Length
	}
	throughput := 0.0
	if secs := u.Wall.Seconds(); secs > 0 {
		throughput = float64(size) / (1 << 20) / secs
	}
	newPrinter(w, false).kv([][2]string{
		{"Inputs", strconv.Itoa(len(indexes))},
		{"Records", strconv.Itoa(records)},
		{"Bytes", strconv.FormatInt(size, 10)},
		{"Parallelism", strconv.Itoa(parallelism)},
		{"Elapsed", u.Wall.Round(time.Microsecond).String()},
		{"Throughput", fmt.Sprintf("%.1f MiB/s", throughput)},
		{"CPU", fmt.Sprintf("%.0f%%", u.CPUPercent())},
		{"Memory in use", strconv.FormatInt(u.MemoryInuse, 10)},
		{"Peak RSS", strconv.FormatInt(u.PeakRSS, 10)},
	})
}
