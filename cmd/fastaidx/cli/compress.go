package cli

import (
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"fastaidx/internal/index"
	"fastaidx/internal/source"
)

func newCompressCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compress <file>",
		Short: "Write a seekable zstd copy of a file",
		Long: "Writes <file>.zst in the seekable zstd format. The copy can be indexed and " +
			"its records read without decompressing the whole file.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			level, _ := cmd.Flags().GetString("level")
			return a.runCompress(args[0], output, level)
		},
	}
	cmd.Flags().StringP("output", "o", "", "output path (default <file>.zst)")
	cmd.Flags().String("level", "default", "zstd level: fastest, default, better or best")
	return cmd
}

func (a *app) runCompress(path, output, levelName string) error {
	ok, level := zstd.EncoderLevelFromString(levelName)
	if !ok {
		return fmt.Errorf("%w: zstd level %q", index.ErrInvalidInput, levelName)
	}
	if output == "" {
		output = path + ".zst"
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %w", index.ErrInvalidInput, err)
	}
	if err := source.CompressSeekable(path, output, level); err != nil {
		return fmt.Errorf("compress %s: %w", path, err)
	}
	a.logger.Info("seekable copy written", "input", path, "output", output, "level", level.String())
	return nil
}
