// Command fastaidx indexes the records of FASTA-like files in parallel.
//
// Logging:
//   - The base logger is built by the root command once flags and the
//     environment are merged
//   - Loggers are passed to components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fastaidx/cmd/fastaidx/cli"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCommand(version).ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
