// Package config holds the run configuration of fastaidx.
//
// Values come from three layers, lowest first: Default, the FASTAIDX_*
// environment (ApplyEnv), and command line flags set by the CLI. There is no
// config file. Validate checks the merged result once, before any work
// starts.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"fastaidx/internal/chunk"
	"fastaidx/internal/format"
	"fastaidx/internal/index"
	"fastaidx/internal/scan"
)

// Environment variables read by ApplyEnv.
const (
	EnvParallelism     = "FASTAIDX_PARALLELISM"
	EnvChunksPerWorker = "FASTAIDX_CHUNKS_PER_WORKER"
	EnvLookahead       = "FASTAIDX_LOOKAHEAD"
	EnvMarker          = "FASTAIDX_MARKER"
	EnvLogLevel        = "FASTAIDX_LOG_LEVEL"
	EnvLogFormat       = "FASTAIDX_LOG_FORMAT"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is everything a command needs to know before it runs.
type Config struct {
	Parallelism     int
	ChunksPerWorker int
	Marker          byte
	Lookahead       int64
	BlockSize       int
	// Files is how many inputs are indexed at the same time.
	Files int

	Format      format.Format
	Compression format.Compression

	LogLevel  slog.Level
	LogFormat string // "text" or "json"

	// Watch settings.
	Rescan      time.Duration // zero disables the periodic rescan
	RescanCron  string        // alternative to Rescan
	MinInterval time.Duration // minimum time between rebuilds of one file
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Parallelism:     runtime.NumCPU(),
		ChunksPerWorker: index.DefaultChunksPerWorker,
		Marker:          scan.DefaultMarker,
		Lookahead:       chunk.DefaultLookahead,
		BlockSize:       scan.DefaultBlockSize,
		Files:           1,
		Format:          format.FormatText,
		Compression:     format.CompressNone,
		LogLevel:        slog.LevelWarn,
		LogFormat:       "text",
		MinInterval:     2 * time.Second,
	}
}

// ApplyEnv overrides c from the environment. lookup is os.LookupEnv outside
// of tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvParallelism); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, EnvParallelism, err)
		}
		c.Parallelism = n
	}
	if v, ok := lookup(EnvChunksPerWorker); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, EnvChunksPerWorker, err)
		}
		c.ChunksPerWorker = n
	}
	if v, ok := lookup(EnvLookahead); ok {
		n, err := ParseBytes(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, EnvLookahead, err)
		}
		c.Lookahead = int64(n)
	}
	if v, ok := lookup(EnvMarker); ok {
		m, err := ParseMarker(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, EnvMarker, err)
		}
		c.Marker = m
	}
	if v, ok := lookup(EnvLogLevel); ok {
		l, err := ParseLevel(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, EnvLogLevel, err)
		}
		c.LogLevel = l
	}
	if v, ok := lookup(EnvLogFormat); ok {
		c.LogFormat = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.Parallelism < 1:
		return fmt.Errorf("%w: parallelism must be at least 1, got %d", ErrInvalid, c.Parallelism)
	case c.ChunksPerWorker < 1:
		return fmt.Errorf("%w: chunks per worker must be at least 1, got %d", ErrInvalid, c.ChunksPerWorker)
	case c.Marker == '\n':
		return fmt.Errorf("%w: marker cannot be a newline", ErrInvalid)
	case c.Lookahead < 1:
		return fmt.Errorf("%w: lookahead must be positive, got %d", ErrInvalid, c.Lookahead)
	case c.BlockSize < 1:
		return fmt.Errorf("%w: block size must be positive, got %d", ErrInvalid, c.BlockSize)
	case c.Files < 1:
		return fmt.Errorf("%w: files must be at least 1, got %d", ErrInvalid, c.Files)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log format %q", ErrInvalid, c.LogFormat)
	case c.Rescan < 0 || c.MinInterval < 0:
		return fmt.Errorf("%w: intervals cannot be negative", ErrInvalid)
	case c.Rescan > 0 && c.RescanCron != "":
		return fmt.Errorf("%w: rescan interval and rescan cron are exclusive", ErrInvalid)
	}
	if c.Format == format.FormatBinary && c.Compression != format.CompressNone && c.Compression != format.CompressZstd {
		return fmt.Errorf("%w: binary indexes support zstd compression only", ErrInvalid)
	}
	return ValidateCron(c.RescanCron)
}

// IndexOptions maps c onto the builder options.
func (c Config) IndexOptions(logger *slog.Logger) index.Options {
	return index.Options{
		Parallelism:     c.Parallelism,
		ChunksPerWorker: c.ChunksPerWorker,
		Marker:          c.Marker,
		Lookahead:       c.Lookahead,
		BlockSize:       c.BlockSize,
		Files:           c.Files,
		Logger:          logger,
	}
}

// ParseMarker accepts a single byte, or an escape such as "\t" or "0x40".
func ParseMarker(s string) (byte, error) {
	switch {
	case len(s) == 1:
		return s[0], nil
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		n, err := strconv.ParseUint(s[2:], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("marker %q: %w", s, err)
		}
		return byte(n), nil
	case strings.HasPrefix(s, `\`):
		u, err := strconv.Unquote(`'` + s + `'`)
		if err != nil || len(u) != 1 {
			return 0, fmt.Errorf("marker %q is not a single byte escape", s)
		}
		return u[0], nil
	}
	return 0, fmt.Errorf("marker %q must be a single byte", s)
}

// ParseLevel accepts slog level names, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, err
	}
	return l, nil
}

// ParseBytes parses a byte size string with optional suffix (B, KB, MB, GB).
func ParseBytes(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}

	s = strings.ToUpper(s)

	var multiplier uint64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1 << 30
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1 << 20
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1 << 10
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	n, err := strconv.ParseUint(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}
	return n * multiplier, nil
}

// ValidateCron checks a 5-field or 6-field cron expression. Empty is valid.
func ValidateCron(expr string) error {
	if expr == "" {
		return nil
	}
	cr := gocron.NewDefaultCron(true)
	if err := cr.IsValid(expr, time.UTC, time.Now()); err != nil {
		return fmt.Errorf("%w: cron expression: %w", ErrInvalid, err)
	}
	return nil
}
