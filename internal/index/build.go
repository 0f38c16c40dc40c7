package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"fastaidx/internal/callgroup"
	"fastaidx/internal/chunk"
	"fastaidx/internal/logging"
	"fastaidx/internal/scan"
	"fastaidx/internal/source"

	"golang.org/x/sync/errgroup"
)

// DefaultChunksPerWorker is how many chunks the planner aims for per worker.
const DefaultChunksPerWorker = 1

// Options configures a build.
type Options struct {
	// Parallelism is the maximum number of concurrent scan tasks.
	Parallelism int
	// ChunksPerWorker multiplies Parallelism into the requested chunk
	// count. Zero means DefaultChunksPerWorker.
	ChunksPerWorker int
	// Marker is the byte that starts a header line. Zero means '>'.
	Marker byte
	// Lookahead bounds the planner's search for a line start. Zero means
	// chunk.DefaultLookahead.
	Lookahead int64
	// BlockSize is the read size of sequential builds. Zero means
	// scan.DefaultBlockSize.
	BlockSize int
	// Files is how many inputs BuildAll indexes at once. Zero means one.
	Files int
	// Logger receives debug output. Nil discards.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	o.ChunksPerWorker = cmp.Or(o.ChunksPerWorker, DefaultChunksPerWorker)
	o.Marker = cmp.Or(o.Marker, scan.DefaultMarker)
	o.Lookahead = cmp.Or(o.Lookahead, chunk.DefaultLookahead)
	o.BlockSize = cmp.Or(o.BlockSize, scan.DefaultBlockSize)
	o.Files = cmp.Or(o.Files, 1)
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

func (o Options) validate() error {
	switch {
	case o.Parallelism < 1:
		return fmt.Errorf("%w: parallelism must be at least 1, got %d", ErrInvalidInput, o.Parallelism)
	case o.ChunksPerWorker < 1:
		return fmt.Errorf("%w: chunks per worker must be at least 1, got %d", ErrInvalidInput, o.ChunksPerWorker)
	case o.Marker == '\n':
		return fmt.Errorf("%w: marker cannot be a newline", ErrInvalidInput)
	case o.Lookahead < 1 || o.BlockSize < 1 || o.Files < 1:
		return fmt.Errorf("%w: lookahead, block size and files must be positive", ErrInvalidInput)
	}
	return nil
}

// Execute scans every range of plan with at most parallelism tasks running
// at once. Results come back in plan order whatever order the tasks finish
// in: task i writes only results[i].
//
// The first failure cancels the remaining tasks and no new ones are started.
// Execute then returns that failure as a *TaskError and no results.
func Execute(ctx context.Context, src source.Source, plan chunk.Plan, parallelism int, marker byte) ([]scan.ChunkResult, error) {
	if parallelism < 1 {
		return nil, fmt.Errorf("%w: parallelism must be at least 1, got %d", ErrInvalidInput, parallelism)
	}
	results := make([]scan.ChunkResult, len(plan))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, r := range plan {
		// Go blocks while the limit is reached; stop handing out work
		// once a task has failed.
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := scan.Chunk(gctx, src, r, marker)
			if err != nil {
				return &TaskError{Chunk: i, Range: r, Err: err}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// The group's context also ends when the caller's does; a loop that
	// stopped early without a task error must not look like success.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Builder indexes files with one set of options. Concurrent BuildLocation
// calls for the same location share one build.
type Builder struct {
	opts   Options
	logger *slog.Logger
	group  callgroup.Group[string, Index]
}

// NewBuilder validates opts and returns a Builder.
func NewBuilder(opts Options) (*Builder, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Builder{
		opts:   opts,
		logger: logging.Default(opts.Logger).With(logging.ComponentKey, "index"),
	}, nil
}

// Options returns the effective options, defaults filled in.
func (b *Builder) Options() Options { return b.opts }

// Build indexes src: plan, scan in parallel, stitch. The result is the same
// for every parallelism setting.
func (b *Builder) Build(ctx context.Context, src source.Source) (Index, error) {
	if err := ctx.Err(); err != nil {
		return Index{}, err
	}
	start := time.Now()
	length := src.Len()

	requested := b.opts.Parallelism * b.opts.ChunksPerWorker
	plan, stats, err := chunk.NewPlan(ctx, src, requested, b.opts.Lookahead)
	if err != nil {
		return Index{}, fmt.Errorf("plan: %w", err)
	}
	if err := plan.Validate(length); err != nil {
		return Index{}, err
	}
	b.logger.Debug("plan ready",
		"length", length,
		"requested", stats.Requested,
		"chunks", stats.Chunks,
		"no_line_start", stats.NoLineStart,
		"collapsed", stats.Collapsed)

	results, err := Execute(ctx, src, plan, b.opts.Parallelism, b.opts.Marker)
	if err != nil {
		return Index{}, err
	}
	idx, err := Stitch(results, length)
	if err != nil {
		return Index{}, err
	}
	b.logger.Debug("index built",
		"records", idx.Len(),
		"chunks", len(plan),
		"parallelism", b.opts.Parallelism,
		"elapsed", time.Since(start))
	return idx, nil
}

// BuildStream indexes r in one sequential pass. It returns the same Index
// Build would for the same bytes.
func (b *Builder) BuildStream(ctx context.Context, r io.Reader) (Index, error) {
	start := time.Now()
	var entries []Entry
	length, err := scan.Fold(ctx, r, b.opts.Marker, b.opts.BlockSize, func(rec scan.Record) error {
		entries = append(entries, Entry{
			HeaderStart:  rec.HeaderStart,
			HeaderEnd:    rec.HeaderEnd,
			PayloadStart: rec.PayloadStart,
			PayloadEnd:   rec.PayloadEnd.Value,
		})
		return nil
	})
	if err != nil {
		return Index{}, err
	}
	b.logger.Debug("stream indexed", "length", length, "records", len(entries), "elapsed", time.Since(start))
	return Index{Length: length, Entries: entries}, nil
}

// BuildLocation opens location (a path, an object storage URL or "-") the
// way its kind demands and indexes it. A build already running for the same
// location is joined instead of repeated. If ctx ends while waiting, the
// context error is returned and the shared build carries on for the others.
func (b *Builder) BuildLocation(ctx context.Context, location string) (Index, error) {
	if err := ctx.Err(); err != nil {
		return Index{}, err
	}
	idx, shared, err := b.group.Do(ctx, location, func() (Index, error) {
		// Detached so that one caller giving up does not fail the
		// build for everyone else.
		return b.buildLocation(context.WithoutCancel(ctx), location)
	})
	if shared {
		b.logger.Debug("joined in-flight build", "location", location)
	}
	return idx, err
}

func (b *Builder) buildLocation(ctx context.Context, location string) (Index, error) {
	kind, err := source.KindOf(location)
	if err != nil {
		return Index{}, invalidLocation(location, err)
	}
	if !kind.Random() {
		rc, err := source.OpenStream(location)
		if err != nil {
			return Index{}, invalidLocation(location, err)
		}
		defer func() { _ = rc.Close() }()
		return b.BuildStream(ctx, rc)
	}
	src, err := source.Open(ctx, location)
	if err != nil {
		return Index{}, invalidLocation(location, err)
	}
	defer func() { _ = src.Close() }()
	b.logger.Debug("opened", "location", location, "kind", kind, "length", src.Len())
	return b.Build(ctx, src)
}

func invalidLocation(location string, err error) error {
	if errors.Is(err, ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: open %s: %w", ErrInvalidInput, location, err)
}

// BuildAll indexes every location, Options.Files at a time. Results are in
// input order. The first failure stops the rest.
func (b *Builder) BuildAll(ctx context.Context, locations []string) ([]Index, error) {
	out := make([]Index, len(locations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Files)
	for i, loc := range locations {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			idx, err := b.BuildLocation(gctx, loc)
			if err != nil {
				return fmt.Errorf("%s: %w", loc, err)
			}
			out[i] = idx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Build indexes src with opts.
func Build(ctx context.Context, src source.Source, opts Options) (Index, error) {
	b, err := NewBuilder(opts)
	if err != nil {
		return Index{}, err
	}
	return b.Build(ctx, src)
}

// BuildStream indexes r sequentially with opts.
func BuildStream(ctx context.Context, r io.Reader, opts Options) (Index, error) {
	b, err := NewBuilder(opts)
	if err != nil {
		return Index{}, err
	}
	return b.BuildStream(ctx, r)
}
