// Package watch keeps binary index sidecars next to input files up to date.
//
// A Watcher indexes every file matching its patterns once, then rebuilds a
// file's sidecar whenever fsnotify reports a write or a new matching file
// appears. Directories created under a "**" pattern are watched as they
// appear. Bursts of events for one path collapse into a single rebuild, and
// rebuilds of one path are spaced at least MinInterval apart; a change that
// arrives inside the interval is picked up when it ends. An optional periodic
// rescan (interval or cron) catches anything the notifications missed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"fastaidx/internal/callgroup"
	"fastaidx/internal/format"
	"fastaidx/internal/index"
	"fastaidx/internal/logging"
	"fastaidx/internal/source"
)

// Trigger says why a sidecar was looked at.
type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerEvent   Trigger = "event"
	TriggerRescan  Trigger = "rescan"
)

// Event reports one refresh of one input.
type Event struct {
	Path    string
	Sidecar string
	Trigger Trigger
	// Rebuilt is false when the sidecar was already current.
	Rebuilt bool
	Records int
	Err     error
}

// Config configures a Watcher.
type Config struct {
	Patterns    []string
	Rescan      time.Duration
	RescanCron  string
	MinInterval time.Duration
	// Compress stores sidecar entry tables zstd compressed.
	Compress bool
	Logger   *slog.Logger
}

// Watcher maintains sidecars for the files matching its patterns.
type Watcher struct {
	cfg     Config
	builder *index.Builder
	logger  *slog.Logger
	runID   uuid.UUID

	group callgroup.Group[string, refreshed]

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	deferred map[string]*time.Timer
	// gen counts Refresh calls per path. A refresh records the count it
	// started at, so a caller that arrived later knows the shared result
	// may predate its change.
	gen map[string]uint64
	wg  sync.WaitGroup

	// afterBuild, when set, runs between building and writing a sidecar.
	afterBuild func(path string)
}

// refreshed is a refresh result together with the generation it started at.
type refreshed struct {
	ev  Event
	gen uint64
}

// New returns a Watcher that indexes with builder.
func New(builder *index.Builder, cfg Config) (*Watcher, error) {
	if len(cfg.Patterns) == 0 {
		return nil, fmt.Errorf("%w: no patterns to watch", index.ErrInvalidInput)
	}
	for _, p := range cfg.Patterns {
		if p == source.Stdin || source.IsRemote(p) {
			return nil, fmt.Errorf("%w: cannot watch %s", index.ErrInvalidInput, p)
		}
	}
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	logger := logging.Default(cfg.Logger).With(logging.ComponentKey, "watch", "run", runID.String())
	return &Watcher{
		cfg:      cfg,
		builder:  builder,
		logger:   logger,
		runID:    runID,
		limiters: make(map[string]*rate.Limiter),
		deferred: make(map[string]*time.Timer),
		gen:      make(map[string]uint64),
	}, nil
}

// SidecarPath names the binary index kept next to path.
func SidecarPath(path string) string { return path + format.SidecarExt }

// isArtifact reports whether path is one of the watcher's own outputs.
func isArtifact(path string) bool {
	return strings.HasSuffix(path, format.SidecarExt) || strings.Contains(path, format.SidecarExt+format.TempSuffix)
}

// UpToDate reports whether the sidecar of path was written after path was
// last modified, was built with marker and covers the current length.
func UpToDate(path string, marker byte) (bool, error) {
	in, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	side, err := os.Stat(SidecarPath(path))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if side.ModTime().Before(in.ModTime()) {
		return false, nil
	}
	doc, err := format.LoadBinary(SidecarPath(path))
	if err != nil {
		// Unreadable sidecars are rebuilt.
		return false, nil
	}
	return doc.Marker == marker && doc.Index.Length == in.Size(), nil
}

// Refresh rebuilds the sidecar of path unless it is current. Concurrent
// calls for the same path share one refresh. A call that joins a refresh
// which started before it runs one more, forced, since the file may have
// changed after the running refresh read it.
func (w *Watcher) Refresh(ctx context.Context, path string, trigger Trigger) Event {
	w.mu.Lock()
	w.gen[path]++
	want := w.gen[path]
	w.mu.Unlock()

	force := false
	for {
		res, shared, err := w.group.Do(ctx, path, func() (refreshed, error) {
			w.mu.Lock()
			started := w.gen[path]
			w.mu.Unlock()
			return refreshed{ev: w.refresh(context.WithoutCancel(ctx), path, trigger, force), gen: started}, nil
		})
		if err != nil {
			return Event{Path: path, Sidecar: SidecarPath(path), Trigger: trigger, Err: err}
		}
		if res.gen >= want {
			return res.ev
		}
		w.logger.Debug("joined refresh predates change, refreshing again", "path", path, "shared", shared)
		force = true
	}
}

func (w *Watcher) refresh(ctx context.Context, path string, trigger Trigger, force bool) Event {
	ev := Event{Path: path, Sidecar: SidecarPath(path), Trigger: trigger}
	marker := w.builder.Options().Marker
	if !force {
		ok, err := UpToDate(path, marker)
		if err != nil {
			ev.Err = err
			return ev
		}
		if ok {
			return ev
		}
	}

	idx, err := w.builder.BuildLocation(ctx, path)
	if err != nil {
		ev.Err = err
		return ev
	}
	if w.afterBuild != nil {
		w.afterBuild(path)
	}
	data, err := format.EncodeBinary(format.NewDocument(idx, marker), w.cfg.Compress)
	if err != nil {
		ev.Err = err
		return ev
	}
	if err := format.WriteFileAtomic(ev.Sidecar, data); err != nil {
		ev.Err = err
		return ev
	}
	ev.Rebuilt = true
	ev.Records = idx.Len()
	return ev
}

// Rescan refreshes every file matching the patterns. A literal path that
// does not exist yet is skipped; it is picked up once created.
func (w *Watcher) Rescan(ctx context.Context, trigger Trigger, out chan<- Event) error {
	var paths []string
	for _, pattern := range w.cfg.Patterns {
		found, err := source.Discover([]string{pattern})
		if errors.Is(err, os.ErrNotExist) {
			w.logger.Debug("pattern matches nothing yet", "pattern", pattern)
			continue
		}
		if err != nil {
			return err
		}
		paths = append(paths, found...)
	}
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		if isArtifact(p) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		w.emit(ctx, out, w.Refresh(ctx, p, trigger))
	}
	return nil
}

func (w *Watcher) emit(ctx context.Context, out chan<- Event, ev Event) {
	switch {
	case ev.Err != nil:
		w.logger.Warn("refresh failed", "path", ev.Path, "trigger", ev.Trigger, "error", ev.Err)
	case ev.Rebuilt:
		w.logger.Info("sidecar written", "path", ev.Path, "records", ev.Records, "trigger", ev.Trigger)
	default:
		w.logger.Debug("sidecar current", "path", ev.Path, "trigger", ev.Trigger)
	}
	if out == nil {
		return
	}
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// Run indexes everything once and then follows changes until ctx ends.
// Every refresh is reported on out, which may be nil.
func (w *Watcher) Run(ctx context.Context, out chan<- Event) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	// Watch first so that nothing written during the initial pass is lost.
	for _, dir := range source.WatchDirs(w.cfg.Patterns) {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("failed to watch directory", "dir", dir, "error", err)
		}
	}

	if err := w.Rescan(ctx, TriggerStartup, out); err != nil && ctx.Err() == nil {
		return err
	}

	sched, err := w.startScheduler(ctx, out)
	if err != nil {
		return err
	}
	defer func() {
		if sched != nil {
			_ = sched.Shutdown()
		}
		w.stopDeferred()
		w.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(ctx, fsw, event, out)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) startScheduler(ctx context.Context, out chan<- Event) (gocron.Scheduler, error) {
	var def gocron.JobDefinition
	switch {
	case w.cfg.RescanCron != "":
		def = gocron.CronJob(w.cfg.RescanCron, true)
	case w.cfg.Rescan > 0:
		def = gocron.DurationJob(w.cfg.Rescan)
	default:
		return nil, nil
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create rescan scheduler: %w", err)
	}
	_, err = s.NewJob(def,
		gocron.NewTask(func() {
			if err := w.Rescan(ctx, TriggerRescan, out); err != nil && ctx.Err() == nil {
				w.logger.Warn("rescan failed", "error", err)
			}
		}),
		gocron.WithName("rescan"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("create rescan job: %w", err)
	}
	s.Start()
	w.logger.Info("rescan scheduled", "interval", w.cfg.Rescan, "cron", w.cfg.RescanCron)
	return s, nil
}

func (w *Watcher) handleFSEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event, out chan<- Event) {
	path := event.Name
	if event.Has(fsnotify.Create) && source.Recursive(path, w.cfg.Patterns) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.watchTree(ctx, fsw, path, out)
			return
		}
	}
	if isArtifact(path) || !source.MatchesAny(path, w.cfg.Patterns) {
		return
	}
	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		w.schedule(ctx, path, out)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.forget(path)
		w.logger.Debug("input removed", "path", path)
	}
}

// watchTree watches a directory created under a "**" pattern and everything
// below it. Files already inside may have landed before the watch was in
// place, so matching ones are scheduled.
func (w *Watcher) watchTree(ctx context.Context, fsw *fsnotify.Watcher, dir string, out chan<- Event) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				w.logger.Warn("failed to watch directory", "dir", path, "error", err)
			} else {
				w.logger.Debug("watching new directory", "dir", path)
			}
			return nil
		}
		if !isArtifact(path) && source.MatchesAny(path, w.cfg.Patterns) {
			w.schedule(ctx, path, out)
		}
		return nil
	})
}

// schedule refreshes path now if its limiter allows, or once at the end of
// the current interval otherwise. At most one deferred refresh is pending
// per path.
func (w *Watcher) schedule(ctx context.Context, path string, out chan<- Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, pending := w.deferred[path]; pending {
		return
	}
	lim := w.limiter(path)
	r := lim.Reserve()
	delay := r.Delay()

	run := func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.deferred, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.emit(ctx, out, w.Refresh(ctx, path, TriggerEvent))
	}

	w.wg.Add(1)
	if delay == 0 {
		go run()
		return
	}
	w.deferred[path] = time.AfterFunc(delay, run)
}

// limiter returns the rebuild limiter of path. Caller must hold w.mu.
func (w *Watcher) limiter(path string) *rate.Limiter {
	lim, ok := w.limiters[path]
	if !ok {
		every := rate.Inf
		if w.cfg.MinInterval > 0 {
			every = rate.Every(w.cfg.MinInterval)
		}
		lim = rate.NewLimiter(every, 1)
		w.limiters[path] = lim
	}
	return lim
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.deferred[path]; ok && t.Stop() {
		delete(w.deferred, path)
		w.wg.Done()
	}
	delete(w.limiters, path)
}

func (w *Watcher) stopDeferred() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.deferred {
		if t.Stop() {
			delete(w.deferred, path)
			w.wg.Done()
		}
	}
}
