// Package watcher turns filesystem notifications under a root directory
// into debounced change callbacks.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/devwatch/internal/foundation/errors"
	"git.home.luguber.info/inful/devwatch/internal/logfields"
	"git.home.luguber.info/inful/devwatch/internal/metrics"
)

// DefaultDebounce is the quiet period used when Options.Debounce is zero.
const DefaultDebounce = 200 * time.Millisecond

// ErrSourceClosed is reported when the event source stops on its own.
var ErrSourceClosed = errors.New("event source closed unexpectedly")

// Options configures a Watcher.
type Options struct {
	Root      string
	Recursive bool
	Debounce  time.Duration
	// Ignore drops matching paths; nil uses DefaultIgnore.
	Ignore IgnoreRule
	// OnChange receives the last accepted path of each settled burst.
	OnChange func(ctx context.Context, rel string) error
	// Source overrides the fsnotify source, mainly for tests.
	Source   EventSource
	Logger   *slog.Logger
	Recorder metrics.Recorder
}

// Watcher debounces change notifications under a root directory.
type Watcher struct {
	opts   Options
	root   string
	logger *slog.Logger
	rec    metrics.Recorder

	source EventSource
	cancel context.CancelFunc
	fired  chan string
	done   chan struct{}
	loops  sync.WaitGroup

	mu       sync.Mutex
	timer    *time.Timer
	gen      uint64
	lastPath string
	stopped  bool
	started  bool
	err      error
	stopOnce sync.Once
}

// New creates a watcher. It does not touch the filesystem until Start.
func New(opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Ignore == nil {
		opts.Ignore = DefaultIgnore
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	return &Watcher{
		opts:   opts,
		logger: opts.Logger,
		rec:    opts.Recorder,
		fired:  make(chan string, 1),
		done:   make(chan struct{}),
	}
}

// Start validates the root, opens the event source and begins delivering
// callbacks. Failures are classified watch errors.
func (w *Watcher) Start(ctx context.Context) error {
	root, err := filepath.Abs(w.opts.Root)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryWatch, "invalid watch root").
			Fatal().WithContext("root", w.opts.Root).Build()
	}
	fi, err := os.Stat(root)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryWatch, "watch root not accessible").
			Fatal().WithContext("root", root).Build()
	}
	if !fi.IsDir() {
		return ferrors.WatchError("watch root is not a directory").WithContext("root", root).Build()
	}
	w.root = root

	src := w.opts.Source
	if src == nil {
		src, err = NewFSNotifySource(root, w.opts.Recursive, w.opts.Ignore, w.logger)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryWatch, "cannot start file watcher").
				Fatal().WithContext("root", root).Build()
		}
	}

	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		_ = src.Close()
		return ferrors.InternalError("watcher already started").Build()
	}
	w.started = true
	w.source = src
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.loops.Add(2)
	go w.eventLoop(ctx)
	go w.callbackLoop(ctx)

	w.logger.Info("Watching for file changes",
		logfields.Root(root),
		slog.Bool("recursive", w.opts.Recursive),
		slog.Duration("debounce", w.opts.Debounce))
	return nil
}

// Stop closes the event source and cancels any pending callback. It waits
// for a callback in progress to return and is safe to call repeatedly.
func (w *Watcher) Stop() {
	w.shutdown(nil)
	w.loops.Wait()
}

// Done is closed once the watcher has stopped, either through Stop or
// because the event source failed.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Err returns the failure that stopped the watcher, or nil after Stop.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Watcher) shutdown(cause error) {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.err = cause
		if w.timer != nil {
			w.timer.Stop()
		}
		src, cancel := w.source, w.cancel
		w.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if src != nil {
			if err := src.Close(); err != nil {
				w.logger.Debug("Closing event source", logfields.Error(err))
			}
		}
		close(w.done)
	})
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.loops.Done()
	events, errs := w.source.Events(), w.source.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-events:
			if !ok {
				if ctx.Err() == nil {
					w.fail(ErrSourceClosed)
				}
				return
			}
			w.accept(p)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.fail(err)
			return
		}
	}
}

func (w *Watcher) fail(err error) {
	werr := ferrors.WrapError(err, ferrors.CategoryWatch, "file watcher failed").
		Fatal().WithContext("root", w.root).Build()
	w.logger.Error("File watcher failed", logfields.Root(w.root), logfields.Error(err))
	w.shutdown(werr)
}

func (w *Watcher) accept(p string) {
	rel := w.relative(p)
	if rel == "" || w.ignored(rel) {
		w.rec.IncChangeEvent(false)
		return
	}
	w.rec.IncChangeEvent(true)
	w.logger.Debug("File change detected", logfields.Path(rel))

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.lastPath = rel
	w.gen++
	gen := w.gen
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, func() { w.fire(gen) })
}

// ignored applies the ignore rule with the path's current type. A removed
// path cannot be inspected, so directory-only rules are consulted as well.
func (w *Watcher) ignored(rel string) bool {
	fi, err := os.Lstat(filepath.Join(w.root, filepath.FromSlash(rel)))
	if err != nil {
		return w.opts.Ignore(rel, false) || w.opts.Ignore(rel, true)
	}
	return w.opts.Ignore(rel, fi.IsDir())
}

// fire hands the burst's last path to the callback loop. A stale timer
// (superseded by a later event) does nothing.
func (w *Watcher) fire(gen uint64) {
	w.mu.Lock()
	if w.stopped || gen != w.gen {
		w.mu.Unlock()
		return
	}
	p := w.lastPath
	w.mu.Unlock()

	for {
		select {
		case w.fired <- p:
			return
		default:
		}
		// A callback is still busy and an older path is queued; replace it.
		select {
		case <-w.fired:
		default:
		}
	}
}

func (w *Watcher) callbackLoop(ctx context.Context) {
	defer w.loops.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-w.fired:
			w.logger.Debug("Debounce fired", logfields.Path(p))
			if w.opts.OnChange == nil {
				continue
			}
			if err := w.opts.OnChange(ctx, p); err != nil {
				w.logger.Warn("Change handler failed", logfields.Path(p), logfields.Error(err))
			}
		}
	}
}

// relative maps an event path onto the watch root. Paths outside the root
// yield "".
func (w *Watcher) relative(p string) string {
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p))
	}
	rel, err := filepath.Rel(w.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}
