package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/quarry-search/quarry/internal/ignore"
)

// Watcher turns raw filesystem notifications into debounced batches of
// FileEvents with root-relative paths. Ignored paths never reach the
// debouncer.
type Watcher struct {
	opts      Options
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	matcher   *ignore.Matcher
	root      string
	errors    chan error

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a watcher. Call Start to begin receiving events.
func New(opts Options) *Watcher {
	opts = opts.WithDefaults()
	return &Watcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.EventBufferSize),
		errors:    make(chan error, 10),
	}
}

// Start begins watching path and all its subdirectories.
func (w *Watcher) Start(ctx context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.root = abs

	w.matcher = ignore.New()
	w.matcher.AddPattern(".git/")
	w.matcher.AddPattern(".quarry/")
	for _, p := range w.opts.IgnorePatterns {
		w.matcher.AddPattern(p)
	}
	gitignorePath := filepath.Join(abs, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		if err := w.matcher.AddFromFile(gitignorePath); err != nil {
			slog.Warn("failed to load .gitignore", "path", gitignorePath, "error", err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	if err := w.addRecursive(abs); err != nil {
		fsw.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true

	w.wg.Add(1)
	go w.loop(runCtx)

	slog.Debug("watcher started", "root", abs, "debounce", w.opts.DebounceWindow)
	return nil
}

// addRecursive registers dir and every non-ignored subdirectory.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel := w.relPath(path)
		if rel != "." && w.matcher.Match(rel, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) relPath(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
				slog.Warn("watcher error channel full", "error", err)
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	op, ok := mapOp(ev.Op)
	if !ok {
		return
	}

	rel := w.relPath(ev.Name)
	if rel == "." || strings.HasPrefix(rel, "..") {
		return
	}

	isDir := false
	if op != OpDelete {
		if info, err := os.Stat(ev.Name); err == nil {
			isDir = info.IsDir()
		}
	}

	if w.matcher.Match(rel, isDir) {
		return
	}

	// New directories need their own watch before events inside them
	// can be seen.
	if isDir && op == OpCreate {
		if err := w.addRecursive(ev.Name); err != nil {
			slog.Warn("failed to watch new directory", "path", ev.Name, "error", err)
		}
	}

	w.debouncer.Add(FileEvent{
		Path:      rel,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// mapOp converts an fsnotify op to an Operation. Chmod-only events are
// dropped; renames surface as deletes of the old path.
func mapOp(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete, true
	default:
		return 0, false
	}
}

// Events returns the channel of debounced event batches.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns the channel of watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped || !w.started {
		w.stopped = true
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := w.fsw.Close()
	w.wg.Wait()
	w.debouncer.Stop()
	return err
}
