// Package watcher implements the debounced filesystem watcher of §4.8:
// fsnotify events are coalesced into a single reindex request once no
// further event for any watched file arrives within the debounce window
// D. The window is shared by all files, not kept per file, so a steady
// stream of events on other files postpones the request for a file
// whose own events have already stopped.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/fenwick-labs/codegraph/internal/debug"
)

// DefaultDebounce matches the teacher's default watch debounce (short
// enough to feel instant, long enough to coalesce an editor's
// temp-file-then-rename save sequence into one event).
const DefaultDebounce = 50 * time.Millisecond

// Watcher recursively watches a project root via fsnotify and
// debounces change bursts across all files into a single OnChange callback
// invocation carrying every distinct path that changed in the window.
type Watcher struct {
	root        string
	ignoreGlobs []string
	debounce    time.Duration
	fsw         *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onChange func(paths []string)
}

// New returns a watcher rooted at root. debounce <= 0 falls back to
// DefaultDebounce. onChange is invoked from the watcher's internal
// goroutine each time the debounce window closes with at least one
// pending path; it must not block for long.
func New(root string, ignoreGlobs []string, debounce time.Duration, onChange func(paths []string)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		root:        root,
		ignoreGlobs: ignoreGlobs,
		debounce:    debounce,
		fsw:         fsw,
		pending:     make(map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
		onChange:    onChange,
	}, nil
}

// Start adds recursive watches under root and begins processing
// fsnotify events in a background goroutine.
func (w *Watcher) Start() error {
	if err := w.addWatches(w.root); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.processEvents()
	debug.LogWatcher("started watcher rooted at %s (debounce=%s)\n", w.root, w.debounce)
	return nil
}

// Stop cancels event processing, closes the fsnotify watcher, and
// waits for the background goroutine to exit. Pending debounced events
// at shutdown are discarded rather than flushed, since the caller is
// tearing the watcher down and has no indexer left to notify.
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.fsw.Close()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.wg.Wait()
	return err
}

// addWatches recursively adds fsnotify watches for every non-ignored
// directory under root. filepath.WalkDir does not descend into
// symlinked directories, so those are not watched; the visited set of
// real paths skips a directory that was already added.
func (w *Watcher) addWatches(root string) error {
	visited := make(map[string]struct{})
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}

		real, resolveErr := filepath.EvalSymlinks(path)
		if resolveErr != nil {
			return nil
		}
		if _, dup := visited[real]; dup {
			return filepath.SkipDir
		}
		visited[real] = struct{}{}

		rel, relErr := filepath.Rel(w.root, path)
		if relErr == nil && w.isIgnored(rel) {
			return filepath.SkipDir
		}

		if err := w.fsw.Add(path); err != nil {
			debug.LogWatcher("failed to add watch for %s: %v\n", path, err)
		}
		return nil
	})
}

func (w *Watcher) isIgnored(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.ignoreGlobs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			debug.LogWatcher("fsnotify error: %v\n", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	rel, relErr := filepath.Rel(w.root, path)
	if relErr == nil && w.isIgnored(rel) {
		return
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		// Most likely a removal; still worth a debounced reindex since
		// the indexer's Classifying phase detects the deletion itself.
		w.scheduleFile(path)
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := w.addWatches(path); err != nil {
				debug.LogWatcher("failed to add watches under new directory %s: %v\n", path, err)
			}
		}
		return
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0:
		w.scheduleFile(path)
	}
}

// scheduleFile records path as pending and resets the debounce timer,
// coalescing an arbitrary burst of events for the same path (or any
// mix of paths) into one OnChange call once the window closes with no
// further activity — the same reset-on-every-event shape as the
// teacher's eventDebouncer.addEvent.
func (w *Watcher) scheduleFile(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
	debug.LogWatcher("scheduled debounced change for %s (pending=%d)\n", path, len(w.pending))
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}

	debug.LogWatcher("debounce window closed with %d changed path(s)\n", len(paths))
	if w.onChange != nil {
		w.onChange(paths)
	}
}

// PendingCount returns the number of paths currently awaiting a
// debounced flush, for tests and diagnostics.
func (w *Watcher) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
