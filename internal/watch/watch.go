// Package watch reruns a build whenever one of its input files changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
)

const DefaultDebounce = 200 * time.Millisecond

// Watcher watches a fixed set of files. fsnotify watches directories, so the
// parent of every file is added and events for other entries are dropped.
type Watcher struct {
	// Debounce is how long the watcher waits after the last change before
	// rebuilding.
	Debounce time.Duration

	watcher  *fsnotify.Watcher
	files    map[string]struct{}
	rebuild  func(context.Context) error
	rebuilds atomic.Int64
}

// New starts watching the directories holding paths. Call Close when done.
func New(paths []string, rebuild func(context.Context) error) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("nothing to watch")
	}

	files := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		files[abs] = struct{}{}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	dirs := lo.Uniq(lo.Map(lo.Keys(files), func(f string, _ int) string { return filepath.Dir(f) }))
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	return &Watcher{
		Debounce: DefaultDebounce,
		watcher:  fw,
		files:    files,
		rebuild:  rebuild,
	}, nil
}

// Rebuilds returns how many rebuilds have run, failed ones included.
func (w *Watcher) Rebuilds() int64 {
	return w.rebuilds.Load()
}

// Files returns the watched files, sorted.
func (w *Watcher) Files() []string {
	files := lo.Keys(w.files)
	slices.Sort(files)
	return files
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	_, ok := w.files[filepath.Clean(ev.Name)]
	return ok
}

// Run blocks until ctx is cancelled, rebuilding after each burst of
// changes. A failed rebuild is reported and watching continues.
func (w *Watcher) Run(ctx context.Context) error {
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		changed string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			changed = ev.Name
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			pterm.Warning.Printf("Watch error: %v\n", err)

		case <-fire:
			fire = nil
			pterm.Info.Printf("%s changed, rebuilding...\n", changed)
			w.rebuilds.Add(1)
			if err := w.rebuild(ctx); err != nil {
				pterm.Error.Printf("Rebuild failed: %v\n", err)
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
