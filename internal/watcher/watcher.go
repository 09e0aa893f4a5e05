// Package watcher rebuilds the knowledge base when its files change.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"kbassist/internal/contextutil"
	"kbassist/internal/kb"
	"kbassist/internal/service"
)

// Rebuilder performs a full knowledge base rebuild.
type Rebuilder interface {
	Rebuild(ctx context.Context) (service.RebuildResult, error)
}

// NotifyFunc receives the outcome of every rebuild the watcher triggers.
type NotifyFunc func(service.RebuildResult, error)

// Watcher watches the knowledge base root recursively and collapses bursts of
// changes to supported files into a single rebuild.
type Watcher struct {
	fsw       *fsnotify.Watcher
	root      string
	debounce  time.Duration
	rebuilder Rebuilder
	notify    NotifyFunc
}

// New creates a watcher and registers every directory below root.
// Changes made after New returns are observed once Run is called.
func New(root string, debounce time.Duration, rebuilder Rebuilder, notify NotifyFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		fsw:       fsw,
		root:      root,
		debounce:  debounce,
		rebuilder: rebuilder,
		notify:    notify,
	}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes file events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx).With("component", "watcher")
	defer w.fsw.Close()

	logger.InfoContext(ctx, "watching knowledge base", "root", w.root, "debounce", w.debounce)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ctx, event) {
				continue
			}
			logger.DebugContext(ctx, "knowledge base changed", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Stop()
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.WarnContext(ctx, "file watcher error", "error", err)

		case <-fire:
			fire = nil
			w.rebuild(ctx)
		}
	}
}

func (w *Watcher) rebuild(ctx context.Context) {
	logger := contextutil.LoggerFromContext(ctx).With("component", "watcher")
	logger.InfoContext(ctx, "rebuilding knowledge base after file changes")

	result, err := w.rebuilder.Rebuild(ctx)
	if err != nil {
		logger.WarnContext(ctx, "automatic rebuild failed", "error", err)
	}
	if w.notify != nil {
		w.notify(result, err)
	}
}

// relevant reports whether event should trigger a rebuild. New directories
// are added to the watch list and count as a change.
func (w *Watcher) relevant(ctx context.Context, event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if kb.IsHidden(info.Name()) {
				return false
			}
			if err := w.addRecursive(event.Name); err != nil {
				contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to watch new directory", "path", event.Name, "error", err)
			}
			return true
		}
	}
	return kb.IsSupported(event.Name)
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && kb.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
