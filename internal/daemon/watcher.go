package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/sitepub/internal/logfields"
)

// Triggerer requests a pipeline run. Satisfied by *Daemon.
type Triggerer interface {
	Trigger(reason string) bool
}

// SourceWatcher watches a local source tree and triggers a run after the
// change burst settles. Editors and generators write many files in quick
// succession, so events only fire a run once the debounce window passes
// without further changes.
type SourceWatcher struct {
	sourcePath string
	debounce   time.Duration
	target     Triggerer
	watcher    *fsnotify.Watcher
}

// NewSourceWatcher creates a watcher over sourcePath and its subdirectories.
func NewSourceWatcher(sourcePath string, debounce time.Duration, target Triggerer) (*SourceWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(sourcePath)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("resolve source path: %w", err)
	}

	sw := &SourceWatcher{
		sourcePath: absPath,
		debounce:   debounce,
		target:     target,
		watcher:    watcher,
	}
	if err := sw.addTree(absPath); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch source tree: %w", err)
	}
	return sw, nil
}

// addTree registers sourcePath and every subdirectory. Hidden directories are
// skipped so .git churn never triggers rebuilds.
func (sw *SourceWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return sw.watcher.Add(p)
	})
}

// Watch consumes events until ctx is canceled.
func (sw *SourceWatcher) Watch(ctx context.Context) {
	defer func() {
		if err := sw.watcher.Close(); err != nil {
			slog.Warn("Failed to close source watcher", logfields.Error(err))
		}
	}()

	slog.Info("Watching source tree",
		logfields.Path(sw.sourcePath),
		slog.Duration("debounce", sw.debounce))

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if sw.ignore(event) {
				continue
			}
			// New directories must be added to the watch set before their
			// contents change.
			if event.Op&fsnotify.Create != 0 {
				if err := sw.addTree(event.Name); err != nil {
					slog.Debug("Could not watch new path", logfields.Path(event.Name))
				}
			}
			slog.Debug("Source change detected",
				logfields.File(event.Name),
				slog.String("op", event.Op.String()))

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(sw.debounce, func() {
				sw.target.Trigger(TriggerWatch)
			})
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Source watcher error", logfields.Error(err))
		}
	}
}

// ignore filters events that should never trigger a rebuild.
func (sw *SourceWatcher) ignore(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod != 0 {
		return true
	}
	rel, err := filepath.Rel(sw.sourcePath, event.Name)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}
