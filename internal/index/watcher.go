package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/interlink/internal/storage"
)

// EventCallback is called after a watcher-observed snapshot change.
// kind is one of "updated", "deleted"; path is relative to the data root.
type EventCallback func(kind string, path string)

const debounce = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the data root and processes snapshot
// changes until ctx is cancelled. Changes to articlesPath resync the
// article table; every settled change to a .json snapshot is reported to
// cb (if non-nil).
//
// Events are debounced per path because an atomic write shows up as a
// create of the temp file followed by a rename onto the target.
func Watch(ctx context.Context, db *DB, store storage.Provider, dataRoot, articlesPath string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dataRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", dataRoot))

	pending := make(map[string]fsnotify.Op)
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			for rel, op := range pending {
				flush(db, store, rel, op, articlesPath, logger, cb)
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
				continue
			}
			rel, relErr := filepath.Rel(dataRoot, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			pending[rel] |= ev.Op
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func flush(db *DB, store storage.Provider, rel string, op fsnotify.Op, articlesPath string, logger *slog.Logger, cb EventCallback) {
	_, statErr := store.Read(rel)
	kind := "updated"
	if statErr != nil && op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		kind = "deleted"
	}

	if rel == articlesPath {
		changed, err := Sync(db, store, articlesPath, logger)
		if err != nil {
			logger.Warn("watcher: sync failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		if !changed {
			return
		}
	}

	logger.Debug("watcher: snapshot changed", slog.String("path", rel), slog.String("op", kind))
	if cb != nil {
		cb(kind, rel)
	}
}
