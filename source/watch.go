package source

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
	"github.com/teranos/rota/rota"
)

// ChangeEvent reports that a schedule's input workbook changed on disk.
type ChangeEvent struct {
	ScheduleDefID string
	Locator       Locator
}

// Watcher turns file:// workbook edits into ChangeEvents. Directories are
// watched rather than files so editors that replace the file on save are
// still seen.
type Watcher struct {
	fs     *fsnotify.Watcher
	logger *zap.SugaredLogger

	mu    sync.RWMutex
	paths map[string][]string // cleaned file path -> schedule def ids
	dirs  map[string]bool
}

// NewWatcher creates a watcher with no files registered.
func NewWatcher(log *zap.SugaredLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	return &Watcher{
		fs:     fw,
		logger: logger.OrNop(log),
		paths:  make(map[string][]string),
		dirs:   make(map[string]bool),
	}, nil
}

// WatchDefinition registers the definition's file:// input workbooks. Other
// schemes are skipped; they are covered by the periodic staleness check.
func (w *Watcher) WatchDefinition(def *rota.Definition) error {
	for _, raw := range []string{def.ParamsLocator, def.PrefsLocator} {
		if raw == "" {
			continue
		}
		loc, err := ParseLocator(raw)
		if err != nil {
			return err
		}
		if loc.Scheme != SchemeFile {
			continue
		}
		if err := w.add(def.ID, loc.Book); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) add(defID, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", path)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, id := range w.paths[abs] {
		if id == defID {
			return nil
		}
	}
	dir := filepath.Dir(abs)
	if !w.dirs[dir] {
		if err := w.fs.Add(dir); err != nil {
			return errors.Wrapf(err, "failed to watch %s", dir)
		}
		w.dirs[dir] = true
	}
	w.paths[abs] = append(w.paths[abs], defID)
	return nil
}

// Run forwards change events to notify until ctx is done.
func (w *Watcher) Run(ctx context.Context, notify func(ChangeEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".rota-") {
				continue // our own temp files
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			w.mu.RLock()
			ids := append([]string(nil), w.paths[abs]...)
			w.mu.RUnlock()

			for _, id := range ids {
				w.logger.Debugw("Workbook changed",
					logger.FieldScheduleDefID, id,
					"file", abs,
					"op", event.Op.String())
				notify(ChangeEvent{ScheduleDefID: id, Locator: Locator{Scheme: SchemeFile, Book: abs}})
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Workbook watcher error", logger.FieldError, err)
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
