package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

const catalogDebounce = 200 * time.Millisecond

// CatalogWatcher reloads the catalog file when it changes on disk and hands
// every valid catalog to apply. Invalid catalogs are logged and ignored.
type CatalogWatcher struct {
	path    string
	apply   func(*Catalog) error
	log     log.FieldLogger
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

func WatchCatalog(path string, apply func(*Catalog) error, logger log.FieldLogger) (*CatalogWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch catalog: path is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch catalog: %w", err)
	}
	// editors replace files, so watch the directory
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch catalog: %w", err)
	}
	cw := &CatalogWatcher{path: path, apply: apply, log: logger, watcher: w, done: make(chan struct{})}
	go cw.loop()
	return cw, nil
}

func (cw *CatalogWatcher) loop() {
	defer close(cw.done)
	for {
		select {
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(cw.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			cw.mu.Lock()
			if cw.timer != nil {
				cw.timer.Stop()
			}
			cw.timer = time.AfterFunc(catalogDebounce, cw.reload)
			cw.mu.Unlock()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.WithFields(log.Fields{"event": "catalog_watch_error", "path": cw.path}).WithError(err).Warn("catalog watcher error")
		}
	}
}

func (cw *CatalogWatcher) reload() {
	fields := log.Fields{"event": "catalog_reload", "path": cw.path}
	c, err := LoadCatalog(cw.path)
	if err != nil {
		cw.log.WithFields(fields).WithError(err).Error("catalog rejected, keeping previous")
		return
	}
	if err := cw.apply(c); err != nil {
		cw.log.WithFields(fields).WithError(err).Error("catalog apply failed")
		return
	}
	fields["models"] = len(c.Models)
	cw.log.WithFields(fields).Info("catalog reloaded")
}

// Close stops watching. A reload already in flight may still complete.
func (cw *CatalogWatcher) Close() error {
	cw.mu.Lock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.mu.Unlock()
	err := cw.watcher.Close()
	<-cw.done
	return err
}
