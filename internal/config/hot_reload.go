package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/matchcam/core/internal/logging"
)

// hotReloadWatcher reacts to external edits of the config file (e.g. an
// operator tool writing a new document) and triggers Store.reload.
// Pipelines in flight are unaffected: only the next PipelineBuilder.Build
// call observes the new snapshot (§4.1).
type hotReloadWatcher struct {
	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	logger  *logging.Logger
	running bool
}

// EnableHotReload starts watching the Store's backing file for changes.
// Idempotent: calling it twice is a no-op.
func (s *Store) EnableHotReload() error {
	s.mu.Lock()
	if s.watcher != nil && s.watcher.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return &ConfigIoError{Path: s.path, Err: err}
	}
	if err := fsw.Add(filepath.Dir(s.path)); err != nil {
		fsw.Close()
		return &ConfigIoError{Path: s.path, Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &hotReloadWatcher{fsw: fsw, cancel: cancel, logger: s.logger, running: true}

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()

	go s.watchLoop(ctx, w)
	return nil
}

// DisableHotReload stops the watcher if running.
func (s *Store) DisableHotReload() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if w == nil {
		return
	}
	w.cancel()
	w.fsw.Close()
}

func (s *Store) watchLoop(ctx context.Context, w *hotReloadWatcher) {
	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				w.logger.WithError(err).Warn("config hot reload failed; keeping previous snapshot")
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("config watcher error")
		}
	}
}
