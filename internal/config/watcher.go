package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/policy"
)

// debounceWindow absorbs the burst of events a single save produces (most
// editors write-then-rename, firing two or three fsnotify events per save).
const debounceWindow = 200 * time.Millisecond

// PolicyWatcher watches a policy file's directory and reloads the engine's
// compiled policy whenever the file changes.
type PolicyWatcher struct {
	path   string
	engine *policy.Engine
	logger *slog.Logger
	watcher *fsnotify.Watcher
	done   chan struct{}
}

// WatchPolicyFile starts watching path for changes and reloads engine on
// each one. Reload failures are logged and leave the engine's current
// policy in place. Call Close to stop watching.
func WatchPolicyFile(path string, engine *policy.Engine, logger *slog.Logger) (*PolicyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	pw := &PolicyWatcher{
		path:    path,
		engine:  engine,
		logger:  logger,
		watcher: w,
		done:    make(chan struct{}),
	}
	go pw.loop()
	return pw, nil
}

func (pw *PolicyWatcher) loop() {
	target := filepath.Base(pw.path)
	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-pw.done:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(debounceWindow)
			debounceC = debounce.C

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Error("policy watcher error", "error", err)

		case <-debounceC:
			debounceC = nil
			pw.reload()
		}
	}
}

func (pw *PolicyWatcher) reload() {
	p, err := LoadPolicyFile(pw.path)
	if err != nil {
		pw.logger.Error("policy reload failed, keeping current policy", "path", pw.path, "error", err)
		return
	}
	pw.engine.SetPolicy(p)
	pw.logger.Info("policy reloaded", "path", pw.path, "rules", len(p.Rules))
}

// Close stops the watcher.
func (pw *PolicyWatcher) Close() error {
	close(pw.done)
	return pw.watcher.Close()
}
