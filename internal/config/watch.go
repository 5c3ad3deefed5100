package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher tails the project's source roots and the project file itself,
// forwarding change events so the query engine can invalidate the
// affected file (spec.md §4.6) without the editor having to push every
// edit over LSP — useful when a file is touched by an external tool
// (code generator, `git checkout`, formatter run from a shell).
type Watcher struct {
	fsw    *fsnotify.Watcher
	log    *zap.Logger
	Events chan string // absolute paths that changed
}

// NewWatcher starts watching every source root plus the project file.
func NewWatcher(p *Project, projectFile string, log *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	roots := append(p.SourceRoots(), projectFile)
	for _, r := range roots {
		if err := fsw.Add(r); err != nil {
			log.Warn("watch: failed to add path", zap.String("path", r), zap.Error(err))
		}
	}

	w := &Watcher{fsw: fsw, log: log, Events: make(chan string, 64)}
	return w, nil
}

// Run pumps filesystem events into w.Events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.Events)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				select {
				case w.Events <- ev.Name:
				case <-ctx.Done():
					return
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch: fsnotify error", zap.Error(err))
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
