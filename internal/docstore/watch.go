// External-change watcher. Another process rewriting the store file is
// the last-writer-wins case: this process's cache is stale until it
// reloads.

package docstore

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the store whenever another process rewrites the
// backing file, until ctx is cancelled.
//
// The data directory is watched rather than the file itself because
// saves go through a rename, which replaces the watched inode.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Name != s.path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					if err := s.Reload(); err != nil {
						slog.WarnContext(ctx, "Failed to reload document store", "err", err)
						continue
					}
					slog.InfoContext(ctx, "Document store changed externally, reloaded", "path", s.path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching document store", "err", err)
			}
		}
	}()
	return nil
}
