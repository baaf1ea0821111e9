package provider

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch follows the upload directory tree and drops cached text for any
// file that is written, removed or renamed. While it runs, cached text of
// files under the upload directory is served without a stat per read. onChange, if non-nil, is called with the
// absolute path of every changed file. Watch blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func(path string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating upload watcher: %w", err)
	}
	defer w.Close()

	root, err := filepath.Abs(s.uploadDir)
	if err != nil {
		return fmt.Errorf("resolving upload dir: %w", err)
	}
	if err := addTree(w, root); err != nil {
		return err
	}

	s.files.watch(root)
	defer s.files.watch("")
	s.logger.Info("watching upload directory", "dir", root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.handleEvent(w, event, onChange)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			// Overflow means events were lost; stop trusting the cache.
			s.logger.Error("upload watcher error", "error", err)
			s.files.watch("")
		}
	}
}

func (s *Store) handleEvent(w *fsnotify.Watcher, event fsnotify.Event, onChange func(string)) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addTree(w, event.Name); err != nil {
				s.logger.Warn("watching new directory failed", "dir", event.Name, "error", err)
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Create) {
		return
	}
	path := filepath.Clean(event.Name)
	if s.files.invalidate(path) {
		if s.metrics != nil {
			s.metrics.CacheInvalidations.Inc()
		}
		s.logger.Debug("document text invalidated", "path", path, "op", event.Op.String())
	}
	if onChange != nil {
		onChange(path)
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
		}
		return nil
	})
}
