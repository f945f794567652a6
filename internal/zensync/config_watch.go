package zensync

import (
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// stateWatcher watches the on-disk state file for edits by other processes
// and fires onChange for each write. It watches the parent directory because
// atomic rename-into-place replaces the inode the file watch would be bound
// to.
type stateWatcher struct {
	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

func watchStateFile(path string, onChange func()) (*stateWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	target := filepath.Clean(path)
	w := &stateWatcher{watcher: watcher, done: make(chan struct{})}
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("zensync: state watch error: %v", err)
			case <-w.done:
				return
			}
		}
	}()
	return w, nil
}

func (w *stateWatcher) stop() {
	if w == nil {
		return
	}
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}
