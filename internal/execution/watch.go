package execution

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// OutputWatcher logs engine outputs as they appear in the run's output
// directory, giving long runs a progress signal.
type OutputWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchOutputs starts watching dir and logs each file the first time it is
// created or written.
func WatchOutputs(dir string, logger *log.Logger) (*OutputWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create output watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	ow := &OutputWatcher{watcher: w, done: make(chan struct{})}
	go func() {
		defer close(ow.done)
		seen := map[string]bool{}
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				name := filepath.Base(ev.Name)
				if seen[name] {
					continue
				}
				seen[name] = true
				if logger != nil {
					logger.Printf("output produced: %s", name)
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return ow, nil
}

// Close stops the watcher and waits for its event loop to drain.
func (w *OutputWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
