package loader

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcher is the implementation of the Watcher interface.
type watcher struct {
	mu   *sync.Mutex
	fs   *fsnotify.Watcher
	path string

	quiet   time.Duration
	timer   *time.Timer
	changes chan string
	done    chan bool
}

// Watcher reports changes to a model file and the LDraw files next to it. Bursts of events
// (editors often write, rename and chmod in one save) are coalesced into one notification
// once the folder has been quiet for the configured period.
type Watcher interface {
	// Changes delivers the watched model path after each burst of changes.
	Changes() <-chan string

	// Close stops watching. The Changes channel is not closed.
	//
	// Returns:
	//   - error: an error if the underlying watcher fails to close
	Close() error
}

var _ Watcher = &watcher{}

// NewWatcher watches the directory holding a model file.
//
// Parameters:
//   - path: the model file
//   - quiet: how long the folder must stay unchanged before a change is reported
//
// Returns:
//   - Watcher: the running watcher
//   - error: an error if the directory cannot be watched
func NewWatcher(path string, quiet time.Duration) (Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("loader: failed to create watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("loader: failed to watch %s: %w", filepath.Dir(path), err)
	}
	w := &watcher{
		mu:      &sync.Mutex{},
		fs:      fs,
		path:    path,
		quiet:   quiet,
		changes: make(chan string, 1),
		done:    make(chan bool),
	}
	go w.run()
	return w, nil
}

func (w *watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !isLDrawFile(event.Name) {
				continue
			}
			switch {
			case event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create ||
				event.Op&fsnotify.Remove == fsnotify.Remove ||
				event.Op&fsnotify.Rename == fsnotify.Rename:
				w.schedule()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("loader: watcher: %v", err)
		}
	}
}

// schedule restarts the quiet period.
func (w *watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.quiet, func() {
		select {
		case w.changes <- w.path:
		default:
			// A notification is already pending.
		}
	})
}

func (w *watcher) Changes() <-chan string {
	return w.changes
}

func (w *watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	close(w.done)
	return w.fs.Close()
}

func isLDrawFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ldr", ".dat", ".mpd":
		return true
	}
	return false
}
