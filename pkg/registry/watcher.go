package registry

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 300 * time.Millisecond

// Watcher watches a Dir registry and reports which themes changed on disk.
// It only signals; reloading is left to the callback's owner.
type Watcher struct {
	root     string
	debounce time.Duration
	onChange func(themeID string)

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	timers   map[string]*time.Timer
	done     sync.WaitGroup
}

// NewWatcher creates a watcher for the registry's directory. onChange
// receives the id of every theme file that was written, created, renamed
// or removed, once per debounce window.
func NewWatcher(d *Dir, onChange func(themeID string)) *Watcher {
	return &Watcher{
		root:     d.Root(),
		debounce: DefaultDebounce,
		onChange: onChange,
		timers:   make(map[string]*time.Timer),
	}
}

// Start begins watching the root directory and every sub-directory present
// at start time.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopLocked()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch directories rather than files: editors that save atomically
	// replace the file, which drops file-level watches.
	err = filepath.WalkDir(w.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return err
	}

	w.watcher = watcher
	w.stopChan = make(chan struct{})

	w.done.Add(1)
	go w.loop(watcher, w.stopChan)

	slog.Debug("Started watching themes directory", "path", w.root)
	return nil
}

// Stop stops watching and waits for the event loop to exit. Pending
// debounced notifications are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.stopLocked()
	w.mu.Unlock()

	w.done.Wait()
}

func (w *Watcher) stopLocked() {
	if w.stopChan != nil {
		close(w.stopChan)
		w.stopChan = nil
	}
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}

func (w *Watcher) loop(watcher *fsnotify.Watcher, stopChan chan struct{}) {
	defer w.done.Done()

	for {
		select {
		case <-stopChan:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						slog.Warn("Failed to watch new themes sub-directory", "path", event.Name, "error", err)
					}
					continue
				}
			}

			if !isThemeFile(event.Name) {
				continue
			}
			w.schedule(themeIDFromFile(filepath.ToSlash(event.Name)))

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Themes directory watcher error", "error", err)
		}
	}
}

// schedule (re)arms the debounce timer of one theme.
func (w *Watcher) schedule(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopChan == nil {
		return
	}
	if t, ok := w.timers[id]; ok {
		t.Stop()
	}
	w.timers[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, id)
		active := w.stopChan != nil
		w.mu.Unlock()

		if active && w.onChange != nil {
			slog.Debug("Theme file changed, signaling", "theme", id)
			w.onChange(id)
		}
	})
}
