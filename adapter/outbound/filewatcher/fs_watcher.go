package filewatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

const DefaultDebounce = 300 * time.Millisecond

// FsWatcher watches directory roots and their direct subdirectories,
// one factory folder per subdirectory.
type FsWatcher struct {
	watcher     *fsnotify.Watcher
	debounce    time.Duration
	events      chan outbound.FileChangeEvent
	errors      chan error
	debouncer   map[string]*time.Timer
	roots       map[string]bool
	watchedDirs map[string]bool
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	stopped     bool
	stopOnce    sync.Once
	closed      chan struct{}
}

// NewFSWatcher coalesces bursts of changes to one path into a single event after debounce
func NewFSWatcher(debounce time.Duration) (outbound.FileWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())

	fw := &FsWatcher{
		watcher:     fsWatcher,
		debounce:    debounce,
		events:      make(chan outbound.FileChangeEvent, 100),
		errors:      make(chan error, 16),
		debouncer:   make(map[string]*time.Timer),
		roots:       make(map[string]bool),
		watchedDirs: make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
		closed:      make(chan struct{}),
	}

	go fw.run()

	return fw, nil
}

func (fw *FsWatcher) Watch(ctx context.Context, dir string) error {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.stopped {
		return fmt.Errorf("watcher is stopped")
	}
	if fw.roots[absPath] {
		return nil
	}
	if err := fw.addLocked(absPath); err != nil {
		return err
	}
	fw.roots[absPath] = true

	entries, err := os.ReadDir(absPath)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", absPath, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := fw.addLocked(filepath.Join(absPath, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// addLocked must be called with mu held
func (fw *FsWatcher) addLocked(dir string) error {
	if fw.watchedDirs[dir] {
		return nil
	}
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	fw.watchedDirs[dir] = true
	return nil
}

func (fw *FsWatcher) Stop() error {
	var closeErr error
	fw.stopOnce.Do(func() {
		fw.cancel()
		closeErr = fw.watcher.Close()

		// wait for the event loop before closing the channels it writes to
		<-fw.closed

		fw.mu.Lock()
		fw.stopped = true
		fw.cleanupDebouncers()
		fw.roots = make(map[string]bool)
		fw.watchedDirs = make(map[string]bool)
		close(fw.events)
		close(fw.errors)
		fw.mu.Unlock()
	})
	if closeErr != nil {
		return fmt.Errorf("failed to close fsnotify watcher: %w", closeErr)
	}
	return nil
}

func (fw *FsWatcher) Events() <-chan outbound.FileChangeEvent {
	return fw.events
}

func (fw *FsWatcher) Errors() <-chan error {
	return fw.errors
}

func (fw *FsWatcher) IsWatching() bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return !fw.stopped && len(fw.roots) > 0
}

func (fw *FsWatcher) GetWatchedPaths() []string {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	paths := make([]string, 0, len(fw.watchedDirs))
	for path := range fw.watchedDirs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (fw *FsWatcher) run() {
	defer close(fw.closed)

	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			default:
			}
		}
	}
}

func (fw *FsWatcher) handle(event fsnotify.Event) {
	eventType := convertEvent(event)
	if eventType == "" {
		return
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	switch eventType {
	case "create":
		// new factory folders get watched so edits to their desc.json are seen
		if fw.roots[filepath.Dir(event.Name)] {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := fw.addLocked(event.Name); err != nil {
					select {
					case fw.errors <- err:
					default:
					}
				}
			}
		}
	case "remove":
		// fsnotify drops watches on removed directories by itself
		delete(fw.watchedDirs, event.Name)
	}

	fw.debounceLocked(outbound.FileChangeEvent{FilePath: event.Name, EventType: eventType})
}

// debounceLocked restarts the per-path timer, the last event type wins
func (fw *FsWatcher) debounceLocked(change outbound.FileChangeEvent) {
	if timer, exists := fw.debouncer[change.FilePath]; exists {
		timer.Stop()
	}

	fw.debouncer[change.FilePath] = time.AfterFunc(fw.debounce, func() {
		fw.mu.Lock()
		defer fw.mu.Unlock()

		delete(fw.debouncer, change.FilePath)
		if fw.stopped {
			return
		}
		select {
		case fw.events <- change:
		default:
			// a full buffer already holds a pending change, consumers reload everything anyway
		}
	})
}

// cleanupDebouncers must be called with mu held
func (fw *FsWatcher) cleanupDebouncers() {
	for _, timer := range fw.debouncer {
		timer.Stop()
	}
	fw.debouncer = make(map[string]*time.Timer)
}

func convertEvent(event fsnotify.Event) string {
	switch {
	case event.Has(fsnotify.Create):
		return "create"
	case event.Has(fsnotify.Write):
		return "modify"
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return "remove"
	}
	return ""
}
