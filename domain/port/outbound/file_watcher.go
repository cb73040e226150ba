package outbound

import (
	"context"
)

// FileChangeEvent reports a debounced change below a watched directory.
type FileChangeEvent struct {
	FilePath  string `json:"filePath"`
	EventType string `json:"eventType"` // "create", "modify", "remove"
}

// FileWatcher monitors directory trees for changes.
type FileWatcher interface {
	// Watch adds dir and its direct subdirectories
	Watch(ctx context.Context, dir string) error

	Stop() error

	Events() <-chan FileChangeEvent
	Errors() <-chan error

	IsWatching() bool
	GetWatchedPaths() []string
}
