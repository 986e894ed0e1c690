// Package watcher emits debounced file change events for watch mode. It
// wraps fsnotify with recursive directory registration, ignore filtering,
// and event coalescing so a burst of saves becomes one re-index.
package watcher

import "time"

// Operation is a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory.
	OpCreate Operation = iota
	// OpModify indicates a changed file.
	OpModify
	// OpDelete indicates a removed file or directory.
	OpDelete
)

// String returns a human-readable operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one file system event, with path relative to the watch root.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long to coalesce events before emitting.
	DebounceWindow time.Duration

	// EventBufferSize is the event channel buffer.
	EventBufferSize int

	// IgnorePatterns are gitignore-syntax patterns applied on top of the
	// root .gitignore.
	IgnorePatterns []string
}

// WithDefaults fills zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow == 0 {
		o.DebounceWindow = 200 * time.Millisecond
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = 1000
	}
	return o
}
