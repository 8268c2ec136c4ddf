// Package watcher is the fsnotify-backed file event source feeding C8's
// incremental indexer, adapted from the teacher's internal/watcher
// (spec.md §6 "Events consumed").
package watcher

import (
	"context"
	"time"
)

// Operation is the kind of filesystem change observed.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
	// OpGitignoreChange marks a .gitignore edit, reported separately from
	// content changes. The watch command skips these events; nothing calls
	// internal/gitignore.DiffPatterns for them.
	OpGitignoreChange
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpGitignoreChange:
		return "GITIGNORE_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed filesystem change.
type FileEvent struct {
	Path      string
	OldPath   string // only set for OpRename
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Watcher watches a directory tree for file changes.
type Watcher interface {
	Start(ctx context.Context, root string) error
	Stop() error
	Events() <-chan FileEvent
	Errors() <-chan error
}

// Options configures a Watcher.
type Options struct {
	DebounceWindow  time.Duration
	EventBufferSize int
}

// DefaultOptions mirrors the teacher's watcher defaults.
func DefaultOptions() Options {
	return Options{DebounceWindow: 200 * time.Millisecond, EventBufferSize: 1000}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}
