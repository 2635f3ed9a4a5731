// Package types defines shared data types for the hopper pipeline.
package types

import "time"

// ChangeKind classifies a filesystem change observed by the watcher.
type ChangeKind string

// Change kind constants.
const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// IsAdd returns true if the change represents a newly arrived file.
// Only add changes are dispatched to the ingestion coordinator.
func (k ChangeKind) IsAdd() bool {
	return k == ChangeAdded
}

// FileEvent is a single filesystem change emitted by the watcher.
// Events are ephemeral: produced by the watcher, consumed exactly once
// by the coordinator, then discarded.
type FileEvent struct {
	// Path is the absolute path of the changed file.
	Path string
	// Kind is the change classification.
	Kind ChangeKind
	// DetectedAt is when the watcher observed the change.
	DetectedAt time.Time
}
