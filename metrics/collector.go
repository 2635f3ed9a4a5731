// Package metrics provides per-run metrics collection for the pipeline.
//
// The Collector accumulates counters during a single pipeline run. It is a
// leaf package with no internal dependencies. Counters are incremented live
// by the coordinator, the blob store decorator, and the log flush scheduler.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all pipeline metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// File lifecycle
	FilesDetected        int64
	FilesStarted         int64
	FilesProcessed       int64
	FilesSkippedEmpty    int64
	FilesSkippedUnstable int64
	FilesDuplicate       int64
	WorkflowFailures     int64

	// Rows
	RowsIn  int64
	RowsOut int64

	// Blob store (per-call, incremented by the instrumented store)
	StorePutSuccess int64
	StorePutFailure int64

	// Archive
	ArchiveFailures int64

	// Log flush scheduler
	LogFlushSuccess int64
	LogFlushFailure int64

	// Dimensions (informational, set at construction)
	Bucket string
	Prefix string
	RunID  string
}

// Collector accumulates metrics during a single pipeline run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe
// so components can run without metrics wired (tests, stubs).
type Collector struct {
	mu sync.Mutex

	filesDetected        int64
	filesStarted         int64
	filesProcessed       int64
	filesSkippedEmpty    int64
	filesSkippedUnstable int64
	filesDuplicate       int64
	workflowFailures     int64

	rowsIn  int64
	rowsOut int64

	storePutSuccess int64
	storePutFailure int64

	archiveFailures int64

	logFlushSuccess int64
	logFlushFailure int64

	bucket string
	prefix string
	runID  string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(bucket, prefix, runID string) *Collector {
	return &Collector{
		bucket: bucket,
		prefix: prefix,
		runID:  runID,
	}
}

// --- File lifecycle ---

// IncFileDetected records an add-event forwarded to the coordinator.
func (c *Collector) IncFileDetected() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.filesDetected++
	c.mu.Unlock()
}

// IncFileStarted records a workflow that passed admission and dedup.
func (c *Collector) IncFileStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.filesStarted++
	c.mu.Unlock()
}

// IncFileProcessed records a workflow that completed all steps.
func (c *Collector) IncFileProcessed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.filesProcessed++
	c.mu.Unlock()
}

// IncFileSkippedEmpty records a file skipped because it contained no rows.
func (c *Collector) IncFileSkippedEmpty() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.filesSkippedEmpty++
	c.mu.Unlock()
}

// IncFileSkippedUnstable records a file abandoned because its size never
// settled (or it vanished) within the stability timeout.
func (c *Collector) IncFileSkippedUnstable() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.filesSkippedUnstable++
	c.mu.Unlock()
}

// IncFileDuplicate records an add-event dropped because the path was
// already in flight.
func (c *Collector) IncFileDuplicate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.filesDuplicate++
	c.mu.Unlock()
}

// IncWorkflowFailure records a per-file workflow that aborted with an error.
func (c *Collector) IncWorkflowFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.workflowFailures++
	c.mu.Unlock()
}

// --- Rows ---

// AddRows records rows loaded from a source file and rows surviving the filter.
func (c *Collector) AddRows(in, out int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.rowsIn += in
	c.rowsOut += out
	c.mu.Unlock()
}

// --- Blob store ---
// Store counters are per-call, not per-byte. A single upload of N rows
// counts as 1 success.

// IncStorePutSuccess records a successful blob store write (per-call).
func (c *Collector) IncStorePutSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.storePutSuccess++
	c.mu.Unlock()
}

// IncStorePutFailure records a failed blob store write (per-call).
func (c *Collector) IncStorePutFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.storePutFailure++
	c.mu.Unlock()
}

// --- Archive ---

// IncArchiveFailure records a source file that could not be relocated into
// the archive tree after its upload succeeded.
func (c *Collector) IncArchiveFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archiveFailures++
	c.mu.Unlock()
}

// --- Log flush ---

// IncLogFlushSuccess records a completed log flush (upload + truncate).
func (c *Collector) IncLogFlushSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.logFlushSuccess++
	c.mu.Unlock()
}

// IncLogFlushFailure records a log flush whose upload failed.
// The local log is left untouched for the next attempt.
func (c *Collector) IncLogFlushFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.logFlushFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		FilesDetected:        c.filesDetected,
		FilesStarted:         c.filesStarted,
		FilesProcessed:       c.filesProcessed,
		FilesSkippedEmpty:    c.filesSkippedEmpty,
		FilesSkippedUnstable: c.filesSkippedUnstable,
		FilesDuplicate:       c.filesDuplicate,
		WorkflowFailures:     c.workflowFailures,

		RowsIn:  c.rowsIn,
		RowsOut: c.rowsOut,

		StorePutSuccess: c.storePutSuccess,
		StorePutFailure: c.storePutFailure,

		ArchiveFailures: c.archiveFailures,

		LogFlushSuccess: c.logFlushSuccess,
		LogFlushFailure: c.logFlushFailure,

		Bucket: c.bucket,
		Prefix: c.prefix,
		RunID:  c.runID,
	}
}
