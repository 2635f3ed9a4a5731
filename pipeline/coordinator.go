package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pithecene-io/hopper/archive"
	"github.com/pithecene-io/hopper/blob"
	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/metrics"
	"github.com/pithecene-io/hopper/rows"
	"github.com/pithecene-io/hopper/types"
	"github.com/pithecene-io/hopper/watch"
)

// CoordinatorConfig configures the per-file ingestion workflow.
type CoordinatorConfig struct {
	// MaxConcurrent bounds simultaneously active per-file workflows.
	MaxConcurrent int64
	// TempDir receives staged (filtered) artifacts before upload.
	TempDir string
	// ArchiveDir is the root of the date-partitioned archive tree.
	ArchiveDir string
	// KeyPrefix prefixes every data object key in the store.
	KeyPrefix string
	// Filter is the row predicate applied to every loaded file.
	Filter rows.Bounds
	// Stability tunes the write-stability gate.
	Stability watch.StabilityConfig
}

// Coordinator dispatches one workflow per add-event, bounded by a weighted
// semaphore of MaxConcurrent slots. Excess events spawn goroutines that
// block at admission until a slot frees; the watcher itself never blocks.
//
// Per-file errors are contained inside that file's workflow: logged,
// counted, never retried, and invisible to sibling workflows.
type Coordinator struct {
	cfg       CoordinatorConfig
	store     blob.Store
	flush     *FlushState
	logger    *log.Logger
	collector *metrics.Collector

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]struct{}

	// now is a clock hook for tests.
	now func() time.Time
}

// NewCoordinator creates a coordinator.
func NewCoordinator(
	cfg CoordinatorConfig,
	store blob.Store,
	flush *FlushState,
	logger *log.Logger,
	collector *metrics.Collector,
) *Coordinator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Coordinator{
		cfg:       cfg,
		store:     store,
		flush:     flush,
		logger:    logger,
		collector: collector,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		inFlight:  make(map[string]struct{}),
		now:       time.Now,
	}
}

// Dispatch spawns a workflow for the event. Only add-events are processed;
// other kinds are logged and dropped. Dispatch never blocks.
func (c *Coordinator) Dispatch(ctx context.Context, ev types.FileEvent) {
	if !ev.Kind.IsAdd() {
		c.logger.Debug("ignoring non-add event", map[string]any{
			"path": ev.Path,
			"kind": string(ev.Kind),
		})
		return
	}

	c.collector.IncFileDetected()
	c.logger.Info("new file detected", map[string]any{"path": ev.Path})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runWorkflow(ctx, ev.Path)
	}()
}

// runWorkflow executes the full per-file workflow:
// admission → dedup → stability gate → load → filter → stage → upload →
// archive → cleanup, marking the flush dirty flag on every exit past dedup.
func (c *Coordinator) runWorkflow(ctx context.Context, path string) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		// Canceled while waiting for a slot: shutdown in progress.
		return
	}
	defer c.sem.Release(1)

	if !c.admit(path) {
		c.collector.IncFileDuplicate()
		c.logger.Debug("path already in flight, dropping duplicate event", map[string]any{
			"path": path,
		})
		return
	}
	// Unconditional: the path leaves the in-flight set and the dirty flag
	// is raised on success, skip, and failure alike.
	defer c.release(path)
	defer c.flush.MarkDirty()

	// Past admission the workflow must survive run cancellation: a file
	// mid-upload at shutdown finishes inside the drain window instead of
	// aborting with a canceled context. Drain bounds how long anyone
	// waits for it.
	ctx = context.WithoutCancel(ctx)

	c.collector.IncFileStarted()
	c.logger.Info("processing file", map[string]any{"path": path})

	if !watch.AwaitStable(ctx, path, c.cfg.Stability) {
		c.collector.IncFileSkippedUnstable()
		c.logger.Warn("file never stabilized, skipping", map[string]any{"path": path})
		return
	}

	if err := c.process(ctx, path); err != nil {
		c.collector.IncWorkflowFailure()
		fields := map[string]any{
			"path":  path,
			"error": err.Error(),
		}
		if step, ok := StepOf(err); ok {
			fields["step"] = string(step)
		}
		c.logger.Error("file workflow failed", fields)
	}
}

// process runs steps 4–9 of the workflow, short-circuiting on failure.
func (c *Coordinator) process(ctx context.Context, path string) error {
	table, err := rows.Load(path)
	if err != nil {
		return &WorkflowError{Step: StepLoad, Path: path, Err: err}
	}

	if table.Empty() {
		c.collector.IncFileSkippedEmpty()
		c.logger.Info("file has no rows, skipping", map[string]any{"path": path})
		return nil
	}

	filtered := c.cfg.Filter.Apply(table)
	c.collector.AddRows(int64(table.Len()), int64(filtered.Len()))

	staged := filepath.Join(c.cfg.TempDir, stagedName(path, c.now()))
	if err := filtered.WriteFile(staged); err != nil {
		return &WorkflowError{Step: StepStage, Path: path, Err: err}
	}

	key := dataKey(c.cfg.KeyPrefix, c.now(), filepath.Base(staged))
	if err := c.store.Upload(ctx, key, staged); err != nil {
		return &WorkflowError{Step: StepUpload, Path: path, Err: err}
	}

	// Archive is best-effort: the data is already durable in the store.
	// A failure here leaves an uploaded-but-unarchived source, which is
	// surfaced distinctly (log + counter) rather than rolled back.
	if dest, err := archive.Move(path, c.cfg.ArchiveDir); err != nil {
		c.collector.IncArchiveFailure()
		c.logger.Error("archive failed after upload", map[string]any{
			"path":  path,
			"key":   key,
			"error": err.Error(),
		})
	} else {
		c.logger.Debug("source archived", map[string]any{
			"path":    path,
			"archive": dest,
		})
	}

	if err := os.Remove(staged); err != nil {
		return &WorkflowError{Step: StepCleanup, Path: path, Err: err}
	}

	c.collector.IncFileProcessed()
	c.logger.Info("file processed", map[string]any{
		"path":     path,
		"key":      key,
		"rows_in":  table.Len(),
		"rows_out": filtered.Len(),
	})
	return nil
}

// admit inserts path into the in-flight set.
// Returns false if the path is already being processed.
func (c *Coordinator) admit(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.inFlight[path]; exists {
		return false
	}
	c.inFlight[path] = struct{}{}
	return true
}

func (c *Coordinator) release(path string) {
	c.mu.Lock()
	delete(c.inFlight, path)
	c.mu.Unlock()
}

// InFlight returns the number of paths currently under processing.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

// Drain waits up to timeout for all spawned workflows to finish.
// Returns the number of workflows still in flight when the timeout hit
// (zero on a clean drain).
func (c *Coordinator) Drain(timeout time.Duration) int {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return 0
	case <-timer.C:
		return c.InFlight()
	}
}

// stagedName derives the staging artifact name from the source filename
// and a timestamp: filtered_<stem>_<YYYYMMDD_HHMMSS>.csv.
func stagedName(path string, ts time.Time) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("filtered_%s_%s.csv", stem, ts.Format("20060102_150405"))
}

// dataKey builds the object key {prefix}/{YYYY}/{MM}/{DD}/{name}.
// The date is the time of upload, not the file time.
func dataKey(prefix string, ts time.Time, name string) string {
	datePath := ts.Format("2006/01/02")
	if prefix == "" {
		return datePath + "/" + name
	}
	return prefix + "/" + datePath + "/" + name
}
