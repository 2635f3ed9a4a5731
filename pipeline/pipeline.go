// Package pipeline contains the ingestion control loop: the bounded
// per-file workflow coordinator, the dirty-flag-gated log flush scheduler,
// and the run orchestration that ties them to the watcher and the store.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pithecene-io/hopper/blob"
	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/metrics"
	"github.com/pithecene-io/hopper/rows"
	"github.com/pithecene-io/hopper/watch"
)

// DefaultDrainTimeout bounds the shutdown wait for in-flight workflows.
const DefaultDrainTimeout = 30 * time.Second

// Options assembles everything a pipeline run needs. All fields with a
// zero value fall back to package defaults where one exists.
type Options struct {
	// Store is the blob store collaborator (already instrumented if
	// metrics are wanted).
	Store blob.Store
	// Capture is the local log file the flusher ships and truncates.
	Capture *log.Capture
	// Logger is the run logger (expected to tee into Capture).
	Logger *log.Logger
	// Collector receives run metrics. May be nil.
	Collector *metrics.Collector

	// InputDir is the watched folder; TempDir holds staging artifacts;
	// ArchiveDir is the root of the processed-source archive.
	InputDir   string
	TempDir    string
	ArchiveDir string

	// Extension filters watched files (e.g. ".csv").
	Extension string
	// KeyPrefix prefixes data object keys.
	KeyPrefix string
	// Versioning is applied to the bucket at startup.
	Versioning blob.VersioningMode

	// MaxConcurrent bounds simultaneously active per-file workflows.
	MaxConcurrent int64
	// Filter is the row predicate.
	Filter rows.Bounds

	Debounce  time.Duration
	Step      time.Duration
	Stability watch.StabilityConfig

	FlushInterval time.Duration
	FlushTick     time.Duration

	// DrainTimeout bounds the shutdown wait for in-flight workflows.
	DrainTimeout time.Duration
}

// Pipeline is one long-running ingestion worker instance.
// A single instance per watched folder is assumed; concurrent instances
// on the same folder can produce duplicate uploads.
type Pipeline struct {
	opts        Options
	state       *FlushState
	coordinator *Coordinator
	flusher     *LogFlusher
}

// New assembles a pipeline from options.
func New(opts Options) *Pipeline {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}

	state := NewFlushState(time.Now())

	coordinator := NewCoordinator(
		CoordinatorConfig{
			MaxConcurrent: opts.MaxConcurrent,
			TempDir:       opts.TempDir,
			ArchiveDir:    opts.ArchiveDir,
			KeyPrefix:     opts.KeyPrefix,
			Filter:        opts.Filter,
			Stability:     opts.Stability,
		},
		opts.Store,
		state,
		opts.Logger,
		opts.Collector,
	)

	flusher := NewLogFlusher(
		state,
		opts.Capture,
		opts.Store,
		opts.Logger,
		opts.Collector,
		opts.FlushInterval,
		opts.FlushTick,
	)

	return &Pipeline{
		opts:        opts,
		state:       state,
		coordinator: coordinator,
		flusher:     flusher,
	}
}

// Run executes the pipeline until ctx is canceled or the watcher fails.
//
// Startup-phase errors (store unreachable, bucket creation failure,
// watcher start failure) return before any watching begins. Once the
// watch loop is running, only a fatal watcher error terminates the run;
// per-file failures are contained in their workflows.
//
// Shutdown order: stop dispatching, drain in-flight workflows up to
// DrainTimeout, then stop the flusher (which performs a final flush if
// the dirty flag is set).
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.startup(ctx); err != nil {
		return err
	}

	watcher, err := watch.New(watch.Config{
		Dir:       p.opts.InputDir,
		Extension: p.opts.Extension,
		Debounce:  p.opts.Debounce,
		Step:      p.opts.Step,
	}, p.opts.Logger)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	// The flusher outlives the run context so the final flush can still
	// reach the store; it gets stopped explicitly after draining.
	flushCtx, stopFlusher := context.WithCancel(context.Background())
	flusherDone := make(chan struct{})
	go func() {
		defer close(flusherDone)
		p.flusher.Run(flushCtx)
	}()

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- watcher.Run(ctx)
	}()

	p.opts.Logger.Info("watching input folder", map[string]any{
		"dir":       p.opts.InputDir,
		"extension": p.opts.Extension,
	})

	for batch := range watcher.Batches() {
		for _, ev := range batch {
			p.coordinator.Dispatch(ctx, ev)
		}
	}

	// Batches channel closed: cancellation or fatal watch error.
	err = <-watchErr

	if remaining := p.coordinator.Drain(p.opts.DrainTimeout); remaining > 0 {
		p.opts.Logger.Warn("drain timeout, abandoning in-flight workflows", map[string]any{
			"remaining": remaining,
			"timeout":   p.opts.DrainTimeout.String(),
		})
	}

	stopFlusher()
	<-flusherDone

	if err != nil {
		return fmt.Errorf("watcher terminated: %w", err)
	}

	p.opts.Logger.Info("pipeline stopped", nil)
	return nil
}

// startup verifies the store, prepares the bucket, and creates the local
// folder layout. Failures here are fatal for the whole run.
func (p *Pipeline) startup(ctx context.Context) error {
	if err := p.opts.Store.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	if err := p.opts.Store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	// Versioning is applied best-effort: a refusal (e.g. the backend
	// does not support it) is not worth aborting the run over.
	if err := p.opts.Store.SetVersioning(ctx, p.opts.Versioning); err != nil {
		p.opts.Logger.Warn("bucket versioning not applied", map[string]any{
			"mode":  string(p.opts.Versioning),
			"error": err.Error(),
		})
	}

	for _, dir := range []string{p.opts.InputDir, p.opts.TempDir, p.opts.ArchiveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create folder %s: %w", dir, err)
		}
	}

	return nil
}
