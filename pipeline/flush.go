package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/hopper/blob"
	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/metrics"
)

// LogObjectKey is the fixed store key the accumulated log is flushed to.
const LogObjectKey = "pipeline.log"

// Default flush scheduler intervals.
const (
	DefaultFlushInterval = time.Minute
	DefaultFlushTick     = 10 * time.Second
)

// FlushState is the shared dirty-flag state between the coordinator and
// the log flush scheduler. The coordinator raises the dirty flag after
// every per-file workflow; the scheduler resets it after a confirmed flush.
type FlushState struct {
	mu        sync.Mutex
	lastFlush time.Time
	dirty     bool
}

// NewFlushState creates the flush state with lastFlush set to now.
func NewFlushState(now time.Time) *FlushState {
	return &FlushState{lastFlush: now}
}

// MarkDirty records that log content has accumulated since the last flush.
func (s *FlushState) MarkDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Dirty reports whether unflushed log content has accumulated.
func (s *FlushState) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// due reports whether a flush should fire: the interval has elapsed since
// the last flush AND the dirty flag is set.
func (s *FlushState) due(now time.Time, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty && now.Sub(s.lastFlush) >= interval
}

// reset clears the dirty flag and stamps the flush time.
// Called only after the upload succeeded and the log was truncated.
func (s *FlushState) reset(now time.Time) {
	s.mu.Lock()
	s.dirty = false
	s.lastFlush = now
	s.mu.Unlock()
}

// LogFlusher is the background scheduler that ships the accumulated local
// log to the blob store. It ticks at a short interval and flushes when the
// flush interval has elapsed and the dirty flag is set.
type LogFlusher struct {
	state     *FlushState
	capture   *log.Capture
	store     blob.Store
	logger    *log.Logger
	collector *metrics.Collector

	interval time.Duration
	tick     time.Duration

	// now is a clock hook for tests.
	now func() time.Time
}

// NewLogFlusher creates a flush scheduler.
func NewLogFlusher(
	state *FlushState,
	capture *log.Capture,
	store blob.Store,
	logger *log.Logger,
	collector *metrics.Collector,
	interval, tick time.Duration,
) *LogFlusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if tick <= 0 {
		tick = DefaultFlushTick
	}
	return &LogFlusher{
		state:     state,
		capture:   capture,
		store:     store,
		logger:    logger,
		collector: collector,
		interval:  interval,
		tick:      tick,
		now:       time.Now,
	}
}

// Run ticks until ctx is canceled. On cancellation a final synchronous
// flush is performed if the dirty flag is still set, so a pending flush
// is never lost to shutdown.
func (f *LogFlusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.finalFlush()
			return
		case <-ticker.C:
			f.FlushIfDue(ctx)
		}
	}
}

// FlushIfDue performs a flush if the interval has elapsed and log content
// has accumulated. Returns true if a flush was attempted.
func (f *LogFlusher) FlushIfDue(ctx context.Context) bool {
	if !f.state.due(f.now(), f.interval) {
		return false
	}

	f.logger.Info("flushing accumulated log", map[string]any{"key": LogObjectKey})
	if err := f.Flush(ctx); err != nil {
		f.collector.IncLogFlushFailure()
		f.logger.Error("log flush failed", map[string]any{"error": err.Error()})
		return true
	}
	f.collector.IncLogFlushSuccess()
	return true
}

// Flush uploads the full current log content to the fixed log key, then
// truncates the local log and resets the flush state. The local log is
// only truncated after the upload succeeded; a failed upload leaves the
// content in place for the next attempt.
func (f *LogFlusher) Flush(ctx context.Context) error {
	data, err := f.capture.Snapshot()
	if err != nil {
		return err
	}

	if err := f.store.Put(ctx, LogObjectKey, "text/plain", data); err != nil {
		return err
	}

	if err := f.capture.Truncate(); err != nil {
		return err
	}

	f.state.reset(f.now())
	return nil
}

// finalFlush runs once at shutdown. The run context is already canceled,
// so the upload gets its own bounded context.
func (f *LogFlusher) finalFlush() {
	if !f.state.Dirty() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	f.logger.Info("flushing final log before shutdown", map[string]any{"key": LogObjectKey})
	if err := f.Flush(ctx); err != nil {
		f.collector.IncLogFlushFailure()
		f.logger.Error("final log flush failed", map[string]any{"error": err.Error()})
		return
	}
	f.collector.IncLogFlushSuccess()
}
