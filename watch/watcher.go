// Package watch observes the input directory and emits debounced batches
// of file change events, plus the write-stability detector that gates
// per-file processing.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/types"
)

// Default debounce parameters, matching the ingestion contract:
// events within ~3s of each other merge into one batch, the pending
// batch is inspected every ~2s.
const (
	DefaultDebounce = 3 * time.Second
	DefaultStep     = 2 * time.Second
)

// Config configures the directory watcher.
type Config struct {
	// Dir is the watched input directory (non-recursive).
	Dir string
	// Extension filters events to paths with this extension (e.g. ".csv").
	// Matching is case-insensitive.
	Extension string
	// Debounce is the maximum age of a pending batch before it is emitted
	// even while events keep arriving.
	Debounce time.Duration
	// Step is the interval at which the pending batch is checked and, if
	// quiet, emitted.
	Step time.Duration
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Step <= 0 {
		c.Step = DefaultStep
	}
	return c
}

// Watcher observes a single directory and emits batches of FileEvents.
// It is infinite and non-restartable: a fatal error from the underlying
// watch mechanism terminates Run and is not retried.
type Watcher struct {
	cfg     Config
	fs      *fsnotify.Watcher
	logger  *log.Logger
	batches chan []types.FileEvent
}

// New creates a watcher on cfg.Dir. The directory must exist.
func New(cfg Config, logger *log.Logger) (*Watcher, error) {
	cfg = cfg.withDefaults()

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(cfg.Dir); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("watch %s: %w", cfg.Dir, err)
	}

	return &Watcher{
		cfg:     cfg,
		fs:      fs,
		logger:  logger,
		batches: make(chan []types.FileEvent),
	}, nil
}

// Batches returns the channel of debounced event batches.
// The channel is closed when Run returns.
func (w *Watcher) Batches() <-chan []types.FileEvent {
	return w.batches
}

// Run drives the watch loop until ctx is canceled or the underlying
// watcher fails. A non-nil return means a fatal watch error; cancellation
// returns nil. The batches channel is closed on exit either way.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.batches)
	defer func() { _ = w.fs.Close() }()

	ticker := time.NewTicker(w.cfg.Step)
	defer ticker.Stop()

	// pending coalesces rapid events per path within a batch window; see
	// coalesce for the merge rules.
	pending := make(map[string]types.FileEvent)
	var first, last time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return fmt.Errorf("watch events channel closed")
			}
			fe, ok := w.translate(ev)
			if !ok {
				continue
			}
			now := time.Now()
			if len(pending) == 0 {
				first = now
			}
			last = now
			pending[fe.Path] = coalesce(pending[fe.Path], fe)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return fmt.Errorf("watch errors channel closed")
			}
			// Fatal by contract: the watch is not restartable.
			return fmt.Errorf("watch failed: %w", err)

		case now := <-ticker.C:
			if len(pending) == 0 {
				continue
			}
			// Emit when the batch has been quiet for a step, or has been
			// accumulating past the debounce window.
			if now.Sub(last) < w.cfg.Step && now.Sub(first) < w.cfg.Debounce {
				continue
			}
			batch := make([]types.FileEvent, 0, len(pending))
			for _, fe := range pending {
				batch = append(batch, fe)
			}
			pending = make(map[string]types.FileEvent)

			select {
			case w.batches <- batch:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// coalesce merges a new change into the pending one for the same path.
// A create immediately followed by writes is still an arrival, so added
// absorbs modified. A removal always wins: the file is gone.
func coalesce(prev, next types.FileEvent) types.FileEvent {
	if prev.Path == "" {
		return next
	}
	if next.Kind == types.ChangeRemoved {
		return next
	}
	if prev.Kind == types.ChangeAdded {
		prev.DetectedAt = next.DetectedAt
		return prev
	}
	return next
}

// translate maps an fsnotify event into a FileEvent, applying the
// extension and non-directory filters. Chmod noise is dropped.
func (w *Watcher) translate(ev fsnotify.Event) (types.FileEvent, bool) {
	if w.cfg.Extension != "" &&
		!strings.EqualFold(filepath.Ext(ev.Name), w.cfg.Extension) {
		return types.FileEvent{}, false
	}

	var kind types.ChangeKind
	switch {
	case ev.Has(fsnotify.Create):
		kind = types.ChangeAdded
	case ev.Has(fsnotify.Write):
		kind = types.ChangeModified
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = types.ChangeRemoved
	default:
		return types.FileEvent{}, false
	}

	// Directories can match the extension filter in pathological cases;
	// only accept paths that are not directories (or are already gone).
	if kind != types.ChangeRemoved {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return types.FileEvent{}, false
		}
	}

	w.logger.Debug("filesystem change", map[string]any{
		"path": ev.Name,
		"kind": string(kind),
	})

	return types.FileEvent{
		Path:       ev.Name,
		Kind:       kind,
		DetectedAt: time.Now(),
	}, true
}
