package watch

import (
	"context"
	"os"
	"time"
)

// Default stability parameters.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultConfirmDelay = 2 * time.Second
	DefaultTimeout      = 30 * time.Second
)

// StabilityConfig tunes the write-stability detector.
type StabilityConfig struct {
	// PollInterval is the delay between size reads.
	PollInterval time.Duration
	// ConfirmDelay is the extra wait after two equal reads before the
	// confirming read.
	ConfirmDelay time.Duration
	// Timeout bounds the total wait for stability.
	Timeout time.Duration
}

func (c StabilityConfig) withDefaults() StabilityConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ConfirmDelay <= 0 {
		c.ConfirmDelay = DefaultConfirmDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// AwaitStable waits until the file at path has finished being written.
//
// A creation event can fire while the producer is still writing; reading
// at that point would capture a partial file. Stability means two
// consecutive size reads returned the same nonzero size, and a third read
// after the confirmation delay agreed.
//
// Returns false if the path disappears (race with external deletion or
// move), if the timeout elapses without stability, or if ctx is canceled.
func AwaitStable(ctx context.Context, path string, cfg StabilityConfig) bool {
	cfg = cfg.withDefaults()

	deadline := time.Now().Add(cfg.Timeout)
	lastSize := int64(-1)

	for time.Now().Before(deadline) {
		info, err := os.Stat(path)
		if err != nil {
			// Vanished mid-wait: someone else moved or deleted it.
			return false
		}
		size := info.Size()

		if size > 0 && size == lastSize {
			if !sleepCtx(ctx, cfg.ConfirmDelay) {
				return false
			}
			confirm, err := os.Stat(path)
			if err != nil {
				return false
			}
			if confirm.Size() == size {
				return true
			}
		}

		lastSize = size
		if !sleepCtx(ctx, cfg.PollInterval) {
			return false
		}
	}

	return false
}

// sleepCtx sleeps for d or until ctx is canceled.
// Returns false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
