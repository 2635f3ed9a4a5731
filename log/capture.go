package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Capture is an append-only log file sink that supports atomic
// snapshot-and-truncate, which is what the flush scheduler needs:
// read everything accumulated so far, ship it, and clear the file
// only after delivery is confirmed.
//
// Writes and snapshots are serialized by a mutex so a snapshot never
// observes a torn entry.
type Capture struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenCapture opens (or creates) the log file at path in append mode.
// Parent directories are created on demand.
func OpenCapture(path string) (*Capture, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}

	return &Capture{path: path, file: f}, nil
}

// Path returns the local path of the captured log file.
func (c *Capture) Path() string {
	return c.path
}

// Write implements io.Writer for zapcore.AddSync.
func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Write(p)
}

// Sync flushes the file to stable storage.
func (c *Capture) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Sync()
}

// Snapshot returns the full current content of the log file.
func (c *Capture) Snapshot() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.file.Sync(); err != nil {
		return nil, fmt.Errorf("sync log file: %w", err)
	}
	return os.ReadFile(c.path)
}

// Truncate clears the log file. Call only after the snapshot has been
// durably delivered; truncating first would lose entries on upload failure.
func (c *Capture) Truncate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate log file: %w", err)
	}
	if _, err := c.file.Seek(0, 0); err != nil {
		return fmt.Errorf("rewind log file: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}
