// Package blob provides the object store integration for the pipeline.
//
// This package defines the narrow Store capability the pipeline consumes
// (bucket management, versioning, whole-object put/upload), a real
// S3-compatible implementation, and a recording stub for tests.
package blob

import (
	"context"
	"sync"
)

// VersioningMode selects the bucket versioning behavior applied at startup.
type VersioningMode string

// Versioning mode constants. Any other configured value is a no-op.
const (
	VersioningEnabled   VersioningMode = "enabled"
	VersioningSuspended VersioningMode = "suspended"
)

// IsActionable returns true if the mode maps to a bucket versioning call.
func (m VersioningMode) IsActionable() bool {
	return m == VersioningEnabled || m == VersioningSuspended
}

// Store is the object store capability consumed by the pipeline.
// Implementations must be safe for concurrent use: per-file workflows
// and the log flush scheduler call into the same Store.
type Store interface {
	// Ping verifies the store is reachable with the configured credentials.
	Ping(ctx context.Context) error

	// EnsureBucket checks that the configured bucket exists and creates it
	// if absent.
	EnsureBucket(ctx context.Context) error

	// SetVersioning applies the versioning mode to the bucket.
	// Non-actionable modes return nil without a store call.
	SetVersioning(ctx context.Context, mode VersioningMode) error

	// Put writes an object from in-memory bytes with a content type.
	Put(ctx context.Context, key, contentType string, data []byte) error

	// Upload writes an object from a local file path.
	Upload(ctx context.Context, key, path string) error

	// Close releases client resources.
	Close() error
}

// StubStore is a test store that records calls without persisting.
// Error fields inject failures for the corresponding operation.
type StubStore struct {
	mu sync.Mutex

	Puts    []StubPut
	Uploads []StubUpload

	Pinged       bool
	BucketChecks int
	Versioning   []VersioningMode
	Closed       bool

	PingErr    error
	BucketErr  error
	PutErr     error
	UploadErr  error
	VersionErr error
}

// StubPut is a recorded Put call.
type StubPut struct {
	Key         string
	ContentType string
	Data        []byte
}

// StubUpload is a recorded Upload call.
type StubUpload struct {
	Key  string
	Path string
}

// NewStubStore creates a new stub store.
func NewStubStore() *StubStore {
	return &StubStore{}
}

// Ping implements Store.
func (s *StubStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Pinged = true
	return s.PingErr
}

// EnsureBucket implements Store.
func (s *StubStore) EnsureBucket(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BucketChecks++
	return s.BucketErr
}

// SetVersioning implements Store.
func (s *StubStore) SetVersioning(_ context.Context, mode VersioningMode) error {
	if !mode.IsActionable() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.VersionErr != nil {
		return s.VersionErr
	}
	s.Versioning = append(s.Versioning, mode)
	return nil
}

// Put implements Store by recording the call.
func (s *StubStore) Put(_ context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.Puts = append(s.Puts, StubPut{Key: key, ContentType: contentType, Data: buf})
	return nil
}

// Upload implements Store by recording the call.
func (s *StubStore) Upload(_ context.Context, key, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UploadErr != nil {
		return s.UploadErr
	}
	s.Uploads = append(s.Uploads, StubUpload{Key: key, Path: path})
	return nil
}

// Close implements Store.
func (s *StubStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// UploadKeys returns the keys of recorded uploads, in call order.
func (s *StubStore) UploadKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.Uploads))
	for _, u := range s.Uploads {
		keys = append(keys, u.Key)
	}
	return keys
}

// Verify StubStore implements Store.
var _ Store = (*StubStore)(nil)
