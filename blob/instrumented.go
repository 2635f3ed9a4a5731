package blob

import (
	"context"

	"github.com/pithecene-io/hopper/metrics"
)

// InstrumentedStore wraps a Store and records write metrics.
// Each Put/Upload call increments store_put_success or store_put_failure
// on the metrics collector. Startup calls (Ping, EnsureBucket,
// SetVersioning) are not counted; failures there abort the run anyway.
type InstrumentedStore struct {
	inner     Store
	collector *metrics.Collector
}

// NewInstrumentedStore wraps a store with metrics instrumentation.
func NewInstrumentedStore(inner Store, collector *metrics.Collector) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, collector: collector}
}

// Ping delegates to the inner store.
func (s *InstrumentedStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// EnsureBucket delegates to the inner store.
func (s *InstrumentedStore) EnsureBucket(ctx context.Context) error {
	return s.inner.EnsureBucket(ctx)
}

// SetVersioning delegates to the inner store.
func (s *InstrumentedStore) SetVersioning(ctx context.Context, mode VersioningMode) error {
	return s.inner.SetVersioning(ctx, mode)
}

// Put delegates to the inner store and records success or failure.
func (s *InstrumentedStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	err := s.inner.Put(ctx, key, contentType, data)
	if err != nil {
		s.collector.IncStorePutFailure()
	} else {
		s.collector.IncStorePutSuccess()
	}
	return err
}

// Upload delegates to the inner store and records success or failure.
func (s *InstrumentedStore) Upload(ctx context.Context, key, path string) error {
	err := s.inner.Upload(ctx, key, path)
	if err != nil {
		s.collector.IncStorePutFailure()
	} else {
		s.collector.IncStorePutSuccess()
	}
	return err
}

// Close delegates to the inner store.
func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

// Verify InstrumentedStore implements Store.
var _ Store = (*InstrumentedStore)(nil)
