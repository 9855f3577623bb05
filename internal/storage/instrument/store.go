// Package instrument decorates a feed cache store with OpenTelemetry
// tracing and metrics.
//
// The decorator changes no contract semantics; the storagetest suite
// certifies it against the same properties as any backend. With no global
// providers registered, all instrumentation is a no-op.
package instrument

import (
	"context"
	"time"

	"github.com/louisbranch/feedcache/internal/feed"
	"github.com/louisbranch/feedcache/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/louisbranch/feedcache/internal/storage/instrument"

// Store wraps another store and records a span, an operation counter, and a
// duration histogram per operation.
type Store struct {
	inner        storage.Store
	tracer       trace.Tracer
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// Wrap decorates the provided store. Instrument construction failures are
// not fatal to the cache; they surface as an error so callers can choose to
// proceed uninstrumented.
func Wrap(inner storage.Store) (*Store, error) {
	meter := otel.Meter(scopeName)

	totalCount, err := meter.Int64Counter(
		"feedcache.store.ops",
		metric.WithDescription("Total feed cache store operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}
	errorCount, err := meter.Int64Counter(
		"feedcache.store.errors",
		metric.WithDescription("Feed cache store operations that failed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}
	durationHist, err := meter.Float64Histogram(
		"feedcache.store.duration_ms",
		metric.WithDescription("Feed cache store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Store{
		inner:        inner,
		tracer:       otel.Tracer(scopeName),
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

// Retrieve delegates to the wrapped store and records the observation.
func (s *Store) Retrieve(ctx context.Context) (feed.Cached, bool, error) {
	ctx, span := s.tracer.Start(ctx, "feedcache.store.retrieve")
	start := time.Now()

	cached, found, err := s.inner.Retrieve(ctx)

	span.SetAttributes(attribute.Bool("feedcache.found", found))
	s.finish(ctx, span, "retrieve", start, err)
	return cached, found, err
}

// Insert delegates to the wrapped store and records the observation.
func (s *Store) Insert(ctx context.Context, cached feed.Cached) error {
	ctx, span := s.tracer.Start(ctx, "feedcache.store.insert")
	start := time.Now()

	err := s.inner.Insert(ctx, cached)

	span.SetAttributes(attribute.Int("feedcache.images", len(cached.Images)))
	s.finish(ctx, span, "insert", start, err)
	return err
}

// Delete delegates to the wrapped store and records the observation.
func (s *Store) Delete(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "feedcache.store.delete")
	start := time.Now()

	err := s.inner.Delete(ctx)

	s.finish(ctx, span, "delete", start, err)
	return err
}

// Close closes the wrapped store.
func (s *Store) Close() error {
	return s.inner.Close()
}

func (s *Store) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	opt := metric.WithAttributes(attribute.String("feedcache.op", op))
	s.totalCount.Add(ctx, 1, opt)
	s.durationHist.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), opt)
	if err != nil {
		s.errorCount.Add(ctx, 1, opt)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

var _ storage.Store = (*Store)(nil)
