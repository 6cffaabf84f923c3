package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Cache namespaces used as the cache.namespace attribute.
const (
	CacheNamespaceItem   = "item"
	CacheNamespaceSearch = "search"
)

// CacheMetrics counts task cache outcomes. The zero value and a nil pointer
// are both safe to use and record nothing.
type CacheMetrics struct {
	hits   metric.Int64Counter
	misses metric.Int64Counter
	errors metric.Int64Counter
}

// NewCacheMetrics creates the cache counters on meter.
func NewCacheMetrics(meter metric.Meter) (*CacheMetrics, error) {
	m := &CacheMetrics{}

	var err error
	m.hits, err = meter.Int64Counter(
		"cache.hits",
		metric.WithDescription("Task cache lookups answered from the cache"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hit counter: %w", err)
	}

	m.misses, err = meter.Int64Counter(
		"cache.misses",
		metric.WithDescription("Task cache lookups that fell through to the store"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache miss counter: %w", err)
	}

	m.errors, err = meter.Int64Counter(
		"cache.errors",
		metric.WithDescription("Task cache operations that failed"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache error counter: %w", err)
	}

	return m, nil
}

// Hit records a cache hit in namespace.
func (m *CacheMetrics) Hit(ctx context.Context, namespace string) {
	if m == nil || m.hits == nil {
		return
	}
	m.hits.Add(ctx, 1, namespaceOption(namespace))
}

// Miss records a cache miss in namespace.
func (m *CacheMetrics) Miss(ctx context.Context, namespace string) {
	if m == nil || m.misses == nil {
		return
	}
	m.misses.Add(ctx, 1, namespaceOption(namespace))
}

// Error records a failed cache operation in namespace.
func (m *CacheMetrics) Error(ctx context.Context, namespace string) {
	if m == nil || m.errors == nil {
		return
	}
	m.errors.Add(ctx, 1, namespaceOption(namespace))
}

func namespaceOption(namespace string) metric.AddOption {
	return metric.WithAttributes(attribute.String("cache.namespace", namespace))
}
