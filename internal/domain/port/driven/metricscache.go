package driven

import "context"

// MetricsCache is an optional short-lived cache for aggregate metrics.
// Implementations must treat backend failures as cache misses.
type MetricsCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Invalidate(ctx context.Context)
}
