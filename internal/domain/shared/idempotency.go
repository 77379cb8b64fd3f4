package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys for a bounded time window. The realtime
// reconciler uses it to suppress duplicate push events keyed by
// (event class, primary entity id).
type IdempotencyStore interface {
	// MarkProcessed marks a key as seen for ttl.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key is still inside its window
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}
