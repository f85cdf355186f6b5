package domain

import (
	"context"
	"time"
)

// EventBus fans engine events out to interested subscribers (websocket hub,
// external consumers).
type EventBus interface {
	// Publish sends a raw byte payload to a named channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a read-only channel of payloads for the named
	// channel (glob patterns allowed). The subscription closes when the
	// context is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under limit
	// requests per window, counting the request when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager serializes state-mutating operations across server replicas.
// The engine itself is single-writer; the lock enforces that property at the
// process boundary.
type LockManager interface {
	// Acquire obtains the named lock with a TTL and returns an unlock
	// function. It returns ErrLockHeld when another party holds the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
