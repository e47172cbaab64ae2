package db

import (
	"context"
	"time"
)

// Store is the log-store facade combining all sub-interfaces.
// Consumers depend on the narrow sub-interfaces.
type Store interface {
	Pinger
	KVStore
	CounterStore
	LogStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides materialized key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// MGet returns one entry per key; missing keys yield nil.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// CounterStore provides expiring integer counters.
type CounterStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	// Expire sets a TTL. With nx, an existing TTL is left untouched.
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Log operations recorded on the stream.
const (
	LogOpPut    = "put"
	LogOpDelete = "delete"
)

// LogEntry is one append to a replicated stream together with the key it materializes.
type LogEntry struct {
	Stream string
	Key    string
	Value  []byte
}

// LogStore appends to replicated streams. Each call applies the stream entry
// and the materialized key atomically, so readers never see one without the other.
type LogStore interface {
	// Append records a put and sets Key to Value. Returns the stream entry id.
	Append(ctx context.Context, e LogEntry) (string, error)
	// Remove records a delete of Key and removes it. Returns the stream entry id.
	Remove(ctx context.Context, stream, key string) (string, error)
	// StreamLen returns the number of entries in a stream.
	StreamLen(ctx context.Context, stream string) (int64, error)
}
