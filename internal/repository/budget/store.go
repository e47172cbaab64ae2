// Package budget keeps LLM token counters in the primary store.
// Every counter belongs to one window (a day or a month) and expires after it.
package budget

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Slack keeps a counter readable for a while after its window closes.
const Slack = 24 * time.Hour

type store interface {
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Counters reads and bumps windowed token counters.
type Counters struct {
	store store
	now   func() time.Time
}

// New wraps a log store.
func New(s store) *Counters {
	return &Counters{store: s, now: time.Now}
}

// Load returns one value per key, zero for keys never written.
func (c *Counters) Load(ctx context.Context, keys []string) ([]int64, error) {
	out := make([]int64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	raw, err := c.store.MGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load token counters: %w", err)
	}
	for i, b := range raw {
		if i >= len(out) || b == nil {
			continue
		}
		n, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("token counter %s holds %q: %w", keys[i], b, err)
		}
		out[i] = n
	}
	return out, nil
}

// Add bumps key by n. The first write of a window pins its expiry to windowEnd+Slack;
// later writes leave it alone.
func (c *Counters) Add(ctx context.Context, key string, n int64, windowEnd time.Time) error {
	if err := c.store.IncrBy(ctx, key, n); err != nil {
		return fmt.Errorf("bump token counter %s: %w", key, err)
	}
	ttl := windowEnd.Add(Slack).Sub(c.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := c.store.Expire(ctx, key, ttl, true); err != nil {
		return fmt.Errorf("expire token counter %s: %w", key, err)
	}
	return nil
}
