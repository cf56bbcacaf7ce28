// Package cache keeps short-lived seat-map snapshots in Redis.  Snapshots
// are for display only; hold decisions are made exclusively by the
// inventory's atomic mutation path.  A slightly stale read is fine, and
// every read degrades gracefully to the authoritative source when Redis is
// unavailable.
package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeatMap caches the JSON seat map of a showtime under one key per
// showtime.  A nil Redis client disables the cache entirely.
type SeatMap struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewSeatMap builds the cache.  Entries live for ttl; mutations invalidate
// eagerly so the ttl only bounds staleness between invalidation misses.
func NewSeatMap(rdb *redis.Client, ttl time.Duration) *SeatMap {
	return &SeatMap{rdb: rdb, ttl: ttl, prefix: "seatmap"}
}

func (c *SeatMap) key(showtimeID string) string {
	return c.prefix + ":" + showtimeID
}

// Get returns the cached snapshot payload and whether it was present.
func (c *SeatMap) Get(ctx context.Context, showtimeID string) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	payload, err := c.rdb.Get(ctx, c.key(showtimeID)).Bytes()
	if err != nil {
		return nil, false
	}
	return payload, true
}

// Set stores a snapshot payload.  Failures are logged and ignored.
func (c *SeatMap) Set(ctx context.Context, showtimeID string, payload []byte) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(showtimeID), payload, c.ttl).Err(); err != nil {
		log.Printf("cache: set seatmap %s failed: %v", showtimeID, err)
	}
}

// Invalidate drops the snapshot for a showtime after any seat mutation.
func (c *SeatMap) Invalidate(ctx context.Context, showtimeID string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, c.key(showtimeID)).Err(); err != nil {
		log.Printf("cache: invalidate seatmap %s failed: %v", showtimeID, err)
	}
}
