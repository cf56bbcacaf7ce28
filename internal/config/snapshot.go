package config

import "time"

// SnapshotConfig controls the Redis-backed seat-map snapshot cache.  The
// cache serves display reads only; seat mutations always invalidate it, so
// the TTL just bounds staleness when invalidation is missed.
type SnapshotConfig struct {
	Enabled bool
	TTL     time.Duration
}

// LoadSnapshotConfig reads the snapshot cache settings from environment
// variables, with defaults suitable for development.
func LoadSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		Enabled: envBool("SEATMAP_CACHE_ENABLED", true),
		TTL:     envDur("SEATMAP_CACHE_TTL", 10*time.Second),
	}
}
