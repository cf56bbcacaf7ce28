package config

import "time"

// RateLimitConfig tunes the Redis token-bucket limiter that guards the
// hold, confirm and cancel routes.  One bucket is keyed per KeyStrategy
// combination; the default strategy separates clients by IP, user and
// route so a burst on the hold path never starves other users.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int           // bucket size, i.e. the largest allowed burst
	RefillTokens   int           // tokens added per refill interval
	RefillInterval time.Duration // sustained rate is RefillTokens per interval
	TTL            time.Duration // Redis expiry of idle bucket state
	KeyStrategy    string        // ip, user, route, or combinations like ip_user_route
	Prefix         string        // Redis key namespace
	Debug          bool          // emit limiter decisions and keys
}

// LoadRateLimitConfig reads the limiter settings from environment
// variables.  The defaults allow a burst of 60 requests refilled at one per
// second, which is generous for a human picking seats and tight enough to
// blunt scripted hold-hoarding.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	// Bucket state must outlive several refill intervals or idle buckets
	// would reset to full capacity between requests.
	if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}
