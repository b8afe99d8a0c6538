package config

import "time"

// RateLimitConfig bounds how fast the client may call the backend.  A burst
// of Capacity requests is allowed, refilled at one token per RefillInterval.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillInterval time.Duration
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables, clamping nonsensical
// values to the nearest usable one.
func LoadRateLimitConfig() (RateLimitConfig, error) {
	enabled, err := boolEnv("RATE_LIMIT_ENABLED", true)
	if err != nil {
		return RateLimitConfig{}, err
	}
	capacity, err := intEnv("RATE_LIMIT_CAPACITY", 20)
	if err != nil {
		return RateLimitConfig{}, err
	}
	every, err := durEnv("RATE_LIMIT_REFILL_INTERVAL", 100*time.Millisecond)
	if err != nil {
		return RateLimitConfig{}, err
	}
	cfg := RateLimitConfig{Enabled: enabled, Capacity: capacity, RefillInterval: every}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	return cfg, nil
}
