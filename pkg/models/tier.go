package models

import "time"

// RateLimitTier is a named rate-limit policy: how many requests a key may
// make within one window. Immutable reference data seeded by migrations.
type RateLimitTier struct {
	Name              string `db:"name"                json:"name"`
	RequestsPerWindow int    `db:"requests_per_window" json:"requests_per_window"`
	WindowSeconds     int    `db:"window_seconds"      json:"window_seconds"`
}

// Window returns the tier's window duration.
func (t *RateLimitTier) Window() time.Duration {
	return time.Duration(t.WindowSeconds) * time.Second
}
