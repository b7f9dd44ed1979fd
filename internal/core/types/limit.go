package types

import (
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

const (
	DefaultRateBurst = 1 * humanize.MByte
)

// RateLimiter throttles byte throughput for download streams.
type RateLimiter struct {
	*rate.Limiter
}

// NewRateLimiter builds a limiter for the given byte rate. A zero rate
// means unlimited.
func NewRateLimiter(rateLimit, rateBurst Bytes) *RateLimiter {
	if rateLimit == 0 {
		return &RateLimiter{rate.NewLimiter(rate.Inf, 0)}
	}

	burst := int(rateBurst.Uint64())
	// Keep the burst below a tenth of the rate so throttling stays smooth
	if burst > int(rateLimit/10) {
		burst = int(rateLimit / 10)
	}
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{rate.NewLimiter(rate.Limit(rateLimit.Uint64()), burst)}
}

// Unlimited reports whether the limiter imposes no throttling.
func (r *RateLimiter) Unlimited() bool {
	return r == nil || r.Limit() == rate.Inf
}
