package httpx

import "time"

// NewTestRateLimit exposes a middleware built on a controllable clock along
// with a probe for the number of live buckets.
func NewTestRateLimit(config RateLimitConfig, key KeyExtractor, now func() time.Time) (Middleware, func() int) {
	bs := newBucketSet(config, now)
	return rateLimitMiddleware(config, key, bs), bs.size
}
