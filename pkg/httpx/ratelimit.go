package httpx

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/passwordless/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines a token bucket in request-per-window terms.
type RateLimitConfig struct {
	// RequestsPerWindow is the sustained number of requests allowed per Window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// Transport level profiles. These sit in front of the domain throttles and
// only stop floods; cooldowns and lockouts are enforced by the auth service.
var (
	// AuthLimit guards the code request and verify endpoints.
	// Override with: RATELIMIT_AUTH_REQUESTS, RATELIMIT_AUTH_WINDOW_SEC, RATELIMIT_AUTH_BURST
	AuthLimit = RateLimitConfig{
		RequestsPerWindow: 20,
		Window:            time.Minute,
		Burst:             10,
	}

	// SessionLimit guards endpoints that require a session token.
	// Override with: RATELIMIT_SESSION_REQUESTS, RATELIMIT_SESSION_WINDOW_SEC, RATELIMIT_SESSION_BURST
	SessionLimit = RateLimitConfig{
		RequestsPerWindow: 120,
		Window:            time.Minute,
		Burst:             60,
	}

	// PublicLimit guards health and documentation endpoints.
	// Override with: RATELIMIT_PUBLIC_REQUESTS, RATELIMIT_PUBLIC_WINDOW_SEC, RATELIMIT_PUBLIC_BURST
	PublicLimit = RateLimitConfig{
		RequestsPerWindow: 1000,
		Window:            time.Minute,
		Burst:             1000,
	}
)

// ParseRateLimitFromEnv overlays RATELIMIT_{prefix}_{REQUESTS,WINDOW_SEC,BURST}
// onto defaultConfig. Missing, malformed or non-positive values keep the default.
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if v, ok := positiveEnvInt("RATELIMIT_" + prefix + "_REQUESTS"); ok {
		config.RequestsPerWindow = v
	}
	if v, ok := positiveEnvInt("RATELIMIT_" + prefix + "_WINDOW_SEC"); ok {
		config.Window = time.Duration(v) * time.Second
	}
	if v, ok := positiveEnvInt("RATELIMIT_" + prefix + "_BURST"); ok {
		config.Burst = v
	}

	return config
}

func positiveEnvInt(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., IP address, identity ID).
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// PrincipalKeyExtractor keys by authenticated identity, empty when anonymous.
func PrincipalKeyExtractor(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return p.IdentityID
	}
	return ""
}

// CompositeKeyExtractor joins the non-empty keys of extractors with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// bucket is one key's limiter plus the last time it was used.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// bucketSet manages rate limiters for different keys.
type bucketSet struct {
	buckets sync.Map // map[string]*bucket
	rate    rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time

	lastCleanup atomic.Int64 // unix nanos
}

func newBucketSet(config RateLimitConfig, now func() time.Time) *bucketSet {
	bs := &bucketSet{
		rate:  rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		burst: config.Burst,
		idle:  max(config.Window, 5*time.Minute),
		now:   now,
	}
	bs.lastCleanup.Store(now().UnixNano())
	return bs
}

// get retrieves or creates the bucket for key.
func (bs *bucketSet) get(key string, now time.Time) *bucket {
	v, ok := bs.buckets.Load(key)
	if !ok {
		fresh := &bucket{limiter: rate.NewLimiter(bs.rate, bs.burst)}
		fresh.lastSeen.Store(now.UnixNano())
		v, _ = bs.buckets.LoadOrStore(key, fresh)
		bs.maybeCleanup(now)
	}
	b := v.(*bucket)
	b.lastSeen.Store(now.UnixNano())
	return b
}

// maybeCleanup drops buckets idle for longer than bs.idle, at most once per
// idle period. Whoever wins the CAS does the sweep.
func (bs *bucketSet) maybeCleanup(now time.Time) {
	last := bs.lastCleanup.Load()
	if now.UnixNano()-last < int64(bs.idle) {
		return
	}
	if !bs.lastCleanup.CompareAndSwap(last, now.UnixNano()) {
		return
	}

	cutoff := now.Add(-bs.idle).UnixNano()
	bs.buckets.Range(func(key, value any) bool {
		if value.(*bucket).lastSeen.Load() < cutoff {
			bs.buckets.Delete(key)
		}
		return true
	})
}

func (bs *bucketSet) size() int {
	n := 0
	bs.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// RateLimitMiddleware creates a token bucket middleware. The keyExtractor
// determines how requests are grouped.
func RateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	return rateLimitMiddleware(config, keyExtractor, newBucketSet(config, time.Now))
}

func rateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor, bs *bucketSet) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			now := bs.now()
			limiter := bs.get(key, now).limiter
			if limiter.AllowN(now, 1) {
				next.ServeHTTP(w, r)
				return
			}

			// Peek at when the next token lands without consuming it.
			reservation := limiter.ReserveN(now, 1)
			delay := reservation.DelayFrom(now)
			reservation.CancelAt(now)

			retryAfter := max(int(delay.Seconds()), 1)

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Window", config.Window.String())

			log.Warn("rate limit exceeded",
				"key", key,
				"endpoint", r.URL.Path,
				"retry_after", retryAfter,
			)

			WriteJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":             "rate_limit_exceeded",
				"error_description": "Too many requests. Please try again later.",
				"retry_after":       retryAfter,
			})
		})
	}
}

// RateLimitByIP limits by client IP address only.
func RateLimitByIP(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, IPKeyExtractor)
}

// RateLimitByPrincipal limits by identity, falling back to IP for anonymous callers.
func RateLimitByPrincipal(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, func(r *http.Request) string {
		if id := PrincipalKeyExtractor(r); id != "" {
			return "id:" + id
		}
		return "ip:" + IPKeyExtractor(r)
	})
}
