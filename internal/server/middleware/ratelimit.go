package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	// PerIPRate is the sustained upgrade attempts per second allowed for
	// one IP; PerIPBurst the burst on top of it. Zero disables limiting.
	PerIPRate  float64
	PerIPBurst int
	// IPTTL controls how long an idle IP's bucket is kept before cleanup.
	IPTTL time.Duration
}

type ipBucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter guards the upgrade endpoint with per-IP token buckets so
// one misbehaving client cannot flood the registry with connections.
func NewRateLimiter(logger *slog.Logger, cfg RateLimitConfig) Middleware {
	if cfg.IPTTL <= 0 {
		cfg.IPTTL = 5 * time.Minute
	}

	var (
		mu      sync.Mutex
		buckets = make(map[string]*ipBucket)
		swept   = time.Now()
	)

	getBucket := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		// opportunistic cleanup of idle buckets
		if now := time.Now(); now.Sub(swept) > cfg.IPTTL {
			for key, b := range buckets {
				if now.Sub(b.lastAccess) > cfg.IPTTL {
					delete(buckets, key)
				}
			}
			swept = now
		}

		b, ok := buckets[ip]
		if !ok {
			b = &ipBucket{limiter: rate.NewLimiter(rate.Limit(cfg.PerIPRate), cfg.PerIPBurst)}
			buckets[ip] = b
		}
		b.lastAccess = time.Now()
		return b.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.PerIPRate <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Rate limiter could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if !getBucket(reqMeta.IP).Allow() {
				logger.Warn("Upgrade rate limit exceeded", slog.String("ip", reqMeta.IP))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
