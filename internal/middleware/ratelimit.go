package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig sizes the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

// bucketRegistry keys one token bucket per client IP and evicts buckets
// that have gone quiet so the map stays bounded.
type bucketRegistry struct {
	cfg     RateLimitConfig
	buckets sync.Map
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func (r *bucketRegistry) get(ip string) *rate.Limiter {
	now := time.Now()
	if v, ok := r.buckets.Load(ip); ok {
		b := v.(*bucket)
		b.lastSeen = now
		return b.lim
	}
	b := &bucket{
		lim:      rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.Burst),
		lastSeen: now,
	}
	r.buckets.Store(ip, b)
	return b.lim
}

func (r *bucketRegistry) sweep() {
	for {
		time.Sleep(limiterSweepEvery)
		r.buckets.Range(func(key, v any) bool {
			if time.Since(v.(*bucket).lastSeen) > limiterIdleAfter {
				r.buckets.Delete(key)
			}
			return true
		})
	}
}

// RateLimiter throttles each client IP with its own token bucket. Over
// the limit, the response is 429 with a Retry-After hint.
func RateLimiter(cfg RateLimitConfig) func(http.Handler) http.Handler {
	reg := &bucketRegistry{cfg: cfg}
	go reg.sweep()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lim := reg.get(clientIP(r))

			res := lim.Reserve()
			if !res.OK() {
				rateLimited(w, 0)
				return
			}
			if wait := res.Delay(); wait > 0 {
				// Reject rather than queue; the tokens go back so the
				// client's Retry-After stays honest.
				res.Cancel()
				rateLimited(w, int(wait.Seconds())+1)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(lim.Tokens())))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP keys buckets by RemoteAddr only. X-Forwarded-For is client
// input and would let a caller mint fresh buckets at will.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func rateLimited(w http.ResponseWriter, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    http.StatusTooManyRequests,
		"message": "rate limit exceeded",
	})
}
