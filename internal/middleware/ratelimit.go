package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"offer-api/internal/logging"
)

// RateLimitOptions configures a RateLimiter.
type RateLimitOptions struct {
	// Rate is the number of read requests a client may make per Window.
	Rate int
	// WriteRate is the budget for POST, PUT and DELETE. Zero means Rate.
	WriteRate int
	Window    time.Duration
	Logger    logrus.FieldLogger
}

// RateLimiter is a per-client token bucket. Reads and writes draw from
// separate buckets, so a client listing offers can't starve its own writes.
type RateLimiter struct {
	opts RateLimitOptions

	mu      sync.Mutex
	buckets map[bucketKey]*bucket

	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type bucketKey struct {
	client string
	write  bool
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a limiter and starts evicting idle clients.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	if opts.WriteRate <= 0 {
		opts.WriteRate = opts.Rate
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	rl := &RateLimiter{
		opts:    opts,
		buckets: make(map[bucketKey]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.evictIdle(5 * time.Minute)
	return rl
}

// evictIdle drops buckets untouched for a whole window. Such a bucket is
// full again, so forgetting it changes nothing for the client.
func (rl *RateLimiter) evictIdle(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, b := range rl.buckets {
				if now.Sub(b.last) >= rl.opts.Window {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stop:
			return
		}
	}
}

// Stop stops the eviction goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Limit returns the per-window budget for reads or writes.
func (rl *RateLimiter) Limit(write bool) int {
	if write {
		return rl.opts.WriteRate
	}
	return rl.opts.Rate
}

// Allow takes a read token for client.
func (rl *RateLimiter) Allow(client string) bool {
	ok, _, _ := rl.take(client, false)
	return ok
}

// take consumes a token and reports the whole tokens left, or how long
// until the next token when the bucket is empty.
func (rl *RateLimiter) take(client string, write bool) (bool, int, time.Duration) {
	limit := float64(rl.Limit(write))
	key := bucketKey{client: client, write: write}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: limit, last: now}
		rl.buckets[key] = b
	}

	window := float64(rl.opts.Window)
	b.tokens = math.Min(limit, b.tokens+limit*float64(now.Sub(b.last))/window)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, int(b.tokens), 0
	}
	wait := time.Duration((1 - b.tokens) * window / limit)
	return false, 0, wait
}

// ClientKey identifies the client by the host part of RemoteAddr. Behind a
// trusted proxy chi's RealIP middleware has already rewritten RemoteAddr.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isWrite(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// RateLimitMiddleware rejects requests over the client's budget with 429.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientKey(r)
			write := isWrite(r.Method)

			ok, remaining, wait := limiter.take(client, write)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit(write)))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				limiter.opts.Logger.WithFields(logrus.Fields{
					"client": client,
					"method": r.Method,
					"path":   r.URL.Path,
				}).Warn("rate limit exceeded")

				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error": "rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
