package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorIdleTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors holds one token bucket per client address. Idle buckets are
// dropped lazily on access instead of by a background ticker.
type visitors struct {
	mu        sync.Mutex
	items     map[string]*visitor
	rps       rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

func newVisitors(rps float64, burst int) *visitors {
	return &visitors{
		items: make(map[string]*visitor),
		rps:   rate.Limit(rps),
		burst: burst,
		now:   time.Now,
	}
}

func (v *visitors) allow(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if now.Sub(v.lastSweep) > time.Minute {
		v.sweep(now)
	}

	item, ok := v.items[key]
	if !ok {
		item = &visitor{limiter: rate.NewLimiter(v.rps, v.burst)}
		v.items[key] = item
	}
	item.lastSeen = now
	return item.limiter.AllowN(now, 1)
}

func (v *visitors) sweep(now time.Time) {
	for key, item := range v.items {
		if now.Sub(item.lastSeen) > visitorIdleTTL {
			delete(v.items, key)
		}
	}
	v.lastSweep = now
}

func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	limiters := newVisitors(rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.allow(extractIP(r.RemoteAddr)) {
				w.Header().Set("Retry-After", "1")
				writeErrorJSON(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}
