package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethpandaops/promotoor/pkg/config"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

// limiterPool tracks one token bucket per client address for a single
// rate limit tier. Public reads and authenticated writes each get their
// own pool so CI traffic cannot starve interactive users. Idle entries
// are swept opportunistically on access instead of by a background
// goroutine.
type limiterPool struct {
	tier  string
	limit rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

type clientLimiter struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

func newLimiterPool(tier string, requestsPerMinute int) *limiterPool {
	return &limiterPool{
		tier:  tier,
		limit: rate.Limit(float64(requestsPerMinute) / 60.0),
		// A full minute's quota may arrive as one burst.
		burst:     requestsPerMinute,
		clients:   make(map[string]*clientLimiter, 64),
		lastSweep: time.Now(),
	}
}

// allow reports whether the client may proceed under this tier.
func (p *limiterPool) allow(addr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()

	if now.Sub(p.lastSweep) > limiterSweepEvery {
		for a, c := range p.clients {
			if now.Sub(c.lastSeen) > limiterIdleAfter {
				delete(p.clients, a)
			}
		}

		p.lastSweep = now
	}

	c, ok := p.clients[addr]
	if !ok {
		c = &clientLimiter{bucket: rate.NewLimiter(p.limit, p.burst)}
		p.clients[addr] = c
	}

	c.lastSeen = now

	return c.bucket.Allow()
}

// rateLimitMiddleware throttles requests per client IP under the named
// tier's configuration.
func (s *server) rateLimitMiddleware(
	tier string, cfg config.RateLimitTier,
) func(http.Handler) http.Handler {
	pool := newLimiterPool(tier, cfg.RequestsPerMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := clientAddr(r)

			if !pool.allow(addr) {
				s.log.WithField("tier", tier).
					WithField("remote", addr).
					Debug("Rate limit exceeded")

				writeJSON(w, http.StatusTooManyRequests,
					errorResponse{"rate limit exceeded"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr resolves the client address, preferring the first entry of
// X-Forwarded-For when a proxy sits in front.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
