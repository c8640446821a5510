// Package ratelimit throttles requests per client key with token buckets.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const unknownClient = "unknown"

type clientKey struct{}

// WithClient stores the caller's key in ctx.
func WithClient(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKey{}, key)
}

// ClientFrom returns the key stored by WithClient, or "unknown".
func ClientFrom(ctx context.Context) string {
	if key, ok := ctx.Value(clientKey{}).(string); ok && key != "" {
		return key
	}
	return unknownClient
}

// ClientKey keys each request by its remote IP. Mount it after chi's RealIP
// so proxied requests use the forwarded address.
func ClientKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.RemoteAddr
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), host)))
	})
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per key. Buckets idle for longer than
// idleTTL are dropped on the next Allow.
type Limiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// New allows burst requests at once per key and refills at limit.
func New(limit rate.Limit, burst int) *Limiter {
	return &Limiter{
		limit:   limit,
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
		buckets: map[string]*bucket{},
	}
}

// Allow reports whether key may make a request now.
func (l *Limiter) Allow(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = unknownClient
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > l.idleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.idleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
