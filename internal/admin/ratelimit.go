package admin

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	staleLimiterTTL = 10 * time.Minute
	cleanupInterval = time.Minute
)

type rule struct {
	method string // "" matches any method
	prefix string // "" matches any path
	limit  rate.Limit
	burst  int
}

func (r rule) key() string { return r.method + ":" + r.prefix }

// defaultRules: reconciliation scans whole tables, repair points change what
// the next start does.
var defaultRules = []rule{
	{method: http.MethodPost, prefix: "/admin/v1/reconcile", limit: rate.Limit(1.0 / 60), burst: 1},
	{method: http.MethodPost, prefix: "/admin/v1/checkpoint/repair", limit: rate.Limit(6.0 / 60), burst: 2},
	{limit: 1, burst: 5},
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies per-endpoint, per-client token buckets.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry // "rule|clientIP"
	rules    []rule
	logger   *slog.Logger
	now      func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter starts a goroutine that evicts idle clients; call Stop to
// release it.
func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rules:    defaultRules,
		logger:   logger.With("component", "admin_ratelimit"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.evictStale()
		}
	}
}

func (rl *RateLimiter) evictStale() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, e := range rl.limiters {
		if now.Sub(e.lastSeen) > staleLimiterTTL {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) limiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if !rl.limiterFor(rl.match(r.Method, r.URL.Path), client).Allow() {
			rl.logger.Warn("admin API rate limit exceeded",
				"method", r.Method, "path", r.URL.Path, "client_ip", client)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) match(method, path string) rule {
	for _, ru := range rl.rules {
		if ru.method != "" && !strings.EqualFold(ru.method, method) {
			continue
		}
		if ru.prefix != "" && !strings.HasPrefix(path, ru.prefix) {
			continue
		}
		return ru
	}
	return rule{limit: 1, burst: 5}
}

func (rl *RateLimiter) limiterFor(ru rule, client string) *rate.Limiter {
	key := ru.key() + "|" + client
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if e, ok := rl.limiters[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	l := rate.NewLimiter(ru.limit, ru.burst)
	rl.limiters[key] = &limiterEntry{limiter: l, lastSeen: now}
	return l
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
