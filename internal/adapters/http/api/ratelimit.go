package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/okian/verdict/pkg/metrics"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) RateDecision
	Close() error
}

// RateDecision is the outcome of one Allow call.
type RateDecision struct {
	Allowed   bool
	Count     int
	WindowEnd time.Time
}

type rateState struct {
	count     int
	windowEnd time.Time
}

// MemoryRateLimiter is a single-process fixed-window limiter. Expired windows
// are swept during Allow.
type MemoryRateLimiter struct {
	mu        sync.Mutex
	entries   map[string]rateState
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryRateLimiter creates an empty limiter.
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		entries: make(map[string]rateState),
		now:     time.Now,
	}
}

// Allow implements RateLimiter.
func (rl *MemoryRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) RateDecision {
	if limit <= 0 {
		return RateDecision{Allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rateLimiterSweepInterval {
		rl.sweep(now)
	}

	state, ok := rl.entries[key]
	if !ok || now.After(state.windowEnd) {
		state = rateState{count: 1, windowEnd: now.Add(window)}
		rl.entries[key] = state
		return RateDecision{Allowed: true, Count: state.count, WindowEnd: state.windowEnd}
	}
	if state.count >= limit {
		return RateDecision{Allowed: false, Count: state.count, WindowEnd: state.windowEnd}
	}
	state.count++
	rl.entries[key] = state
	return RateDecision{Allowed: true, Count: state.count, WindowEnd: state.windowEnd}
}

func (rl *MemoryRateLimiter) sweep(now time.Time) {
	for key, state := range rl.entries {
		if now.After(state.windowEnd) {
			delete(rl.entries, key)
		}
	}
	rl.lastSweep = now
}

// Close implements RateLimiter.
func (rl *MemoryRateLimiter) Close() error { return nil }

// rateLimit guards submissions per caller.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || s.submitLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		key := rateLimitKey(r)
		decision := s.limiter.Allow(r.Context(), key, s.submitLimit, s.window)
		applyRateHeaders(w, s.submitLimit, decision)
		if !decision.Allowed {
			metrics.RecordRateLimited(limiterBackend(s.limiter))
			writeError(w, http.StatusTooManyRequests, codeRateLimited, ErrRateLimited, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) string {
	if c := callerOf(r); c.ID != "" {
		return "caller:" + c.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

func limiterBackend(l RateLimiter) string {
	if _, ok := l.(*RedisRateLimiter); ok {
		return "redis"
	}
	return "memory"
}

func applyRateHeaders(w http.ResponseWriter, limit int, decision RateDecision) {
	remaining := limit - decision.Count
	if remaining < 0 {
		remaining = 0
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.WindowEnd.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.WindowEnd.Unix(), 10))
	}
}
