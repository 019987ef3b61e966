package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// sendLimiter caps remote sends per client in fixed windows. A zero limit
// disables it.
type sendLimiter struct {
	mu        sync.Mutex
	perClient map[string]*clientWindow
	limit     int
	window    time.Duration
	now       func() time.Time
}

type clientWindow struct {
	count int
	start time.Time
}

func newSendLimiter(limit int, window time.Duration) *sendLimiter {
	return &sendLimiter{
		perClient: map[string]*clientWindow{},
		limit:     limit,
		window:    window,
		now:       time.Now,
	}
}

// Allow counts one send for client and reports how long to wait when the
// window is exhausted.
func (l *sendLimiter) Allow(client string) (bool, time.Duration) {
	if l == nil || l.limit <= 0 {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	w, ok := l.perClient[client]
	if !ok || now.Sub(w.start) >= l.window {
		w = &clientWindow{start: now}
		l.perClient[client] = w
	}
	if w.count >= l.limit {
		return false, w.start.Add(l.window).Sub(now)
	}
	w.count++
	return true, 0
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterSeconds(d time.Duration) int {
	return int(math.Max(1, math.Ceil(d.Seconds())))
}

// limitSends rejects requests over the per-client budget with 429.
func (s *Server) limitSends(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ok, wait := s.limiter.Allow(clientKey(r)); !ok {
			secs := retryAfterSeconds(wait)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"code":              "RATE_LIMITED",
				"message":           "too many send requests",
				"corrId":            corrIDFrom(r.Context()),
				"retryable":         true,
				"retryAfterSeconds": secs,
			})
			return
		}
		next(w, r)
	}
}
