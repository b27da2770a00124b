package httpadapter

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// workspaceLimiters holds one token bucket per workspace so one noisy tenant
// cannot starve the rest. Idle limiters are swept periodically.
type workspaceLimiters struct {
	rps   rate.Limit
	burst int
	ttl   time.Duration

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newWorkspaceLimiters(rps float64, burst int, ttl time.Duration) *workspaceLimiters {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &workspaceLimiters{
		rps:      rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		limiters: make(map[string]*limiterEntry),
	}
}

func (wl *workspaceLimiters) get(key string) *rate.Limiter {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	entry, ok := wl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(wl.rps, wl.burst)}
		wl.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (wl *workspaceLimiters) sweep(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-wl.ttl)
			wl.mu.Lock()
			for key, entry := range wl.limiters {
				if entry.lastSeen.Before(cutoff) {
					delete(wl.limiters, key)
				}
			}
			wl.mu.Unlock()
		}
	}
}

func rateLimitMiddleware(next http.Handler, cfg TrafficConfig) http.Handler {
	limiters := newWorkspaceLimiters(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.LimiterIdleTTL)

	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	go limiters.sweep(sweepInterval, make(chan struct{}))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := limiterKey(r)
		if !limiters.get(key).Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded, slow down",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limiterKey prefers the tenant identity from the request; anonymous traffic
// shares a per-IP bucket.
func limiterKey(r *http.Request) string {
	if ws := strings.TrimSpace(r.Header.Get("X-Workspace-Id")); ws != "" {
		return "ws:" + ws
	}
	if r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if ws := workspaceFromJSONBody(r); ws != "" {
			return "ws:" + ws
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// workspaceFromJSONBody peeks at the body for workspace_id and restores it so
// the handler can decode it again.
func workspaceFromJSONBody(r *http.Request) string {
	const maxPeek = 64 << 10
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPeek))
	_ = r.Body.Close()
	r.Body = io.NopCloser(strings.NewReader(string(raw)))
	if err != nil {
		return ""
	}

	var probe struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.WorkspaceID)
}

// backpressureMiddleware bounds in-flight requests. When the gate stays full
// past the admission wait, the request is shed with 503 instead of queueing
// unboundedly.
func backpressureMiddleware(next http.Handler, maxInFlight int, admissionWait time.Duration) http.Handler {
	if maxInFlight <= 0 {
		maxInFlight = 64
	}
	if admissionWait <= 0 {
		admissionWait = 100 * time.Millisecond
	}
	gate := make(chan struct{}, maxInFlight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := time.NewTimer(admissionWait)
		defer timer.Stop()

		select {
		case gate <- struct{}{}:
			defer func() { <-gate }()
			next.ServeHTTP(w, r)
		case <-timer.C:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "server overloaded, try again shortly",
			})
		case <-r.Context().Done():
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "request cancelled before admission",
			})
		}
	})
}
