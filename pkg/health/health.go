// Package health serves liveness and readiness probes backed by periodic
// background checks.
//
// A check flips to unhealthy only after FailureThreshold consecutive failures
// and back after SuccessThreshold consecutive successes, so a single slow
// ping does not take the instance out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// Kind selects which probe a check contributes to.
type Kind int

const (
	// Liveness checks failing means the process should be restarted.
	Liveness Kind = iota
	// Readiness checks failing means the instance should not get traffic.
	Readiness
)

// Option tunes a single check.
type Option func(*check)

// WithTimeout bounds a single run of the check. Default is 2s.
func WithTimeout(d time.Duration) Option {
	return func(c *check) { c.timeout = d }
}

// WithThresholds overrides the consecutive failure and success counts needed
// to change state. Defaults are 3 and 1.
func WithThresholds(failure, success int) Option {
	return func(c *check) {
		c.failureThreshold = max(failure, 1)
		c.successThreshold = max(success, 1)
	}
}

// result is the published state of a check. It is replaced atomically after
// every run.
type result struct {
	healthy   bool
	err       error
	checkedAt time.Time
	latency   time.Duration
}

type check struct {
	name             string
	kind             Kind
	fn               CheckFunc
	timeout          time.Duration
	failureThreshold int
	successThreshold int

	state atomic.Pointer[result]

	// Only touched by the goroutine running the check.
	fails, oks int
}

func (c *check) run(ctx context.Context, lg *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.fn(runCtx)
	latency := time.Since(start)

	prev := c.state.Load()
	healthy := prev.healthy
	if err != nil {
		c.oks = 0
		c.fails++
		if c.fails >= c.failureThreshold {
			healthy = false
		}
	} else {
		c.fails = 0
		c.oks++
		if c.oks >= c.successThreshold {
			healthy = true
		}
	}

	if healthy != prev.healthy {
		if healthy {
			lg.Info("Health check recovered", zap.String("check", c.name))
		} else {
			lg.Warn("Health check failing", zap.String("check", c.name), zap.Error(err))
		}
	}
	c.state.Store(&result{healthy: healthy, err: err, checkedAt: start, latency: latency})
}

// Health manages liveness and readiness checks for a service.
type Health struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
}

// New creates a Health in the not-ready state. Call SetReady(true) once
// initialization is done.
func New(lg *zap.Logger) *Health {
	return &Health{lg: lg}
}

// Add registers a check. Checks start healthy and must be registered before
// Start.
func (h *Health) Add(kind Kind, name string, fn CheckFunc, opts ...Option) {
	c := &check{
		name:             name,
		kind:             kind,
		fn:               fn,
		timeout:          2 * time.Second,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, o := range opts {
		o(c)
	}
	c.state.Store(&result{healthy: true})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, c)
}

// Start runs every check immediately and then once per interval, each in its
// own goroutine, until Stop is called or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := append([]*check(nil), h.checks...)
	h.mu.Unlock()

	for _, c := range checks {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			c.run(ctx, h.lg)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.run(ctx, h.lg)
				}
			}
		}()
	}
}

// Stop cancels the background checks. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady sets the manual readiness gate. It is flipped to false at the
// start of graceful shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, c := range h.snapshot(Readiness) {
		if !c.state.Load().healthy {
			return false
		}
	}
	return true
}

func (h *Health) snapshot(kind Kind) []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*check
	for _, c := range h.checks {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

type checkStatus struct {
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
	LatencyMS int64      `json:"latency_ms"`
}

type statusResponse struct {
	Status string                 `json:"status"`
	Checks map[string]checkStatus `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 when every liveness check passes, 503
// otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	resp := report(h.snapshot(Liveness))
	writeResponse(w, resp)
}

// ReadyEndpoint serves /readyz: 200 when the gate is open and every
// readiness check passes, 503 otherwise.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	resp := report(h.snapshot(Readiness))
	if !h.ready.Load() {
		resp.Status = "unhealthy"
		resp.Checks["_readiness"] = checkStatus{Status: "unhealthy", Error: "service is not ready"}
	}
	writeResponse(w, resp)
}

func report(checks []*check) statusResponse {
	resp := statusResponse{Status: "ok", Checks: make(map[string]checkStatus, len(checks))}
	for _, c := range checks {
		st := c.state.Load()
		cs := checkStatus{Status: "ok", LatencyMS: st.latency.Milliseconds()}
		if !st.checkedAt.IsZero() {
			at := st.checkedAt.UTC()
			cs.CheckedAt = &at
		}
		if st.err != nil {
			cs.Error = st.err.Error()
		}
		if !st.healthy {
			cs.Status = "unhealthy"
			if cs.Error == "" {
				cs.Error = "check is unhealthy"
			}
			resp.Status = "unhealthy"
		}
		resp.Checks[c.name] = cs
	}
	return resp
}

func writeResponse(w http.ResponseWriter, resp statusResponse) {
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
