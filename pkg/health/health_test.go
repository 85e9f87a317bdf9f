package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func passingCheck() CheckFunc {
	return func(context.Context) error { return nil }
}

func failingCheck(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func decode(t *testing.T, w *httptest.ResponseRecorder) statusResponse {
	t.Helper()
	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func runN(h *Health, name string, n int) {
	for _, c := range h.checks {
		if c.name == name {
			for range n {
				c.run(context.Background(), h.lg)
			}
		}
	}
}

func TestLiveEndpoint_AllPassing(t *testing.T) {
	h := New(zap.NewNop())
	h.Add(Liveness, "goroutines", passingCheck())
	h.Add(Liveness, "other", passingCheck())
	runN(h, "goroutines", 1)

	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	body := decode(t, w)
	assert.Equal(t, "ok", body.Status)
	require.Contains(t, body.Checks, "goroutines")
	assert.NotNil(t, body.Checks["goroutines"].CheckedAt)
	assert.Nil(t, body.Checks["other"].CheckedAt)
}

func TestLiveEndpoint_FailingAfterThreshold(t *testing.T) {
	h := New(zap.NewNop())
	h.Add(Liveness, "db", failingCheck("connection refused"))

	runN(h, "db", 2)
	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, w.Code, "below threshold")
	assert.Equal(t, "connection refused", decode(t, w).Checks["db"].Error)

	runN(h, "db", 1)
	w = httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "unhealthy", body.Checks["db"].Status)
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		ready  bool
		checks map[string]CheckFunc
		want   int
		failed []string
	}{
		{name: "ready and passing", ready: true, checks: map[string]CheckFunc{"postgres": passingCheck()}, want: http.StatusOK},
		{name: "no checks but ready", ready: true, want: http.StatusOK},
		{name: "not ready", ready: false, checks: map[string]CheckFunc{"postgres": passingCheck()}, want: http.StatusServiceUnavailable, failed: []string{"_readiness"}},
		{
			name:   "one failing",
			ready:  true,
			checks: map[string]CheckFunc{"postgres": passingCheck(), "redis": failingCheck("timeout")},
			want:   http.StatusServiceUnavailable,
			failed: []string{"redis"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(zap.NewNop())
			for name, fn := range tt.checks {
				h.Add(Readiness, name, fn, WithThresholds(1, 1))
				runN(h, name, 1)
			}
			h.SetReady(tt.ready)

			w := httptest.NewRecorder()
			h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.want == http.StatusOK, h.IsReady())
			body := decode(t, w)
			for _, name := range tt.failed {
				assert.Equal(t, "unhealthy", body.Checks[name].Status, name)
			}
		})
	}
}

func TestReadinessIgnoresLivenessChecks(t *testing.T) {
	h := New(zap.NewNop())
	h.Add(Liveness, "broken", failingCheck("x"), WithThresholds(1, 1))
	runN(h, "broken", 1)
	h.SetReady(true)

	assert.True(t, h.IsReady())
}

func TestCheckRecoveryIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var failing atomic.Bool
	failing.Store(true)

	h := New(zap.New(core))
	h.Add(Readiness, "redis", func(context.Context) error {
		if failing.Load() {
			return errors.New("down")
		}
		return nil
	}, WithThresholds(2, 2))
	h.SetReady(true)

	runN(h, "redis", 2)
	assert.False(t, h.IsReady())
	assert.Equal(t, 1, logs.FilterMessage("Health check failing").Len())

	failing.Store(false)
	runN(h, "redis", 1)
	assert.False(t, h.IsReady(), "one success is below the success threshold")
	runN(h, "redis", 1)
	assert.True(t, h.IsReady())
	assert.Equal(t, 1, logs.FilterMessage("Health check recovered").Len())
}

func TestCheckTimeout(t *testing.T) {
	h := New(zap.NewNop())
	h.Add(Readiness, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(10*time.Millisecond), WithThresholds(1, 1))
	h.SetReady(true)

	runN(h, "slow", 1)

	assert.False(t, h.IsReady())
	assert.ErrorIs(t, h.checks[0].state.Load().err, context.DeadlineExceeded)
}

func TestStartAndStop(t *testing.T) {
	var calls atomic.Int32
	h := New(zap.NewNop())
	h.Add(Liveness, "counter", func(context.Context) error {
		calls.Add(1)
		return nil
	})

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
	time.Sleep(20 * time.Millisecond)
	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestConcurrentAccess(t *testing.T) {
	h := New(zap.NewNop())
	h.Add(Readiness, "db", passingCheck())
	h.Add(Liveness, "goroutines", passingCheck())
	h.SetReady(true)
	h.Start(context.Background(), time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				_ = h.IsReady()
			}
		}()
	}
	wg.Wait()
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestPingCheck(t *testing.T) {
	require.NoError(t, PingCheck(stubPinger{})(context.Background()))

	err := PingCheck(stubPinger{err: errors.New("refused")})(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}
