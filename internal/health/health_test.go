package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverallStatus(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("store", true, StoreCheck(func(context.Context) error { return nil }))
	c.RegisterFunc("extra", false, func(context.Context) Result { return Result{Status: StatusUnhealthy} })

	assert.Equal(t, StatusUnknown, c.Overall(), "critical check has not run yet")

	results := c.Run(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusHealthy, results["store"].Status)
	assert.Equal(t, StatusDegraded, c.Overall(), "non-critical failure only degrades")
}

func TestCriticalFailureIsUnhealthy(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("store", true, StoreCheck(func(context.Context) error { return errors.New("disk gone") }))
	res := c.Run(context.Background())
	assert.Equal(t, "disk gone", res["store"].Error)
	assert.Equal(t, StatusUnhealthy, c.Overall())
}

func TestCheckTimeoutAndPanic(t *testing.T) {
	c := NewChecker()
	c.Register("slow", false, 20*time.Millisecond, func(ctx context.Context) Result {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return Result{Status: StatusHealthy}
	})
	c.RegisterFunc("boom", false, func(context.Context) Result { panic("nope") })

	res := c.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, res["slow"].Status)
	assert.Equal(t, "probe timed out", res["slow"].Message)
	assert.Equal(t, "probe panicked", res["boom"].Message)
}

func TestRegisterReplacesProbe(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("store", true, StoreCheck(func(context.Context) error { return errors.New("locked") }))
	c.RegisterFunc("store", true, StoreCheck(func(context.Context) error { return nil }))

	res := c.Run(context.Background())
	require.Len(t, res, 1)
	assert.Equal(t, StatusHealthy, c.Overall())
}

func TestStoreCheckTimeoutMessage(t *testing.T) {
	res := StoreCheck(func(context.Context) error { return context.DeadlineExceeded })(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "database is locked or slow", res.Message)
}

func TestLoopCheck(t *testing.T) {
	ctx := context.Background()
	running := true
	last := time.Time{}
	check := LoopCheck(func() bool { return running }, func() time.Time { return last }, time.Second)

	assert.Equal(t, StatusDegraded, check(ctx).Status)

	last = time.Now()
	assert.Equal(t, StatusHealthy, check(ctx).Status)

	last = time.Now().Add(-time.Minute)
	assert.Equal(t, StatusDegraded, check(ctx).Status)

	running = false
	assert.Equal(t, StatusUnhealthy, check(ctx).Status)
}

func TestRouter(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("store", true, StoreCheck(func(context.Context) error { return nil }))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("m 1\n")) })
	srv := httptest.NewServer(NewRouter(c, metrics))
	defer srv.Close()

	get := func(path string) *http.Response {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusOK, get("/healthz").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").StatusCode, "not ready before SetReady")

	c.SetReady(true)
	resp := get("/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Ready)
	assert.Equal(t, StatusHealthy, body.Status)
	assert.Contains(t, body.Components, "store")

	assert.Equal(t, http.StatusOK, get("/metrics").StatusCode)
	assert.Equal(t, http.StatusNotFound, get("/nope").StatusCode)
}
