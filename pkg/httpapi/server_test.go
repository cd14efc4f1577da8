package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgeloop/pkg/loop"
	"forgeloop/pkg/metrics"
)

type stubRunner struct {
	last   loop.Request
	result loop.Result
}

func (s *stubRunner) Run(_ context.Context, req loop.Request) loop.Result {
	s.last = req
	return s.result
}

type stubUsage struct {
	usage   map[string]*metrics.UsageMetrics
	byModel map[string]map[string]*metrics.UsageMetrics
	err     error
}

func (s *stubUsage) GetComponentUsage(_ context.Context, component string) (*metrics.UsageMetrics, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.usage[component], nil
}

func (s *stubUsage) GetUsageByModel(_ context.Context, component string) (map[string]*metrics.UsageMetrics, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byModel[component], nil
}

func newTestMux(runner LoopRunner, usage UsageQuerier) *http.ServeMux {
	srv := NewServer(runner, usage, prometheus.NewRegistry(), 3, nil)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return mux
}

func TestHandleLoop(t *testing.T) {
	runner := &stubRunner{result: loop.Result{
		Status:          loop.StatusCompleted,
		BuildStatus:     "passed",
		Implementations: map[string]string{"app.tsx": "content"},
	}}
	mux := newTestMux(runner, nil)

	body := `{"instructions":"build a page","max_rounds":2,"worker_sessions":{"app.tsx":"sess-1"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loop", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp loop.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, loop.StatusCompleted, resp.Status)
	assert.Equal(t, "content", resp.Implementations["app.tsx"])

	assert.Equal(t, "build a page", runner.last.Instructions)
	assert.Equal(t, 2, runner.last.MaxRounds)
	assert.Equal(t, "sess-1", runner.last.WorkerSessions["app.tsx"])
}

func TestHandleLoopDefaultsMaxRounds(t *testing.T) {
	runner := &stubRunner{}
	mux := newTestMux(runner, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/loop", strings.NewReader(`{"instructions":"go"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, runner.last.MaxRounds)
}

func TestHandleLoopRejectsBadRequests(t *testing.T) {
	mux := newTestMux(&stubRunner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/loop", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/loop", strings.NewReader(`{"instructions":""}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/loop", strings.NewReader(`not json`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUsage(t *testing.T) {
	usage := &stubUsage{usage: map[string]*metrics.UsageMetrics{
		"planner": {Component: "planner", TotalTokens: 100},
		"worker":  {Component: "worker", TotalTokens: 900},
	}}
	mux := newTestMux(&stubRunner{}, usage)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/usage", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]*metrics.UsageMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(100), resp["planner"].TotalTokens)
	assert.Equal(t, int64(900), resp["worker"].TotalTokens)
}

func TestHandleUsageSingleComponent(t *testing.T) {
	usage := &stubUsage{usage: map[string]*metrics.UsageMetrics{
		"worker": {Component: "worker", TotalTokens: 900},
	}}
	mux := newTestMux(&stubRunner{}, usage)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/usage?component=worker", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]*metrics.UsageMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, int64(900), resp["worker"].TotalTokens)
}

func TestHandleUsageByModel(t *testing.T) {
	usage := &stubUsage{byModel: map[string]map[string]*metrics.UsageMetrics{
		"worker": {
			"qwen-coder":   {Component: "worker", TotalTokens: 700},
			"gemini-flash": {Component: "worker", TotalTokens: 200},
		},
	}}
	mux := newTestMux(&stubRunner{}, usage)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/usage?component=worker&by_model=1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]map[string]*metrics.UsageMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp["worker"], 2)
	assert.Equal(t, int64(700), resp["worker"]["qwen-coder"].TotalTokens)
	assert.Equal(t, int64(200), resp["worker"]["gemini-flash"].TotalTokens)
}

func TestHandleUsageUnconfigured(t *testing.T) {
	mux := newTestMux(&stubRunner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/usage", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	mux := newTestMux(&stubRunner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	mux := newTestMux(&stubRunner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
