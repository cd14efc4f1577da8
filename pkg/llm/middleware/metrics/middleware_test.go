package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgeloop/pkg/llm"
	"forgeloop/pkg/llm/llmerrors"
)

type observation struct {
	model            string
	component        string
	promptTokens     int
	completionTokens int
	success          bool
	errorType        string
}

type captureRecorder struct {
	mu   sync.Mutex
	seen []observation
}

func (c *captureRecorder) ObserveRequest(model, component string, promptTokens, completionTokens int, success bool, errorType string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, observation{model, component, promptTokens, completionTokens, success, errorType})
}

func fixedUsage(_ llm.CompletionRequest, _ llm.CompletionResponse) (int, int) {
	return 10, 5
}

func TestMiddlewareRecordsSuccess(t *testing.T) {
	recorder := &captureRecorder{}
	mock := llm.NewMockTextClient("hello")
	client := llm.Chain(mock, Middleware(recorder, "planner", fixedUsage, nil))

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.Message{llm.NewUserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)

	require.Len(t, recorder.seen, 1)
	obs := recorder.seen[0]
	assert.Equal(t, "mock", obs.model)
	assert.Equal(t, "planner", obs.component)
	assert.Equal(t, 10, obs.promptTokens)
	assert.Equal(t, 5, obs.completionTokens)
	assert.True(t, obs.success)
	assert.Empty(t, obs.errorType)
}

func TestMiddlewareRecordsErrorType(t *testing.T) {
	recorder := &captureRecorder{}
	mock := llm.NewMockClient(nil, []error{llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow down")})
	client := llm.Chain(mock, Middleware(recorder, "worker", fixedUsage, nil))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)

	require.Len(t, recorder.seen, 1)
	obs := recorder.seen[0]
	assert.False(t, obs.success)
	assert.Equal(t, "rate_limit", obs.errorType)
	assert.Zero(t, obs.promptTokens)
	assert.Zero(t, obs.completionTokens)
}

func TestNopRecorderDiscards(t *testing.T) {
	mock := llm.NewMockTextClient("ok")
	client := llm.Chain(mock, Middleware(Nop(), "planner", fixedUsage, nil))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)
}
