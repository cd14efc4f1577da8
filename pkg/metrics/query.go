// Package metrics provides services for querying and aggregating metrics data.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// UsageMetrics represents aggregated LLM usage for one loop component.
type UsageMetrics struct {
	Component        string `json:"component"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	Requests         int64  `json:"requests"`
	Failures         int64  `json:"failures"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetComponentUsage retrieves aggregated token and request metrics for one
// component (planner or worker), summed across models.
func (q *QueryService) GetComponentUsage(ctx context.Context, component string) (*UsageMetrics, error) {
	usage := &UsageMetrics{
		Component: component,
	}

	promptQuery := fmt.Sprintf(`sum(llm_tokens_total{component=%q, type="prompt"})`, component)
	value, err := q.scalar(ctx, promptQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	usage.PromptTokens = value

	completionQuery := fmt.Sprintf(`sum(llm_tokens_total{component=%q, type="completion"})`, component)
	value, err = q.scalar(ctx, completionQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	usage.CompletionTokens = value
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	requestsQuery := fmt.Sprintf(`sum(llm_requests_total{component=%q})`, component)
	value, err = q.scalar(ctx, requestsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	usage.Requests = value

	failuresQuery := fmt.Sprintf(`sum(llm_requests_total{component=%q, status="error"})`, component)
	value, err = q.scalar(ctx, failuresQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	usage.Failures = value

	return usage, nil
}

// GetUsageByModel breaks a component's usage down per model.
func (q *QueryService) GetUsageByModel(ctx context.Context, component string) (map[string]*UsageMetrics, error) {
	result := make(map[string]*UsageMetrics)

	modelsQuery := fmt.Sprintf(`group by (model) (llm_tokens_total{component=%q})`, component)
	modelsResult, _, err := q.queryAPI.Query(ctx, modelsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if name, ok := sample.Metric["model"]; ok {
				models = append(models, string(name))
			}
		}
	}

	for _, modelName := range models {
		usage := &UsageMetrics{Component: component}

		promptQuery := fmt.Sprintf(`sum(llm_tokens_total{component=%q, model=%q, type="prompt"})`, component, modelName)
		value, err := q.scalar(ctx, promptQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for model %s: %w", modelName, err)
		}
		usage.PromptTokens = value

		completionQuery := fmt.Sprintf(`sum(llm_tokens_total{component=%q, model=%q, type="completion"})`, component, modelName)
		value, err = q.scalar(ctx, completionQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for model %s: %w", modelName, err)
		}
		usage.CompletionTokens = value
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

		requestsQuery := fmt.Sprintf(`sum(llm_requests_total{component=%q, model=%q})`, component, modelName)
		value, err = q.scalar(ctx, requestsQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to query requests for model %s: %w", modelName, err)
		}
		usage.Requests = value

		result[modelName] = usage
	}

	return result, nil
}

// scalar runs an instant query and returns the first sample value, or zero
// when the series does not exist yet.
func (q *QueryService) scalar(ctx context.Context, query string) (int64, error) {
	res, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := res.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}
