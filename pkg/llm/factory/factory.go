// Package factory builds completion clients with the full middleware chain.
package factory

import (
	"fmt"

	"forgeloop/pkg/config"
	"forgeloop/pkg/llm"
	"forgeloop/pkg/llm/anthropic"
	"forgeloop/pkg/llm/google"
	"forgeloop/pkg/llm/middleware/metrics"
	"forgeloop/pkg/llm/middleware/retry"
	"forgeloop/pkg/llm/middleware/timeout"
	"forgeloop/pkg/llm/ollama"
	"forgeloop/pkg/llm/openai"
	"forgeloop/pkg/logx"
)

// NewClient creates a completion client for the given model configuration
// with the standard middleware chain applied:
//
//	Metrics -> Retry -> Timeout -> RawClient
//
// so per-attempt timeouts are retried and metrics observe the final outcome.
// The component label distinguishes planner and worker traffic in metrics.
func NewClient(mc config.ModelCfg, res config.ResilienceCfg, component string, recorder metrics.Recorder, logger *logx.Logger) (llm.Client, error) {
	credential, err := config.ResolveAPIKey(mc)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential for %s: %w", component, err)
	}

	var raw llm.Client
	switch mc.Provider {
	case config.ProviderGoogle:
		raw = google.NewClient(credential, mc.Model)
	case config.ProviderOpenAI:
		raw = openai.NewClientWithBaseURL(credential, mc.Model, mc.BaseURL)
	case config.ProviderAnthropic:
		raw = anthropic.NewClient(credential, mc.Model)
	case config.ProviderOllama:
		raw = ollama.NewClient(credential, mc.Model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", mc.Provider)
	}

	if recorder == nil {
		recorder = metrics.Nop()
	}
	policy := retry.NewPolicy(res.Retry, nil)

	return llm.Chain(raw,
		metrics.Middleware(recorder, component, nil, logger),
		retry.Middleware(policy),
		timeout.Middleware(res.Timeout),
	), nil
}
