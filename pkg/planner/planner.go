// Package planner turns user instructions and conversation history into a
// validated orchestration plan, a clarifying question, or an error.
package planner

import (
	"context"
	"strings"

	"forgeloop/pkg/llm"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/plan"
	"forgeloop/pkg/session"
	"forgeloop/pkg/templates"
)

// Kind tags a planner result. Classification is a pure tagged-variant
// decision; no kind is ever signalled through a Go error.
type Kind string

const (
	// KindPlan carries a validated orchestration plan.
	KindPlan Kind = "plan"
	// KindQuestion carries free-text clarification the caller must surface.
	KindQuestion Kind = "question"
	// KindError carries a parse or transport diagnostic.
	KindError Kind = "error"
)

// Result is a planner reply: exactly one of Plan or Content is meaningful,
// selected by Kind. SessionID is always populated so callers can continue
// the conversation.
type Result struct {
	Kind      Kind                    `json:"type"`
	Plan      *plan.OrchestrationPlan `json:"plan,omitempty"`
	Content   string                  `json:"content,omitempty"`
	SessionID string                  `json:"session_id"`
}

// Planner generates orchestration plans over a persistent session.
type Planner struct {
	client      llm.Client
	sessions    *session.Registry
	renderer    *templates.Renderer
	logger      *logx.Logger
	maxTokens   int
	temperature float32
}

// New creates a planner. maxTokens <= 0 falls back to the default request size.
func New(client llm.Client, sessions *session.Registry, renderer *templates.Renderer, logger *logx.Logger, maxTokens int, temperature float32) *Planner {
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	if temperature == 0 {
		temperature = llm.TemperaturePlanning
	}
	if logger == nil {
		logger = logx.NewLogger("planner")
	}
	return &Planner{
		client:      client,
		sessions:    sessions,
		renderer:    renderer,
		logger:      logger,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Generate sends the session history plus new instructions to the model and
// classifies the reply. The (user, assistant) turn pair is appended whenever
// a non-empty reply was received, regardless of how it classifies, so later
// rounds keep full context.
func (p *Planner) Generate(ctx context.Context, instructions, sessionID string, attachments []llm.Attachment) Result {
	sessionID = p.sessions.Ensure(sessionID)

	system, err := p.renderer.Render(templates.PlannerSystemTemplate, nil)
	if err != nil {
		return Result{Kind: KindError, Content: err.Error(), SessionID: sessionID}
	}

	history := p.sessions.History(sessionID)
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.NewSystemMessage(system))
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	userMsg := llm.NewUserMessage(instructions)
	userMsg.Attachments = attachments
	messages = append(messages, userMsg)

	req := llm.CompletionRequest{
		Messages:    messages,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}

	resp, err := p.client.Complete(ctx, req)
	if err != nil {
		p.logger.Warn("plan generation failed: %v", err)
		return Result{Kind: KindError, Content: err.Error(), SessionID: sessionID}
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return Result{Kind: KindError, Content: "empty response from planner model", SessionID: sessionID}
	}

	p.sessions.Append(sessionID,
		session.Turn{Role: llm.RoleUser, Content: instructions},
		session.Turn{Role: llm.RoleAssistant, Content: text},
	)

	if _, hasSpan := plan.ExtractJSONSpan(text); !hasSpan {
		return Result{Kind: KindQuestion, Content: text, SessionID: sessionID}
	}

	parsed, err := plan.ParsePlan(text)
	if err != nil {
		p.logger.Warn("plan parse failed: %v", err)
		return Result{Kind: KindError, Content: err.Error(), SessionID: sessionID}
	}

	p.logger.Debug("plan generated with %d files", len(parsed.Files))
	return Result{Kind: KindPlan, Plan: parsed, SessionID: sessionID}
}
