// Package worker fans out one implementation request per planned file, each
// over its own persistent session, and classifies the replies.
package worker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"forgeloop/pkg/llm"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/plan"
	"forgeloop/pkg/session"
	"forgeloop/pkg/templates"
)

// Kind tags an implementation result.
type Kind string

const (
	// KindImplementation carries generated file content.
	KindImplementation Kind = "implementation"
	// KindFeedback carries an agent-raised issue for its file.
	KindFeedback Kind = "feedback"
	// KindError carries a transport or empty-reply diagnostic for its file.
	KindError Kind = "error"
)

// Result is one file's outcome. Content is set for implementations, Message
// and Blocking for feedback, Message for errors.
type Result struct {
	Kind      Kind   `json:"type"`
	Filename  string `json:"filename"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
	Blocking  bool   `json:"blocking,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// feedbackPayload is the JSON object a worker returns instead of code when
// it cannot implement the file. The "type" key is the discriminator.
type feedbackPayload struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Blocking bool   `json:"blocking"`
	Filename string `json:"filename"`
}

// Pool dispatches implementation requests concurrently.
type Pool struct {
	client      llm.Client
	sessions    *session.Registry
	renderer    *templates.Renderer
	logger      *logx.Logger
	maxTokens   int
	temperature float32
}

// NewPool creates a worker pool. maxTokens <= 0 falls back to the large
// implementation request size.
func NewPool(client llm.Client, sessions *session.Registry, renderer *templates.Renderer, logger *logx.Logger, maxTokens int, temperature float32) *Pool {
	if maxTokens <= 0 {
		maxTokens = llm.ImplementationMaxTokens
	}
	if temperature == 0 {
		temperature = llm.TemperatureImplementation
	}
	if logger == nil {
		logger = logx.NewLogger("worker")
	}
	return &Pool{
		client:      client,
		sessions:    sessions,
		renderer:    renderer,
		logger:      logger,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// ImplementAll dispatches one concurrent implementation call per file and
// waits for all of them. Results come back in plan order regardless of
// completion order. A failing task is captured as an Error result for its
// file only; siblings always run to completion.
func (p *Pool) ImplementAll(ctx context.Context, files []plan.FilePlan, style *plan.GlobalStyle, keys *session.KeyMap) []Result {
	results := make([]Result, len(files))

	var wg sync.WaitGroup
	for i := range files {
		wg.Add(1)
		go func(idx int, fp plan.FilePlan) {
			defer wg.Done()
			results[idx] = p.implementOne(ctx, fp, style, keys.Ensure(fp.Filename))
		}(i, files[i])
	}
	wg.Wait()

	return results
}

// implementOne runs a single file's request over its session.
func (p *Pool) implementOne(ctx context.Context, fp plan.FilePlan, style *plan.GlobalStyle, sessionID string) Result {
	sessionID = p.sessions.Ensure(sessionID)

	system, err := p.renderer.Render(templates.WorkerSystemTemplate, nil)
	if err != nil {
		return Result{Kind: KindError, Filename: fp.Filename, Message: err.Error(), SessionID: sessionID}
	}
	request, err := p.renderer.Render(templates.ImplementRequestTemplate, map[string]any{"File": fp, "Style": style})
	if err != nil {
		return Result{Kind: KindError, Filename: fp.Filename, Message: err.Error(), SessionID: sessionID}
	}

	history := p.sessions.History(sessionID)
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.NewSystemMessage(system))
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.NewUserMessage(request))

	resp, err := p.client.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		p.logger.Warn("implementation failed for %s: %v", fp.Filename, err)
		return Result{Kind: KindError, Filename: fp.Filename, Message: err.Error(), SessionID: sessionID}
	}

	raw := strings.TrimSpace(resp.Content)
	if raw == "" {
		return Result{Kind: KindError, Filename: fp.Filename, Message: "empty response from worker model", SessionID: sessionID}
	}

	p.sessions.Append(sessionID,
		session.Turn{Role: llm.RoleUser, Content: request},
		session.Turn{Role: llm.RoleAssistant, Content: raw},
	)

	result := classify(raw)
	result.Filename = fp.Filename
	result.SessionID = sessionID
	return result
}

// classify decides between feedback and implementation. A reply that decodes
// to a JSON object carrying a "type":"feedback" discriminator is feedback;
// anything else is implementation content with code fences stripped.
func classify(raw string) Result {
	cleaned := stripFences(raw)

	var payload feedbackPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err == nil && payload.Type == KindFeedbackDiscriminator {
		return Result{Kind: KindFeedback, Message: payload.Message, Blocking: payload.Blocking}
	}

	return Result{Kind: KindImplementation, Content: cleaned}
}

// KindFeedbackDiscriminator is the "type" value workers use to flag feedback.
const KindFeedbackDiscriminator = "feedback"

// stripFences removes an enclosing markdown code fence, including any
// language tag on the opening line. Inner fences are left untouched.
func stripFences(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl != -1 {
			s = s[nl+1:]
		}
	}
	if strings.HasSuffix(strings.TrimSpace(s), "```") {
		trimmed := strings.TrimSpace(s)
		s = trimmed[:strings.LastIndex(trimmed, "```")]
	}

	return strings.TrimSpace(s)
}
