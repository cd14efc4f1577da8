// Package templates provides prompt rendering for the planner and workers.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// PromptTemplate names one embedded prompt template.
type PromptTemplate string

const (
	// PlannerSystemTemplate is the planner's system prompt.
	PlannerSystemTemplate PromptTemplate = "planner_system.tpl.md"
	// WorkerSystemTemplate is the per-file implementation agent's system prompt.
	WorkerSystemTemplate PromptTemplate = "worker_system.tpl.md"
	// ImplementRequestTemplate renders one file's implementation request.
	ImplementRequestTemplate PromptTemplate = "implement_request.tpl.md"
	// FeedbackInstructionsTemplate renders next-round planner instructions
	// from the base instructions and a feedback digest.
	FeedbackInstructionsTemplate PromptTemplate = "feedback_instructions.tpl.md"
)

// Renderer handles prompt template rendering.
type Renderer struct {
	templates map[PromptTemplate]*template.Template
}

// NewRenderer loads and parses all embedded templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[PromptTemplate]*template.Template)}

	names := []PromptTemplate{
		PlannerSystemTemplate,
		WorkerSystemTemplate,
		ImplementRequestTemplate,
		FeedbackInstructionsTemplate,
	}

	for _, name := range names {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Funcs(template.FuncMap{
			"contains": strings.Contains,
			"lower":    strings.ToLower,
			"join":     strings.Join,
		}).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders the named template with the given data.
func (r *Renderer) Render(name PromptTemplate, data any) (string, error) {
	tmpl, exists := r.templates[name]
	if !exists {
		return "", fmt.Errorf("template %s not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
