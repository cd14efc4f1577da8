// Package plan defines the orchestration plan model and the tolerant parsing
// used to extract plans from model replies.
package plan

import "fmt"

// FunctionSpec names an exported function the implementation must provide.
type FunctionSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ImportSpec names one symbol imported from a dependency source.
type ImportSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// DependencyGroup lists the symbols a file imports from one source.
type DependencyGroup struct {
	FromPath string       `json:"from_path"`
	Imports  []ImportSpec `json:"imports"`
}

// RouteSpec maps a route path to the component that renders it. Order matters.
type RouteSpec struct {
	Path      string `json:"path"`
	Component string `json:"component"`
}

// FilePlan describes one file to generate.
type FilePlan struct {
	Path         string            `json:"path"`
	Filename     string            `json:"filename"`
	Functions    []FunctionSpec    `json:"functions"`
	Dependencies []DependencyGroup `json:"dependencies"`
	Props        string            `json:"props"`
	Routes       []RouteSpec       `json:"routes,omitempty"`
}

// GlobalStyle carries plan-wide styling guidance.
type GlobalStyle struct {
	ColorScheme      string   `json:"color_scheme"`
	ShadcnComponents []string `json:"shadcn_components"`
	StyleDescription string   `json:"style_description"`
}

// OrchestrationPlan is one round's full plan: style plus an ordered file list.
type OrchestrationPlan struct {
	GlobalStyle GlobalStyle `json:"global_style"`
	Files       []FilePlan  `json:"files"`
}

// Validate checks schema invariants: at least one file, every file named,
// and filenames unique within the plan.
func (p *OrchestrationPlan) Validate() error {
	if len(p.Files) == 0 {
		return fmt.Errorf("plan contains no files")
	}
	seen := make(map[string]struct{}, len(p.Files))
	for i := range p.Files {
		fp := &p.Files[i]
		if fp.Filename == "" {
			return fmt.Errorf("plan file %d has no filename", i)
		}
		if _, dup := seen[fp.Filename]; dup {
			return fmt.Errorf("duplicate filename in plan: %s", fp.Filename)
		}
		seen[fp.Filename] = struct{}{}
	}
	return nil
}

// FileOrder returns filename → plan position for ordering feedback and results.
func (p *OrchestrationPlan) FileOrder() map[string]int {
	order := make(map[string]int, len(p.Files))
	for i := range p.Files {
		order[p.Files[i].Filename] = i
	}
	return order
}
