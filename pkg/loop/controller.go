package loop

import (
	"context"
	"strings"

	"forgeloop/pkg/feedback"
	"forgeloop/pkg/llm"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/plan"
	"forgeloop/pkg/planner"
	"forgeloop/pkg/session"
	"forgeloop/pkg/templates"
	"forgeloop/pkg/worker"
)

// buildLogLimit caps the build output carried into a feedback item.
const buildLogLimit = 2000

// PlanGenerator produces an orchestration plan for the given instructions.
type PlanGenerator interface {
	Generate(ctx context.Context, instructions, sessionID string, attachments []llm.Attachment) planner.Result
}

// WorkerPool implements every planned file concurrently.
type WorkerPool interface {
	ImplementAll(ctx context.Context, files []plan.FilePlan, style *plan.GlobalStyle, keys *session.KeyMap) []worker.Result
}

// BuildVerifier runs the install-and-build check over the current
// implementations.
type BuildVerifier interface {
	Verify(ctx context.Context, filePlans map[string]plan.FilePlan, implementations map[string]string) (ok bool, log string)
}

// Request carries one loop invocation. OrchestratorSession and
// WorkerSessions resume prior conversations when set; both are minted
// fresh otherwise.
type Request struct {
	Instructions        string
	MaxRounds           int
	OrchestratorSession string
	WorkerSessions      map[string]string
	Attachments         []llm.Attachment
}

// Iteration is the full record of one round.
type Iteration struct {
	Plan     *plan.OrchestrationPlan `json:"plan"`
	Results  []worker.Result         `json:"implementations"`
	Feedback []feedback.Item         `json:"feedback"`
}

// Result is the terminal payload of a loop run. Implementations and
// FilePlans accumulate across rounds; the session fields let callers
// resume the same conversations on a follow-up request.
type Result struct {
	Status              Status                  `json:"status"`
	Content             string                  `json:"content,omitempty"`
	Iterations          []Iteration             `json:"iterations"`
	Implementations     map[string]string       `json:"implementations"`
	FilePlans           map[string]plan.FilePlan `json:"file_plans"`
	BuildStatus         string                  `json:"build_status,omitempty"`
	BuildLog            string                  `json:"build_log,omitempty"`
	OrchestratorSession string                  `json:"orchestrator_session"`
	WorkerSessions      map[string]string       `json:"worker_sessions"`
}

// Controller drives rounds of plan, implement, aggregate and verify until
// the run converges or the round budget is spent. A single controller serves
// concurrent runs; all per-run state lives on the Run stack.
type Controller struct {
	planner  PlanGenerator
	pool     WorkerPool
	verifier BuildVerifier
	renderer *templates.Renderer
	logger   *logx.Logger
}

// NewController wires a controller from its collaborators.
func NewController(p PlanGenerator, pool WorkerPool, v BuildVerifier, renderer *templates.Renderer, logger *logx.Logger) *Controller {
	if logger == nil {
		logger = logx.NewLogger("loop")
	}
	return &Controller{
		planner:  p,
		pool:     pool,
		verifier: v,
		renderer: renderer,
		logger:   logger,
	}
}

// Run executes up to req.MaxRounds rounds and always returns a terminal
// Result; non-convergence is a status, not an error.
func (c *Controller) Run(ctx context.Context, req Request) Result {
	maxRounds := req.MaxRounds
	if maxRounds < 1 {
		maxRounds = 1
	}

	keys := session.NewKeyMap()
	keys.Restore(req.WorkerSessions)

	orchSession := req.OrchestratorSession
	instructions := req.Instructions
	iterations := make([]Iteration, 0, maxRounds)
	implementations := map[string]string{}
	filePlans := map[string]plan.FilePlan{}

	var buildStatus, buildLog string
	var state State

	for round := 0; round < maxRounds; round++ {
		if round == 0 {
			state = StatePlanning
		} else {
			state = c.advance(state, StatePlanning)
		}
		c.logger.Info("round %d/%d: planning", round+1, maxRounds)

		planRes := c.planner.Generate(ctx, instructions, orchSession, req.Attachments)
		orchSession = planRes.SessionID
		if planRes.Kind != planner.KindPlan {
			c.advance(state, StateErrored)
			c.logger.Warn("round %d: planner returned %s, aborting", round+1, planRes.Kind)
			return Result{
				Status:              StatusErrored,
				Content:             planRes.Content,
				Iterations:          iterations,
				Implementations:     implementations,
				FilePlans:           filePlans,
				OrchestratorSession: orchSession,
				WorkerSessions:      keys.Snapshot(),
			}
		}
		p := planRes.Plan
		for _, fp := range p.Files {
			filePlans[fp.Filename] = fp
		}

		state = c.advance(state, StateImplementing)
		results := c.pool.ImplementAll(ctx, p.Files, &p.GlobalStyle, keys)

		state = c.advance(state, StateAggregating)
		for _, res := range results {
			if res.Kind == worker.KindImplementation {
				implementations[res.Filename] = res.Content
			}
		}
		items := feedback.Summarize(results, p.Files)

		iterations = append(iterations, Iteration{
			Plan:     p,
			Results:  results,
			Feedback: items,
		})

		working := make([]feedback.Item, len(items))
		copy(working, items)
		blocking := feedback.AnyBlocking(working)

		missing := missingFiles(p.Files, implementations)
		if len(missing) > 0 {
			blocking = true
			working = append(working, feedback.Item{
				Filename: strings.Join(missing, ","),
				Message:  "Missing implementations for planned files",
				Blocking: true,
			})
		}

		if !blocking {
			state = c.advance(state, StateVerifying)
			ok, log := c.verifier.Verify(ctx, filePlans, implementations)
			buildLog = log
			if ok {
				buildStatus = "passed"
				c.advance(state, StateCompleted)
				c.logger.Info("round %d: build passed, run complete", round+1)
				return Result{
					Status:              StatusCompleted,
					Iterations:          iterations,
					Implementations:     implementations,
					FilePlans:           filePlans,
					BuildStatus:         buildStatus,
					BuildLog:            buildLog,
					OrchestratorSession: orchSession,
					WorkerSessions:      keys.Snapshot(),
				}
			}
			buildStatus = "failed"
			blocking = true
			working = append(working, feedback.Item{
				Filename: "build",
				Message:  truncate(log, buildLogLimit),
				Blocking: true,
			})
			c.logger.Warn("round %d: build failed", round+1)
		}

		if round == maxRounds-1 && !blocking {
			c.advance(state, StateSoftLimitReached)
			return Result{
				Status:              StatusSoftLimitReached,
				Iterations:          iterations,
				Implementations:     implementations,
				FilePlans:           filePlans,
				BuildStatus:         "skipped",
				OrchestratorSession: orchSession,
				WorkerSessions:      keys.Snapshot(),
			}
		}

		if round < maxRounds-1 {
			next, err := c.renderer.Render(templates.FeedbackInstructionsTemplate, map[string]any{
				"BaseInstructions": req.Instructions,
				"Round":            round + 1,
				"FeedbackBlock":    feedback.Digest(working),
			})
			if err != nil {
				c.logger.Error("round %d: feedback instructions render failed: %v", round+1, err)
			} else {
				instructions = next
			}
			state = c.advance(state, StateNextRound)
		}
	}

	c.advance(state, StateMaxRoundsReached)
	c.logger.Info("round budget exhausted after %d rounds", maxRounds)
	return Result{
		Status:              StatusMaxRoundsReached,
		Iterations:          iterations,
		Implementations:     implementations,
		FilePlans:           filePlans,
		BuildStatus:         buildStatus,
		BuildLog:            buildLog,
		OrchestratorSession: orchSession,
		WorkerSessions:      keys.Snapshot(),
	}
}

// advance moves the per-run state machine cursor, logging if the edge is not
// in the transition table.
func (c *Controller) advance(from, to State) State {
	if !ValidTransition(from, to) {
		c.logger.Error("invalid state transition %s -> %s", from, to)
	}
	return to
}

// missingFiles returns planned filenames with no implementation yet, in
// plan order.
func missingFiles(files []plan.FilePlan, implementations map[string]string) []string {
	var missing []string
	for _, fp := range files {
		if _, ok := implementations[fp.Filename]; !ok {
			missing = append(missing, fp.Filename)
		}
	}
	return missing
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
