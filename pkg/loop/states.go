package loop

// State identifies a position in the feedback-loop state machine.
type State string

const (
	// StatePlanning is generating this round's orchestration plan.
	StatePlanning State = "PLANNING"
	// StateImplementing is the per-file worker fan-out.
	StateImplementing State = "IMPLEMENTING"
	// StateAggregating is merging results into the feedback digest.
	StateAggregating State = "AGGREGATING"
	// StateVerifying is the install-and-build check.
	StateVerifying State = "VERIFYING"
	// StateNextRound is instruction synthesis before the next planning pass.
	StateNextRound State = "NEXT_ROUND"
	// StateCompleted is the successful terminal state.
	StateCompleted State = "COMPLETED"
	// StateSoftLimitReached terminates with only non-blocking feedback left.
	StateSoftLimitReached State = "SOFT_LIMIT_REACHED"
	// StateMaxRoundsReached terminates on round budget exhaustion.
	StateMaxRoundsReached State = "MAX_ROUNDS_REACHED"
	// StateErrored terminates on an unusable plan response.
	StateErrored State = "ERRORED"
)

// Transitions defines the allowed state machine edges.
//
//nolint:gochecknoglobals // fixed transition table
var Transitions = map[State][]State{
	StatePlanning:     {StateImplementing, StateErrored},
	StateImplementing: {StateAggregating},
	StateAggregating:  {StateVerifying, StateNextRound, StateSoftLimitReached, StateMaxRoundsReached},
	StateVerifying:    {StateCompleted, StateNextRound, StateMaxRoundsReached},
	StateNextRound:    {StatePlanning},
}

// ValidTransition reports whether from → to is an allowed edge.
func ValidTransition(from, to State) bool {
	for _, next := range Transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing edges.
func IsTerminal(s State) bool {
	return len(Transitions[s]) == 0
}

// Status is the terminal outcome reported to callers.
type Status string

const (
	// StatusCompleted means every planned file exists and the build passed
	// or was skipped.
	StatusCompleted Status = "completed"
	// StatusSoftLimitReached means the round budget ended with only
	// non-blocking feedback outstanding; current state is usable.
	StatusSoftLimitReached Status = "soft_limit_reached"
	// StatusMaxRoundsReached means the budget was exhausted while still
	// blocking. Non-convergence, not an exception.
	StatusMaxRoundsReached Status = "max_rounds_reached"
	// StatusErrored means the planner produced a question or an unparseable
	// reply; the caller may re-invoke with clarifications.
	StatusErrored Status = "errored"
)
