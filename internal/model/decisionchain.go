package model

import "time"

// Stage is the admission pipeline stage a decision step belongs to.
type Stage string

const (
	StageSignalCollection Stage = "SIGNAL_COLLECTION"
	StageGatingCheck      Stage = "GATING_CHECK"
	StageExecutionDecision Stage = "EXECUTION_DECISION"
)

// StepDecision is the outcome recorded by a single decision step.
type StepDecision string

const (
	DecisionApproved StepDecision = "APPROVED"
	DecisionRejected StepDecision = "REJECTED"
	DecisionPending  StepDecision = "PENDING"
)

// Source identifies who started a decision chain.
const (
	SourceAuto   = "AUTO"
	SourceManual = "MANUAL"
)

// StepDetail is the tagged-variant payload attached to a DecisionStep. Only
// the fields relevant to the step's reason are populated; this replaces the
// free-form map the teacher's AIDecision.Signals field used, per the §9
// redesign note ("model as tagged variants... makes serialization and
// querying typed end-to-end").
type StepDetail struct {
	// Cooldown / hourly-cap fields.
	RemainingMs     *int64  `json:"remainingMs,omitempty"`
	NextAvailableAt *time.Time `json:"nextAvailableAt,omitempty"`
	Scope           string  `json:"scope,omitempty"`
	Cap             *int    `json:"cap,omitempty"`
	CurrentCount    *int    `json:"currentCount,omitempty"`

	// Duplicate suppression.
	MatchedIDs []string `json:"matchedIds,omitempty"`

	// MTF consistency.
	Agreement         *float64 `json:"agreement,omitempty"`
	DominantDirection string   `json:"dominantDirection,omitempty"`

	// Opposite-direction constraint.
	OppositeActiveCount *int `json:"oppositeActiveCount,omitempty"`

	// Exposure caps.
	TotalCap         *int `json:"totalCap,omitempty"`
	DirCap           *int `json:"dirCap,omitempty"`
	CurrentTotal     *int `json:"currentTotal,omitempty"`
	CurrentDirection *int `json:"currentDirection,omitempty"`
	Adding           *int `json:"adding,omitempty"`

	// Free-form extension point for anything not covered above (e.g.
	// replayed market context), kept intentionally small.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// DecisionStep is one append-only entry in a DecisionChain.
type DecisionStep struct {
	Index     int          `json:"index"`
	Stage     Stage        `json:"stage"`
	Decision  StepDecision `json:"decision"`
	Reason    string       `json:"reason"`
	Details   StepDetail   `json:"details"`
	Timestamp time.Time    `json:"timestamp"`
}

// DecisionChain is the ordered, append-only audit record of one admission
// attempt (spec §3, §4.3).
type DecisionChain struct {
	ChainID        string         `json:"chain_id"`
	Symbol         string         `json:"symbol"`
	Direction      Direction      `json:"direction"`
	Source         string         `json:"source"`
	StartedAt      time.Time      `json:"started_at"`
	FinalizedAt    *time.Time     `json:"finalized_at,omitempty"`
	FinalDecision  StepDecision   `json:"final_decision"`
	DecisionTimeMs *int64         `json:"decision_time_ms,omitempty"`
	RecommendationID string       `json:"recommendation_id,omitempty"`
	ExecutionID      string       `json:"execution_id,omitempty"`
	Steps          []DecisionStep `json:"steps"`
}

// Finalized reports whether Finalize has already been called.
func (c *DecisionChain) Finalized() bool {
	return c.FinalizedAt != nil
}

// DeriveFinalDecision implements the invariant from spec §3: final_decision
// equals the decision of the last EXECUTION_DECISION step, or REJECTED if
// any GATING_CHECK step rejected, or REJECTED/ABANDONED if neither occurred.
func DeriveFinalDecision(steps []DecisionStep) (StepDecision, string) {
	var lastExecution *DecisionStep
	for i := range steps {
		s := &steps[i]
		if s.Stage == StageGatingCheck && s.Decision == DecisionRejected {
			return DecisionRejected, s.Reason
		}
		if s.Stage == StageExecutionDecision {
			lastExecution = s
		}
	}
	if lastExecution != nil {
		return lastExecution.Decision, lastExecution.Reason
	}
	return DecisionRejected, "ABANDONED"
}
