// Package model defines the core entities of the recommendation lifecycle:
// Recommendation, DecisionChain/DecisionStep, Execution, and the monitoring
// snapshot rows written on gating rejection.
package model

import "time"

// Direction is the side of a recommendation.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Status is the lifecycle status of a recommendation.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusClosed  Status = "CLOSED"
	StatusExpired Status = "EXPIRED"
)

// ExitLabel is the enumerated reason a recommendation closed.
type ExitLabel string

const (
	ExitLabelTakeProfit ExitLabel = "DYNAMIC_TAKE_PROFIT"
	ExitLabelStopLoss   ExitLabel = "DYNAMIC_STOP_LOSS"
	ExitLabelTimeout    ExitLabel = "TIMEOUT"
	ExitLabelBreakeven  ExitLabel = "BREAKEVEN"
)

// Result is the classification of a closed recommendation's PnL.
type Result string

const (
	ResultWin       Result = "WIN"
	ResultLoss      Result = "LOSS"
	ResultBreakeven Result = "BREAKEVEN"
)

// Recommendation is the central entity of the system (spec §3).
type Recommendation struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Direction Direction `json:"direction"`
	StrategyType string `json:"strategy_type"`

	Leverage        float64 `json:"leverage"`
	EntryPrice      float64 `json:"entry_price"`
	CurrentPrice    float64 `json:"current_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	StopLossPrice   float64 `json:"stop_loss_price"`
	Confidence      float64 `json:"confidence"`
	// ExpectedValue is the predicted per-trade return (as a percent)
	// carried from the candidate and compared post-hoc to realised PnL by
	// the statistics calculator's EV-vs-PnL distribution.
	ExpectedValue float64 `json:"expected_value"`

	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	ExitPrice *float64   `json:"exit_price,omitempty"`
	ExitReason *string   `json:"exit_reason,omitempty"`
	ExitLabel  *ExitLabel `json:"exit_label,omitempty"`
	Result     *Result    `json:"result,omitempty"`
	PnLAmount  *float64   `json:"pnl_amount,omitempty"`
	PnLPercent *float64   `json:"pnl_percent,omitempty"`

	ExperimentID string `json:"experiment_id,omitempty"`
	Variant      string `json:"variant,omitempty"`
	ABGroup      string `json:"ab_group,omitempty"`

	// MTF / gating-relevant candidate attributes, carried through admission
	// but not part of the durable schema beyond what gating needs to audit.
	Agreement         float64   `json:"agreement,omitempty"`
	DominantDirection Direction `json:"dominant_direction,omitempty"`
	BypassCooldown    bool      `json:"-"`
}

// IsActive reports whether the recommendation is in the live tracking set.
func (r *Recommendation) IsActive() bool {
	return r.Status == StatusActive
}

// ValidatePriceOrdering checks invariant (iii) from spec §3: for LONG,
// stop_loss < entry < take_profit; inverted for SHORT.
func (r *Recommendation) ValidatePriceOrdering() bool {
	switch r.Direction {
	case DirectionLong:
		return r.StopLossPrice < r.EntryPrice && r.EntryPrice < r.TakeProfitPrice
	case DirectionShort:
		return r.StopLossPrice > r.EntryPrice && r.EntryPrice > r.TakeProfitPrice
	default:
		return false
	}
}
