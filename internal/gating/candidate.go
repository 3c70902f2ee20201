package gating

import (
	"time"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

// Candidate is the pre-admission input to the rule chain: every attribute
// a rule needs to read, carried independently of the persisted
// Recommendation shape.
type Candidate struct {
	Symbol       string
	Direction    model.Direction
	StrategyType string
	Leverage     float64
	EntryPrice   float64
	CurrentPrice float64
	TakeProfitPrice float64
	StopLossPrice   float64
	Confidence   float64
	ExpectedValue float64

	Agreement         float64
	DominantDirection model.Direction
	BypassCooldown    bool
}

// ToRecommendation builds the Recommendation record to persist once the
// candidate is admitted.
func (c Candidate) ToRecommendation(id string) *model.Recommendation {
	return &model.Recommendation{
		ID:                id,
		Symbol:            c.Symbol,
		Direction:         c.Direction,
		StrategyType:      c.StrategyType,
		Leverage:          c.Leverage,
		EntryPrice:        c.EntryPrice,
		CurrentPrice:      c.CurrentPrice,
		TakeProfitPrice:   c.TakeProfitPrice,
		StopLossPrice:     c.StopLossPrice,
		Confidence:        c.Confidence,
		ExpectedValue:     c.ExpectedValue,
		Status:            model.StatusActive,
		CreatedAt:         time.Now(),
		Agreement:         c.Agreement,
		DominantDirection: c.DominantDirection,
		BypassCooldown:    c.BypassCooldown,
	}
}
