package gating

import (
	"math"
	"time"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

// validateSchema is rule 1: positive finite entry_price, current_price,
// leverage; direction must be LONG or SHORT (spec §4.4).
func validateSchema(c Candidate) *Rejection {
	if !c.Direction.Valid() {
		return &Rejection{Code: CodeInvalidDirection, Reason: "direction must be LONG or SHORT"}
	}
	if !(c.EntryPrice > 0) || math.IsInf(c.EntryPrice, 0) || math.IsNaN(c.EntryPrice) {
		return &Rejection{Code: CodeInvalidRequestBody, Reason: "entry_price must be positive and finite"}
	}
	if !(c.CurrentPrice > 0) || math.IsInf(c.CurrentPrice, 0) || math.IsNaN(c.CurrentPrice) {
		return &Rejection{Code: CodeInvalidRequestBody, Reason: "current_price must be positive and finite"}
	}
	if !(c.Leverage > 0) || math.IsInf(c.Leverage, 0) || math.IsNaN(c.Leverage) {
		return &Rejection{Code: CodeInvalidRequestBody, Reason: "leverage must be positive and finite"}
	}
	probe := &model.Recommendation{
		Direction:       c.Direction,
		EntryPrice:      c.EntryPrice,
		StopLossPrice:   c.StopLossPrice,
		TakeProfitPrice: c.TakeProfitPrice,
	}
	if !probe.ValidatePriceOrdering() {
		return &Rejection{Code: CodeInvalidPriceOrdering, Reason: "stop_loss/take_profit must bracket entry_price per direction"}
	}
	return nil
}

// cooldownScope identifies which of the four cooldown checks is being run.
type cooldownScope string

const (
	scopeSameDirection cooldownScope = "SAME_DIRECTION"
	scopeOpposite       cooldownScope = "OPPOSITE"
	scopeGlobal         cooldownScope = "GLOBAL"
)

// evaluateCooldown is rule 2. recent must already be sorted newest-first
// and scoped to the candidate's symbol (spec §4.4).
func evaluateCooldown(c Candidate, recent []*model.Recommendation, cfg Config) *Rejection {
	if c.BypassCooldown {
		return nil
	}

	if cfg.CooldownGlobal > 0 {
		if r := latestOverall(recent); r != nil {
			if rej := cooldownCheck(r.CreatedAt, cfg.CooldownGlobal, scopeGlobal, CodeCooldownGlobal); rej != nil {
				return rej
			}
		}
	}
	if cfg.CooldownSameDirection > 0 {
		if r := latestByDirection(recent, c.Direction); r != nil {
			if rej := cooldownCheck(r.CreatedAt, cfg.CooldownSameDirection, scopeSameDirection, CodeCooldownSameDirection); rej != nil {
				return rej
			}
		}
	}
	if cfg.CooldownOpposite > 0 {
		if r := latestByDirection(recent, c.Direction.Opposite()); r != nil {
			if rej := cooldownCheck(r.CreatedAt, cfg.CooldownOpposite, scopeOpposite, CodeCooldownOpposite); rej != nil {
				return rej
			}
		}
	}

	return evaluateHourlyCap(c, recent, cfg)
}

func cooldownCheck(lastCreated time.Time, window time.Duration, scope cooldownScope, code Code) *Rejection {
	elapsed := time.Since(lastCreated)
	if elapsed >= window {
		return nil
	}
	remaining := window - elapsed
	remainingMs := remaining.Milliseconds()
	nextAvailable := lastCreated.Add(window)
	return &Rejection{
		Code:   code,
		Reason: string(code),
		Detail: model.StepDetail{
			RemainingMs:     &remainingMs,
			NextAvailableAt: &nextAvailable,
			Scope:           string(scope),
		},
	}
}

// evaluateHourlyCap implements the HOURLY scope of rule 2: TOTAL and
// PER_DIRECTION caps over a rolling hour, counted from the persisted
// recent set rather than the in-process Counters (those are observability
// mirrors, not the source of truth, per spec §4.4's tie-break rule).
func evaluateHourlyCap(c Candidate, recent []*model.Recommendation, cfg Config) *Rejection {
	if cfg.HourlyCapTotal <= 0 && cfg.HourlyCapPerDirection <= 0 {
		return nil
	}
	since := time.Now().Add(-time.Hour)
	var total, sameDir int
	for _, r := range recent {
		if r.CreatedAt.Before(since) {
			continue
		}
		total++
		if r.Direction == c.Direction {
			sameDir++
		}
	}

	if cfg.HourlyCapTotal > 0 && total >= cfg.HourlyCapTotal {
		cap := cfg.HourlyCapTotal
		count := total
		return &Rejection{
			Code:   CodeHourlyCap,
			Reason: "hourly TOTAL cap reached",
			Detail: model.StepDetail{Scope: "TOTAL", Cap: &cap, CurrentCount: &count},
		}
	}
	if cfg.HourlyCapPerDirection > 0 && sameDir >= cfg.HourlyCapPerDirection {
		cap := cfg.HourlyCapPerDirection
		count := sameDir
		return &Rejection{
			Code:   CodeHourlyCap,
			Reason: "hourly PER_DIRECTION cap reached",
			Detail: model.StepDetail{Scope: "PER_DIRECTION", Cap: &cap, CurrentCount: &count},
		}
	}
	return nil
}

func latestOverall(recent []*model.Recommendation) *model.Recommendation {
	if len(recent) == 0 {
		return nil
	}
	return recent[0]
}

func latestByDirection(recent []*model.Recommendation, direction model.Direction) *model.Recommendation {
	for _, r := range recent {
		if r.Direction == direction {
			return r
		}
	}
	return nil
}

// evaluateDuplicate is rule 3: reject if an active or recently created
// recommendation for the same (symbol, direction, strategy_type) has an
// entry_price within DuplicateBpsThreshold basis points (spec §4.4).
func evaluateDuplicate(c Candidate, recent []*model.Recommendation, cfg Config) *Rejection {
	cutoff := time.Now().Add(-cfg.DuplicateWindow)
	var matched []string
	for _, r := range recent {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		if r.Direction != c.Direction || r.StrategyType != c.StrategyType {
			continue
		}
		if bpsDiff(r.EntryPrice, c.EntryPrice) <= cfg.DuplicateBpsThreshold {
			matched = append(matched, r.ID)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	return &Rejection{
		Code:   CodeDuplicateRecommendation,
		Reason: "matches existing recommendation within duplicate window",
		Detail: model.StepDetail{MatchedIDs: matched},
	}
}

func bpsDiff(a, b float64) float64 {
	if a == 0 {
		return math.Inf(1)
	}
	return math.Abs(a-b) / a * 10000
}

// evaluateMTF is rule 4: if required, the candidate must carry an
// agreement >= MinMTFAgreement and a dominantDirection equal to direction.
func evaluateMTF(c Candidate, cfg Config) *Rejection {
	if !cfg.RequireMTFAgreement {
		return nil
	}
	if c.Agreement >= cfg.MinMTFAgreement && c.DominantDirection == c.Direction {
		return nil
	}
	agreement := c.Agreement
	return &Rejection{
		Code:   CodeMTFConsistency,
		Reason: "insufficient multi-timeframe agreement",
		Detail: model.StepDetail{Agreement: &agreement, DominantDirection: string(c.DominantDirection)},
	}
}

// evaluateOppositeConstraint is rule 5: if opposite-direction active
// recommendations exist and confidence is below threshold, reject.
func evaluateOppositeConstraint(c Candidate, active []*model.Recommendation, cfg Config) *Rejection {
	oppositeCount := 0
	for _, r := range active {
		if r.Direction == c.Direction.Opposite() {
			oppositeCount++
		}
	}
	if oppositeCount == 0 {
		return nil
	}
	if c.Confidence >= cfg.OppositeMinConfidence {
		return nil
	}
	count := oppositeCount
	return &Rejection{
		Code:   CodeOppositeConstraint,
		Reason: "opposite-direction exposure with insufficient confidence",
		Detail: model.StepDetail{OppositeActiveCount: &count},
	}
}

// evaluateExposureCap is rule 6: caps total active count and per-direction
// active count.
func evaluateExposureCap(c Candidate, active []*model.Recommendation, cfg Config) *Rejection {
	total := len(active)
	var sameDir int
	for _, r := range active {
		if r.Direction == c.Direction {
			sameDir++
		}
	}
	adding := 1

	if cfg.ExposureCapTotal > 0 && total+adding > cfg.ExposureCapTotal {
		totalCap := cfg.ExposureCapTotal
		currentTotal := total
		return &Rejection{
			Code:   CodeExposureCap,
			Reason: "total exposure cap reached",
			Detail: model.StepDetail{TotalCap: &totalCap, CurrentTotal: &currentTotal, Adding: &adding},
		}
	}
	if cfg.ExposureCapPerDirection > 0 && sameDir+adding > cfg.ExposureCapPerDirection {
		dirCap := cfg.ExposureCapPerDirection
		currentDirection := sameDir
		return &Rejection{
			Code:   CodeExposureCap,
			Reason: "per-direction exposure cap reached",
			Detail: model.StepDetail{DirCap: &dirCap, CurrentDirection: &currentDirection, Adding: &adding},
		}
	}
	return nil
}
