package tracker

import (
	"math"
	"time"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

// exitOutcome is the result of evaluating (or forcing) an exit: the fields
// needed to transition a recommendation to its terminal state.
type exitOutcome struct {
	label      model.ExitLabel
	exitReason string
	exitPrice  float64
	pnlAmount  float64
	pnlPercent float64
	result     model.Result
}

// evaluateExit implements spec §4.5's ordered exit evaluation: stop-loss,
// take-profit, timeout, then (optionally) break-even. Returns ok=false
// when none of the conditions are met on this tick.
func evaluateExit(rec *model.Recommendation, price float64, now time.Time, cfg Config) (exitOutcome, bool) {
	if label, hit := evaluateStopLoss(rec, price); hit {
		return buildOutcome(rec, price, label, false), true
	}
	if label, hit := evaluateTakeProfit(rec, price); hit {
		return buildOutcome(rec, price, label, false), true
	}
	if now.Sub(rec.CreatedAt) >= cfg.MaxHoldingTime {
		return buildOutcome(rec, price, model.ExitLabelTimeout, false), true
	}
	if cfg.BreakevenEnabled && now.Sub(rec.CreatedAt) >= cfg.BreakevenWindow {
		_, pct := model.PnL(rec.Direction, rec.EntryPrice, price, rec.Leverage)
		if math.Abs(pct) < model.BreakevenThresholdPercent {
			return buildOutcome(rec, price, model.ExitLabelBreakeven, true), true
		}
	}
	return exitOutcome{}, false
}

func evaluateStopLoss(rec *model.Recommendation, price float64) (model.ExitLabel, bool) {
	switch rec.Direction {
	case model.DirectionLong:
		return model.ExitLabelStopLoss, price <= rec.StopLossPrice
	case model.DirectionShort:
		return model.ExitLabelStopLoss, price >= rec.StopLossPrice
	}
	return "", false
}

func evaluateTakeProfit(rec *model.Recommendation, price float64) (model.ExitLabel, bool) {
	switch rec.Direction {
	case model.DirectionLong:
		return model.ExitLabelTakeProfit, price >= rec.TakeProfitPrice
	case model.DirectionShort:
		return model.ExitLabelTakeProfit, price <= rec.TakeProfitPrice
	}
	return "", false
}

// buildOutcome computes pnl_amount/pnl_percent and derives result via the
// single centralized classification function (spec §9: "centralize in one
// pure function; never duplicate the rules at the query layer").
// explicitBreakeven is true only when the break-even rule itself fired, so
// a sub-threshold stop/take-profit close is never silently relabeled.
func buildOutcome(rec *model.Recommendation, exitPrice float64, label model.ExitLabel, explicitBreakeven bool) exitOutcome {
	amount, percent := model.PnL(rec.Direction, rec.EntryPrice, exitPrice, rec.Leverage)
	result := model.ClassifyResult(percent, explicitBreakeven)
	return exitOutcome{
		label:      label,
		exitReason: "EXITED:" + string(label),
		exitPrice:  exitPrice,
		pnlAmount:  amount,
		pnlPercent: percent,
		result:     result,
	}
}

// classifyManualExit builds the outcome for an operator-initiated close
// (manual close or force-expire), which always carries an explicit reason
// rather than one derived from a triggered rule.
func classifyManualExit(rec *model.Recommendation, exitPrice float64, label model.ExitLabel, reason string) exitOutcome {
	outcome := buildOutcome(rec, exitPrice, label, label == model.ExitLabelBreakeven)
	if reason != "" {
		outcome.exitReason = reason
	}
	return outcome
}
