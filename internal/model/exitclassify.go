package model

import "math"

// BreakevenThresholdPercent is the |pnl_percent| magnitude under which a
// close is classified BREAKEVEN absent an explicit reason (spec §4.5, §9).
const BreakevenThresholdPercent = 0.1

// PnL computes pnl_amount and pnl_percent from the leverage-adjusted price
// move, mirroring the percent math in the teacher's dynamic SL/TP
// calculator (internal/autopilot/dynamic_sltp.go) but applied to a closed
// trade instead of a target distance.
func PnL(direction Direction, entryPrice, exitPrice, leverage float64) (amount, percent float64) {
	var move float64
	switch direction {
	case DirectionLong:
		move = (exitPrice - entryPrice) / entryPrice
	case DirectionShort:
		move = (entryPrice - exitPrice) / entryPrice
	}
	percent = move * leverage * 100
	amount = move * leverage * entryPrice
	return amount, percent
}

// ClassifyResult derives the WIN/LOSS/BREAKEVEN result for a closed
// recommendation. This is the single pure classification function called
// for by spec §9 ("centralize in one pure function; never duplicate the
// rules at the query layer").
//
// explicitBreakeven lets a caller that already knows the close was a
// break-even exit (the BREAKEVEN exit label, set by the tracker's
// break-even rule or a manual close) short-circuit the magnitude rule, per the §9 Open
// Question decision recorded in DESIGN.md.
func ClassifyResult(pnlPercent float64, explicitBreakeven bool) Result {
	if explicitBreakeven {
		return ResultBreakeven
	}
	if math.Abs(pnlPercent) < BreakevenThresholdPercent {
		return ResultBreakeven
	}
	if pnlPercent > 0 {
		return ResultWin
	}
	return ResultLoss
}
