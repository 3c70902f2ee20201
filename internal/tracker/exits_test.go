package tracker

import (
	"math"
	"testing"
	"time"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

func closeEnough(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// TestEvaluateExit_TakeProfitHappyPath reproduces spec §8 scenario 1
// literally: LONG entry=2000, tp=2056, sl=1960, lev=3; price sequence
// {2000, 2030, 2060} closes WIN at ~9.0% via DYNAMIC_TAKE_PROFIT.
func TestEvaluateExit_TakeProfitHappyPath(t *testing.T) {
	rec := &model.Recommendation{
		Direction:       model.DirectionLong,
		EntryPrice:      2000,
		TakeProfitPrice: 2056,
		StopLossPrice:   1960,
		Leverage:        3,
		CreatedAt:       time.Now(),
	}
	cfg := Config{MaxHoldingTime: 24 * time.Hour}

	for _, price := range []float64{2000, 2030} {
		if _, ok := evaluateExit(rec, price, time.Now(), cfg); ok {
			t.Fatalf("did not expect exit at price %v", price)
		}
	}

	outcome, ok := evaluateExit(rec, 2060, time.Now(), cfg)
	if !ok {
		t.Fatal("expected take-profit exit at 2060")
	}
	if outcome.label != model.ExitLabelTakeProfit {
		t.Fatalf("expected DYNAMIC_TAKE_PROFIT, got %s", outcome.label)
	}
	if outcome.result != model.ResultWin {
		t.Fatalf("expected WIN, got %s", outcome.result)
	}
	if !closeEnough(outcome.pnlPercent, 9.0, 0.01) {
		t.Fatalf("expected pnl_percent ~9.0, got %v", outcome.pnlPercent)
	}
}

// TestEvaluateExit_StopLoss reproduces spec §8 scenario 2: same setup,
// price sequence {2000, 1980, 1955} closes LOSS at ~-6.75% via
// DYNAMIC_STOP_LOSS.
func TestEvaluateExit_StopLoss(t *testing.T) {
	rec := &model.Recommendation{
		Direction:       model.DirectionLong,
		EntryPrice:      2000,
		TakeProfitPrice: 2056,
		StopLossPrice:   1960,
		Leverage:        3,
		CreatedAt:       time.Now(),
	}
	cfg := Config{MaxHoldingTime: 24 * time.Hour}

	for _, price := range []float64{2000, 1980} {
		if _, ok := evaluateExit(rec, price, time.Now(), cfg); ok {
			t.Fatalf("did not expect exit at price %v", price)
		}
	}

	outcome, ok := evaluateExit(rec, 1955, time.Now(), cfg)
	if !ok {
		t.Fatal("expected stop-loss exit at 1955")
	}
	if outcome.label != model.ExitLabelStopLoss {
		t.Fatalf("expected DYNAMIC_STOP_LOSS, got %s", outcome.label)
	}
	if outcome.result != model.ResultLoss {
		t.Fatalf("expected LOSS, got %s", outcome.result)
	}
	if !closeEnough(outcome.pnlPercent, -6.75, 0.01) {
		t.Fatalf("expected pnl_percent ~-6.75, got %v", outcome.pnlPercent)
	}
}

// TestEvaluateExit_Timeout reproduces spec §8 scenario 6: price never
// touches SL or TP, but max holding time elapses.
func TestEvaluateExit_Timeout(t *testing.T) {
	rec := &model.Recommendation{
		Direction:       model.DirectionLong,
		EntryPrice:      2000,
		TakeProfitPrice: 2200,
		StopLossPrice:   1800,
		Leverage:        1,
		CreatedAt:       time.Now().Add(-25 * time.Hour),
	}
	cfg := Config{MaxHoldingTime: 24 * time.Hour}

	outcome, ok := evaluateExit(rec, 2010, time.Now(), cfg)
	if !ok {
		t.Fatal("expected timeout exit")
	}
	if outcome.label != model.ExitLabelTimeout {
		t.Fatalf("expected TIMEOUT, got %s", outcome.label)
	}
}

func TestEvaluateExit_StopLossTakesPrecedenceOverTimeout(t *testing.T) {
	rec := &model.Recommendation{
		Direction:       model.DirectionLong,
		EntryPrice:      2000,
		TakeProfitPrice: 2200,
		StopLossPrice:   1960,
		Leverage:        1,
		CreatedAt:       time.Now().Add(-25 * time.Hour),
	}
	cfg := Config{MaxHoldingTime: 24 * time.Hour}

	outcome, ok := evaluateExit(rec, 1950, time.Now(), cfg)
	if !ok {
		t.Fatal("expected an exit")
	}
	if outcome.label != model.ExitLabelStopLoss {
		t.Fatalf("stop-loss must be evaluated before timeout, got %s", outcome.label)
	}
}
