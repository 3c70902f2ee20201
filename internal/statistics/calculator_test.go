package statistics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
)

func pct(v float64) *float64 { return &v }
func result(r model.Result) *model.Result { return &r }

var seedSeq int

func seedClosed(t *testing.T, store *persistence.MemStore, strategy string, pnlPercent float64, res model.Result, ev float64, ab string) {
	t.Helper()
	seedSeq++
	closedAt := time.Now()
	rec := &model.Recommendation{
		ID:            fmt.Sprintf("rec-%s-%s-%d", strategy, res, seedSeq),
		Symbol:        "ETHUSDT",
		Direction:     model.DirectionLong,
		StrategyType:  strategy,
		EntryPrice:    2000,
		Status:        model.StatusClosed,
		CreatedAt:     time.Now().Add(-time.Hour),
		ClosedAt:      &closedAt,
		PnLPercent:    pct(pnlPercent),
		PnLAmount:     pct(pnlPercent * 10),
		Result:        result(res),
		ExpectedValue: ev,
		ABGroup:       ab,
	}
	if err := store.SaveRecommendation(context.Background(), rec); err != nil {
		t.Fatalf("seed recommendation: %v", err)
	}
}

func TestOverall_AggregatesWinLossBreakeven(t *testing.T) {
	store := persistence.NewMemStore()
	seedClosed(t, store, "trend", 9.0, model.ResultWin, 5, "A")
	seedClosed(t, store, "trend", -6.75, model.ResultLoss, 2, "B")
	seedClosed(t, store, "meanrev", 0.05, model.ResultBreakeven, 1, "A")

	calc := New(store, zerolog.Nop())
	stats, err := calc.Overall(context.Background())
	if err != nil {
		t.Fatalf("overall: %v", err)
	}
	if stats.TotalCount != 3 {
		t.Fatalf("expected 3 recommendations, got %d", stats.TotalCount)
	}
	if stats.WinCount != 1 || stats.LossCount != 1 || stats.BreakevenCount != 1 {
		t.Fatalf("expected 1/1/1 win/loss/breakeven, got %d/%d/%d", stats.WinCount, stats.LossCount, stats.BreakevenCount)
	}
	if stats.WinRate < 33.0 || stats.WinRate > 34.0 {
		t.Fatalf("expected win rate ~33%%, got %v", stats.WinRate)
	}
}

func TestByStrategy_GroupsIndependently(t *testing.T) {
	store := persistence.NewMemStore()
	seedClosed(t, store, "trend", 9.0, model.ResultWin, 5, "A")
	seedClosed(t, store, "meanrev", -6.75, model.ResultLoss, 2, "B")

	calc := New(store, zerolog.Nop())
	stats, err := calc.ByStrategy(context.Background())
	if err != nil {
		t.Fatalf("by strategy: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 strategy groups, got %d", len(stats))
	}
	for _, s := range stats {
		if s.TotalCount != 1 {
			t.Fatalf("expected each strategy to have exactly 1 recommendation, got %d for %s", s.TotalCount, s.StrategyType)
		}
	}
}

func TestEVDistribution_QuantileBinsCoverAllSamples(t *testing.T) {
	store := persistence.NewMemStore()
	for i, ev := range []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9} {
		res := model.ResultWin
		if i%2 == 0 {
			res = model.ResultLoss
		}
		seedClosed(t, store, "trend", float64(i), res, ev, "A")
	}

	calc := New(store, zerolog.Nop())
	dist, err := calc.EVDistribution(context.Background(), 5, model.BinModeQuantile, false)
	if err != nil {
		t.Fatalf("ev distribution: %v", err)
	}
	var total int64
	for _, b := range dist.Bins {
		total += b.Count
	}
	if total != 10 {
		t.Fatalf("expected all 10 samples covered across bins, got %d", total)
	}
}

func TestServiceCache_InvalidateForcesRecompute(t *testing.T) {
	store := persistence.NewMemStore()
	seedClosed(t, store, "trend", 9.0, model.ResultWin, 5, "A")

	svc := NewService(store, zerolog.Nop(), time.Minute)
	first, err := svc.Overall(context.Background())
	if err != nil {
		t.Fatalf("overall: %v", err)
	}
	if first.TotalCount != 1 {
		t.Fatalf("expected 1 recommendation, got %d", first.TotalCount)
	}

	seedClosed(t, store, "trend", -1.0, model.ResultLoss, 3, "B")
	cached, err := svc.Overall(context.Background())
	if err != nil {
		t.Fatalf("overall cached: %v", err)
	}
	if cached.TotalCount != 1 {
		t.Fatalf("expected cached result to still report 1, got %d", cached.TotalCount)
	}

	svc.Invalidate()
	fresh, err := svc.Overall(context.Background())
	if err != nil {
		t.Fatalf("overall after invalidate: %v", err)
	}
	if fresh.TotalCount != 2 {
		t.Fatalf("expected 2 recommendations after invalidate, got %d", fresh.TotalCount)
	}
}
