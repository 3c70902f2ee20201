// Package statistics derives win-rate, PnL, and EV-calibration aggregates
// from persisted recommendations, grounded on the teacher's
// internal/autopilot.StrategyStatsManager: per-bucket aggregation computed
// in Go over the rows a generic Store can return, rather than hand-rolled
// per-backend SQL, so the same calculator runs against both the pgx
// Repository and the in-memory MemStore.
package statistics

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
)

// Calculator computes statistics directly from Store; callers that want
// caching should go through Service instead.
type Calculator struct {
	store persistence.Store
	log   zerolog.Logger
}

// New builds a Calculator reading from store.
func New(store persistence.Store, log zerolog.Logger) *Calculator {
	return &Calculator{store: store, log: log.With().Str("component", "statistics").Logger()}
}

// Overall aggregates every recommendation regardless of symbol or strategy
// (spec §4.6 "Overall: totals, winRate, avg pnl, total pnl, active count").
func (c *Calculator) Overall(ctx context.Context) (*model.OverallStatistics, error) {
	recs, err := c.store.ListRecommendations(ctx, model.RecommendationFilter{IncludeActive: true})
	if err != nil {
		return nil, err
	}
	return &model.OverallStatistics{
		AggregateStats: aggregate(recs),
		ComputedAt:     time.Now(),
	}, nil
}

// ByStrategy groups the same aggregate by strategy_type.
func (c *Calculator) ByStrategy(ctx context.Context) ([]*model.StrategyStatistics, error) {
	recs, err := c.store.ListRecommendations(ctx, model.RecommendationFilter{IncludeActive: true})
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]*model.Recommendation)
	var order []string
	for _, r := range recs {
		if _, ok := grouped[r.StrategyType]; !ok {
			order = append(order, r.StrategyType)
		}
		grouped[r.StrategyType] = append(grouped[r.StrategyType], r)
	}

	now := time.Now()
	out := make([]*model.StrategyStatistics, 0, len(order))
	for _, strategy := range order {
		out = append(out, &model.StrategyStatistics{
			StrategyType:   strategy,
			AggregateStats: aggregate(grouped[strategy]),
			ComputedAt:     now,
		})
	}
	return out, nil
}

// ByPeriod scopes the aggregate to recommendations created within period's
// rolling window (all_time applies no lower bound).
func (c *Calculator) ByPeriod(ctx context.Context, period model.Period) (*model.PeriodStatistics, error) {
	filter := model.RecommendationFilter{IncludeActive: true}
	if since, ok := periodSince(period, time.Now()); ok {
		filter.StartDate = since
	}
	recs, err := c.store.ListRecommendations(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &model.PeriodStatistics{
		Period:         period,
		AggregateStats: aggregate(recs),
		ComputedAt:     time.Now(),
	}, nil
}

func periodSince(period model.Period, now time.Time) (time.Time, bool) {
	switch period {
	case model.PeriodDaily:
		return now.Add(-24 * time.Hour), true
	case model.PeriodWeekly:
		return now.Add(-7 * 24 * time.Hour), true
	case model.PeriodMonthly:
		return now.Add(-30 * 24 * time.Hour), true
	default:
		return time.Time{}, false
	}
}

// aggregate reduces a recommendation slice to the common AggregateStats
// shape shared by overall/per-strategy/per-period reports.
func aggregate(recs []*model.Recommendation) model.AggregateStats {
	var stats model.AggregateStats
	var pnlSum float64
	var pnlSamples int64

	for _, r := range recs {
		stats.TotalCount++
		if r.IsActive() {
			stats.ActiveCount++
			continue
		}
		if r.Result == nil {
			continue
		}
		switch *r.Result {
		case model.ResultWin:
			stats.WinCount++
		case model.ResultLoss:
			stats.LossCount++
		case model.ResultBreakeven:
			stats.BreakevenCount++
		}
		if r.PnLPercent != nil {
			pnlSum += *r.PnLPercent
			pnlSamples++
			if *r.PnLPercent > stats.LargestWinPct {
				stats.LargestWinPct = *r.PnLPercent
			}
			if *r.PnLPercent < stats.LargestLossPct {
				stats.LargestLossPct = *r.PnLPercent
			}
		}
		if r.PnLAmount != nil {
			stats.TotalPnLAmount += *r.PnLAmount
		}
		if r.ClosedAt != nil && (stats.LastClosedAt == nil || r.ClosedAt.After(*stats.LastClosedAt)) {
			stats.LastClosedAt = r.ClosedAt
		}
	}

	closedCount := stats.WinCount + stats.LossCount + stats.BreakevenCount
	if closedCount > 0 {
		stats.WinRate = float64(stats.WinCount) / float64(closedCount) * 100
	}
	if pnlSamples > 0 {
		stats.AvgPnLPercent = pnlSum / float64(pnlSamples)
	}
	return stats
}
