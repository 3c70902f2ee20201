package slippage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

// thresholdState is the per-symbol admission threshold and the bookkeeping
// needed to debounce its adjustment, mirroring the teacher's
// TrailingPosition (current value + activation/last-update bookkeeping)
// but for a slippage ceiling instead of a stop price.
type thresholdState struct {
	current        model.SlippageThreshold
	lastAdjustedAt time.Time
}

func (a *Analyzer) evaluateThreshold(ctx context.Context, symbol string, bps float64, stats model.SlippageStatistics, now time.Time) (*model.SlippageAlert, error) {
	a.mu.Lock()
	st, ok := a.thresholds[symbol]
	if !ok {
		st = &thresholdState{current: model.SlippageThreshold{
			Symbol:         symbol,
			ThresholdBps:   a.cfg.MaxThresholdBps,
			KSigma:         a.cfg.KSigma,
			LastAdjustedAt: now,
		}}
		a.thresholds[symbol] = st
	}
	currentThreshold := st.current
	a.mu.Unlock()

	var alert *model.SlippageAlert
	if bps > currentThreshold.ThresholdBps {
		severity := model.AlertWarning
		if bps > currentThreshold.ThresholdBps*1.5 {
			severity = model.AlertCritical
		}
		alert = &model.SlippageAlert{
			ID:           uuid.NewString(),
			Symbol:       symbol,
			Severity:     severity,
			SlippageBps:  bps,
			ThresholdBps: currentThreshold.ThresholdBps,
			Message:      fmt.Sprintf("fill slippage %.2fbps exceeded threshold %.2fbps", bps, currentThreshold.ThresholdBps),
			RaisedAt:     now,
		}
		if err := a.store.SaveSlippageAlert(ctx, *alert); err != nil {
			return nil, err
		}
	}

	if err := a.maybeAdjustThreshold(ctx, symbol, stats, now); err != nil {
		return alert, err
	}
	return alert, nil
}

// maybeAdjustThreshold recomputes threshold = clamp(p95 + k*sigma, min, max)
// at most once per AdjustDebounce window. sigma is estimated from p95/avg
// spread (avg + 1.645*sigma ~= p95 for a roughly normal slippage
// distribution) since the rolling window keeps raw samples, not a running
// variance.
func (a *Analyzer) maybeAdjustThreshold(ctx context.Context, symbol string, stats model.SlippageStatistics, now time.Time) error {
	if stats.SampleCount < 10 {
		return nil
	}

	a.mu.Lock()
	st := a.thresholds[symbol]
	if now.Sub(st.lastAdjustedAt) < a.cfg.AdjustDebounce {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	sigma := math.Max((stats.P95Bps-stats.AvgBps)/1.645, 0)
	candidate := stats.P95Bps + a.cfg.KSigma*sigma
	candidate = clamp(candidate, a.cfg.MinThresholdBps, a.cfg.MaxThresholdBps)

	next := model.SlippageThreshold{
		Symbol:         symbol,
		ThresholdBps:   candidate,
		KSigma:         a.cfg.KSigma,
		LastAdjustedAt: now,
	}

	a.mu.Lock()
	a.thresholds[symbol].current = next
	a.thresholds[symbol].lastAdjustedAt = now
	a.mu.Unlock()

	return a.store.SaveSlippageThreshold(ctx, next)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Threshold returns the current in-memory threshold for symbol, falling
// back to the configured max until enough samples exist to compute one.
func (a *Analyzer) Threshold(symbol string) model.SlippageThreshold {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.thresholds[symbol]; ok {
		return st.current
	}
	return model.SlippageThreshold{Symbol: symbol, ThresholdBps: a.cfg.MaxThresholdBps, KSigma: a.cfg.KSigma}
}
