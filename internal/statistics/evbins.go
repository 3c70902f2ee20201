package statistics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

// EVDistribution bins closed recommendations by predicted expected value
// and reports realised PnL and hit rate per bin (spec §4.6 "EV-vs-PnL
// distribution"). byVariant additionally breaks each bin down by ABGroup.
func (c *Calculator) EVDistribution(ctx context.Context, bins int, mode model.BinMode, byVariant bool) (*model.EVDistribution, error) {
	if bins <= 0 {
		bins = 10
	}
	recs, err := c.store.ListRecommendations(ctx, model.RecommendationFilter{})
	if err != nil {
		return nil, err
	}
	closed := closedOnly(recs)

	var boundaries []float64
	switch mode {
	case model.BinModeEven:
		boundaries = evenBoundaries(closed, bins)
	default:
		mode = model.BinModeQuantile
		boundaries = quantileBoundaries(closed, bins)
	}

	result := &model.EVDistribution{BinMode: mode, ComputedAt: time.Now()}
	for i := 0; i < len(boundaries)-1; i++ {
		lower, upper := boundaries[i], boundaries[i+1]
		bin := model.EVBin{Index: i, LowerBound: lower, UpperBound: upper}
		var members []*model.Recommendation
		for _, r := range closed {
			inBin := r.ExpectedValue >= lower && (r.ExpectedValue < upper || i == len(boundaries)-2)
			if inBin {
				members = append(members, r)
			}
		}
		bin.Count = int64(len(members))
		bin.MeanRealizedPnLPercent, bin.HitRate = summarize(members)
		if byVariant {
			bin.ByVariant = summarizeByVariant(members)
		}
		result.Bins = append(result.Bins, bin)
	}
	return result, nil
}

// EVMonitoring reports rolling-window EV calibration grouped either by EV
// level (quantile buckets) or threshold crossing (spec §4.6 "EV
// monitoring").
func (c *Calculator) EVMonitoring(ctx context.Context, window model.EVWindow, groupBy string) (*model.EVMonitoring, error) {
	since := time.Now().Add(-windowDuration(window))
	recs, err := c.store.ListRecommendations(ctx, model.RecommendationFilter{StartDate: since})
	if err != nil {
		return nil, err
	}
	closed := closedOnly(recs)

	report := &model.EVMonitoring{Window: window, GroupBy: groupBy, ComputedAt: time.Now()}
	if groupBy == "threshold" {
		report.Points = thresholdGroups(closed)
	} else {
		report.GroupBy = "level"
		report.Points = levelGroups(closed, 5)
	}
	return report, nil
}

func windowDuration(w model.EVWindow) time.Duration {
	switch w {
	case model.EVWindow7d:
		return 7 * 24 * time.Hour
	case model.EVWindow30d:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func closedOnly(recs []*model.Recommendation) []*model.Recommendation {
	var out []*model.Recommendation
	for _, r := range recs {
		if !r.IsActive() && r.Result != nil && r.PnLPercent != nil {
			out = append(out, r)
		}
	}
	return out
}

func summarize(recs []*model.Recommendation) (meanPnL float64, hitRate float64) {
	if len(recs) == 0 {
		return 0, 0
	}
	var sum float64
	var wins int64
	for _, r := range recs {
		sum += *r.PnLPercent
		if *r.Result == model.ResultWin {
			wins++
		}
	}
	return sum / float64(len(recs)), float64(wins) / float64(len(recs)) * 100
}

func summarizeByVariant(recs []*model.Recommendation) map[string]model.EVBinVariant {
	grouped := make(map[string][]*model.Recommendation)
	for _, r := range recs {
		key := r.ABGroup
		if key == "" {
			key = "unassigned"
		}
		grouped[key] = append(grouped[key], r)
	}
	out := make(map[string]model.EVBinVariant, len(grouped))
	for key, members := range grouped {
		mean, hit := summarize(members)
		out[key] = model.EVBinVariant{Count: int64(len(members)), MeanRealizedPnLPercent: mean, HitRate: hit}
	}
	return out
}

// evenBoundaries splits the observed EV range into bins equal-width buckets.
func evenBoundaries(recs []*model.Recommendation, bins int) []float64 {
	if len(recs) == 0 {
		return []float64{0, 0}
	}
	min, max := recs[0].ExpectedValue, recs[0].ExpectedValue
	for _, r := range recs {
		if r.ExpectedValue < min {
			min = r.ExpectedValue
		}
		if r.ExpectedValue > max {
			max = r.ExpectedValue
		}
	}
	if min == max {
		max = min + 1
	}
	step := (max - min) / float64(bins)
	boundaries := make([]float64, bins+1)
	for i := 0; i <= bins; i++ {
		boundaries[i] = min + step*float64(i)
	}
	return boundaries
}

// quantileBoundaries splits the observed EV values so each bin holds an
// equal share of the sorted sample.
func quantileBoundaries(recs []*model.Recommendation, bins int) []float64 {
	if len(recs) == 0 {
		return []float64{0, 0}
	}
	values := make([]float64, len(recs))
	for i, r := range recs {
		values[i] = r.ExpectedValue
	}
	sort.Float64s(values)

	boundaries := make([]float64, bins+1)
	boundaries[0] = values[0]
	for i := 1; i < bins; i++ {
		idx := i * (len(values) - 1) / bins
		boundaries[i] = values[idx]
	}
	boundaries[bins] = values[len(values)-1]
	return boundaries
}

// levelGroups buckets recs into `levels` quantile groups and reports the
// average predicted EV against average realised PnL in each.
func levelGroups(recs []*model.Recommendation, levels int) []model.EVMonitoringPoint {
	if len(recs) == 0 {
		return nil
	}
	boundaries := quantileBoundaries(recs, levels)
	points := make([]model.EVMonitoringPoint, 0, levels)
	for i := 0; i < len(boundaries)-1; i++ {
		lower, upper := boundaries[i], boundaries[i+1]
		var members []*model.Recommendation
		for _, r := range recs {
			if r.ExpectedValue >= lower && (r.ExpectedValue < upper || i == len(boundaries)-2) {
				members = append(members, r)
			}
		}
		if len(members) == 0 {
			continue
		}
		var evSum, pnlSum float64
		for _, r := range members {
			evSum += r.ExpectedValue
			pnlSum += *r.PnLPercent
		}
		points = append(points, model.EVMonitoringPoint{
			GroupKey:              fmt.Sprintf("%.2f..%.2f", lower, upper),
			AvgPredictedEV:        evSum / float64(len(members)),
			AvgRealizedPnLPercent: pnlSum / float64(len(members)),
			SampleCount:           int64(len(members)),
		})
	}
	return points
}

// thresholdGroups reports cumulative calibration above each of a fixed
// ladder of EV thresholds (percent).
func thresholdGroups(recs []*model.Recommendation) []model.EVMonitoringPoint {
	thresholds := []float64{0, 1, 2, 5, 10}
	points := make([]model.EVMonitoringPoint, 0, len(thresholds))
	for _, th := range thresholds {
		var members []*model.Recommendation
		for _, r := range recs {
			if r.ExpectedValue >= th {
				members = append(members, r)
			}
		}
		if len(members) == 0 {
			continue
		}
		var evSum, pnlSum float64
		for _, r := range members {
			evSum += r.ExpectedValue
			pnlSum += *r.PnLPercent
		}
		points = append(points, model.EVMonitoringPoint{
			GroupKey:              fmt.Sprintf(">=%.0f%%", th),
			AvgPredictedEV:        evSum / float64(len(members)),
			AvgRealizedPnLPercent: pnlSum / float64(len(members)),
			SampleCount:           int64(len(members)),
		})
	}
	return points
}
