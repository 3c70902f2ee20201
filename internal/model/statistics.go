package model

import "time"

// Period is an aggregation window for per-period statistics (spec §4.6).
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all_time"
)

// BinMode selects how EV-vs-PnL bins are constructed.
type BinMode string

const (
	BinModeQuantile BinMode = "quantile"
	BinModeEven     BinMode = "even"
)

// EVWindow is a rolling lookback for EV-calibration monitoring.
type EVWindow string

const (
	EVWindow1d  EVWindow = "1d"
	EVWindow7d  EVWindow = "7d"
	EVWindow30d EVWindow = "30d"
)

// AggregateStats is the common shape shared by overall, per-strategy, and
// per-period statistics, grounded on the teacher's StrategyPerformance
// (internal/autopilot/strategy_stats.go).
type AggregateStats struct {
	TotalCount     int64   `json:"total_count"`
	ActiveCount    int64   `json:"active_count"`
	WinCount       int64   `json:"win_count"`
	LossCount      int64   `json:"loss_count"`
	BreakevenCount int64   `json:"breakeven_count"`
	WinRate        float64 `json:"win_rate"`
	AvgPnLPercent  float64 `json:"avg_pnl_percent"`
	TotalPnLAmount float64 `json:"total_pnl_amount"`
	LargestWinPct  float64 `json:"largest_win_percent"`
	LargestLossPct float64 `json:"largest_loss_percent"`
	LastClosedAt   *time.Time `json:"last_closed_at,omitempty"`
}

// OverallStatistics is the unscoped aggregate across every recommendation.
type OverallStatistics struct {
	AggregateStats
	ComputedAt time.Time `json:"computed_at"`
}

// StrategyStatistics scopes AggregateStats to one strategy_type.
type StrategyStatistics struct {
	StrategyType string `json:"strategy_type"`
	AggregateStats
	ComputedAt time.Time `json:"computed_at"`
}

// PeriodStatistics scopes AggregateStats to one rolling period.
type PeriodStatistics struct {
	Period Period `json:"period"`
	AggregateStats
	ComputedAt time.Time `json:"computed_at"`
}

// EVBinVariant is one A/B variant's slice of an EV bin.
type EVBinVariant struct {
	Count                  int64   `json:"count"`
	MeanRealizedPnLPercent float64 `json:"mean_realized_pnl_percent"`
	HitRate                float64 `json:"hit_rate"`
}

// EVBin is one bucket of the EV-vs-PnL distribution.
type EVBin struct {
	Index                  int                     `json:"index"`
	LowerBound             float64                 `json:"lower_bound"`
	UpperBound             float64                 `json:"upper_bound"`
	Count                  int64                   `json:"count"`
	MeanRealizedPnLPercent float64                 `json:"mean_realized_pnl_percent"`
	HitRate                float64                 `json:"hit_rate"`
	ByVariant              map[string]EVBinVariant `json:"by_variant,omitempty"`
}

// EVDistribution is the full EV-vs-PnL report for one bin configuration.
type EVDistribution struct {
	BinMode    BinMode   `json:"bin_mode"`
	Bins       []EVBin   `json:"bins"`
	ComputedAt time.Time `json:"computed_at"`
}

// EVMonitoringPoint is one grouped calibration reading within a monitoring
// window (group key is either an EV level bucket or a threshold value,
// selected by the caller's grouping mode).
type EVMonitoringPoint struct {
	GroupKey               string  `json:"group_key"`
	AvgPredictedEV         float64 `json:"avg_predicted_ev"`
	AvgRealizedPnLPercent  float64 `json:"avg_realized_pnl_percent"`
	SampleCount            int64   `json:"sample_count"`
}

// EVMonitoring is the rolling-window EV calibration report.
type EVMonitoring struct {
	Window     EVWindow            `json:"window"`
	GroupBy    string              `json:"group_by"`
	Points     []EVMonitoringPoint `json:"points"`
	ComputedAt time.Time           `json:"computed_at"`
}
