package model

import "time"

// AlertSeverity grades a slippage-threshold alert (spec §4.9).
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "INFO"
	AlertWarning  AlertSeverity = "WARNING"
	AlertCritical AlertSeverity = "CRITICAL"
)

// SlippageBucket is one histogram bucket, keyed by its lower bound in bps.
type SlippageBucket struct {
	LowerBoundBps float64 `json:"lower_bound_bps"`
	UpperBoundBps float64 `json:"upper_bound_bps"`
	Count         int64   `json:"count"`
}

// SlippageRecord is the per-execution row the slippage analyzer appends to
// on every closed OPEN/CLOSE/REDUCE execution.
type SlippageRecord struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	Direction       Direction `json:"direction"`
	EventType       EventType `json:"event_type"`
	SlippageBps     float64   `json:"slippage_bps"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// SlippageStatistics is the rolling per-symbol summary the analyzer
// maintains and the API surfaces (spec §4.9 "Maintain rolling stats").
type SlippageStatistics struct {
	Symbol      string           `json:"symbol"`
	SampleCount int64            `json:"sample_count"`
	AvgBps      float64          `json:"avg_bps"`
	MedianBps   float64          `json:"median_bps"`
	P95Bps      float64          `json:"p95_bps"`
	Buckets     []SlippageBucket `json:"buckets"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// SlippageThreshold is the current debounced admission threshold for a
// symbol, recomputed as p95 + k*sigma and clamped to [1bp, 10%].
type SlippageThreshold struct {
	Symbol        string    `json:"symbol"`
	ThresholdBps  float64   `json:"threshold_bps"`
	KSigma        float64   `json:"k_sigma"`
	LastAdjustedAt time.Time `json:"last_adjusted_at"`
}

// SlippageAlert is emitted when an execution's slippage breaches the
// current threshold for its symbol.
type SlippageAlert struct {
	ID           string        `json:"id"`
	Symbol       string        `json:"symbol"`
	Severity     AlertSeverity `json:"severity"`
	SlippageBps  float64       `json:"slippage_bps"`
	ThresholdBps float64       `json:"threshold_bps"`
	Message      string        `json:"message"`
	RaisedAt     time.Time     `json:"raised_at"`
}
