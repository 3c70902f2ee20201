package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID builds an opaque, globally unique id that sorts in creation order:
// a millisecond timestamp prefix followed by a short random suffix (spec §3
// "id (opaque, globally unique, monotonic timestamp-prefixed)"). Used for
// recommendation ids, decision chain ids, and execution ids alike.
func NewID(prefix string) string {
	return fmt.Sprintf("%s%d-%s", prefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// EventType is the kind of fill event recorded against a recommendation.
type EventType string

const (
	EventOpen   EventType = "OPEN"
	EventClose  EventType = "CLOSE"
	EventReduce EventType = "REDUCE"
)

// Execution is a realised fill record for a recommendation (spec §3).
type Execution struct {
	ID               string    `json:"id"`
	RecommendationID string    `json:"recommendation_id"`
	Symbol           string    `json:"symbol"`
	Direction        Direction `json:"direction"`
	EventType        EventType `json:"event_type"`
	IntendedPrice    float64   `json:"intended_price"`
	FillPrice        float64   `json:"fill_price"`
	FillTimestamp    time.Time `json:"fill_timestamp"`
	LatencyMs        int64     `json:"latency_ms"`
	SlippageBps      float64   `json:"slippage_bps"`
	FeeBps           float64   `json:"fee_bps"`
	PnLAmount        float64   `json:"pnl_amount"`
	PnLPercent       float64   `json:"pnl_percent"`
}

// LifecycleEventType is the kind of lifecycle event recorded against a
// recommendation, modeled after the teacher's
// database.TradeLifecycleEvent.EventType but scoped to what this domain's
// tracker actually emits (admission and the four exit labels), per
// SPEC_FULL.md's "Lifecycle event log" supplemented feature.
type LifecycleEventType string

const (
	LifecycleEventCreated LifecycleEventType = "CREATED"
	LifecycleEventClosed  LifecycleEventType = "CLOSED"
)

// RecommendationEvent is one append-only row in a recommendation's
// lifecycle audit trail, exposed read-only via GET
// /recommendations/{id}/events.
type RecommendationEvent struct {
	RecommendationID string              `json:"recommendation_id"`
	EventType        LifecycleEventType  `json:"event_type"`
	ExitLabel        *ExitLabel          `json:"exit_label,omitempty"`
	Price            float64             `json:"price"`
	Reason           string              `json:"reason,omitempty"`
	Timestamp        time.Time           `json:"timestamp"`
}

// GatingSnapshot is the monitoring row written on every gating rejection
// (spec §3, §4.4). RecommendationID carries the synthetic "GATED|..." id.
type GatingSnapshot struct {
	RecommendationID string     `json:"recommendation_id"`
	Symbol           string     `json:"symbol"`
	CheckTime        time.Time  `json:"check_time"`
	CurrentPrice     float64    `json:"current_price"`
	Reason           string     `json:"reason"`
	Stage            Stage      `json:"stage"`
	Source           string     `json:"source"`
	Detail           StepDetail `json:"detail"`
}

// NewGatedID builds the synthetic id used for a rejection's monitoring row.
func NewGatedID(chainID string) string {
	return "GATED|" + chainID
}
