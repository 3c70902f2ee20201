package model

import "time"

// RecommendationFilter is the query shape for listing recommendations with
// filters (spec §4.1 "Get by id / list with filters", §6 list endpoint).
// Zero values mean "no constraint" except Limit, which callers should set
// explicitly (0 is treated as "no limit" by Store implementations).
type RecommendationFilter struct {
	Symbol        string
	StrategyType  string
	Status        Status
	Result        Result
	Direction     Direction
	ExperimentID  string
	StartDate     time.Time
	EndDate       time.Time
	IncludeActive bool
	Limit         int
	Offset        int
}

// DecisionChainFilter is the query shape for listing decision chains (spec
// §4.3 "Query — supports filters above; pagination by (started_at, chain_id)").
type DecisionChainFilter struct {
	Symbol        string
	Direction     Direction
	Source        string
	StartDate     time.Time
	EndDate       time.Time
	FinalDecision StepDecision
	FailuresOnly  bool
	Limit         int
	Offset        int
}

// ExecutionFilter is the query shape for listing executions (spec §4.1
// "list supports filters on symbol, direction, event_type, time window").
type ExecutionFilter struct {
	Symbol    string
	Direction Direction
	EventType EventType
	StartDate time.Time
	EndDate   time.Time
}
