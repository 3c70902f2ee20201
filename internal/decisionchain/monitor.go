// Package decisionchain records every admission attempt as an ordered,
// queryable audit trail (spec §4.3). The append-then-finalize shape follows
// the teacher's TradeLifecycleEvent persistence in
// internal/database/models_trade_lifecycle.go, generalized from a flat
// event log to a chain-of-steps aggregate.
package decisionchain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
)

// Monitor owns chain lifecycle: start, append, link, finalize, query,
// replay, and metrics.
type Monitor struct {
	store persistence.Store
	log   zerolog.Logger

	mu     sync.Mutex
	active map[string]*model.DecisionChain
	// chainByRecommendation survives finalization so the tracker can later
	// append the post-close EXECUTION_DECISION audit step to the same
	// chain (spec §4.5). Finalize() fixes final_decision but does not
	// close the chain to further audit appends.
	chainByRecommendation map[string]string

	metricsMu sync.Mutex
	totals    int64
	approved  int64
	rejected  int64
	reasonHist map[string]int64
	decisionTimeSumMs int64
}

// New builds a Monitor backed by store.
func New(store persistence.Store, log zerolog.Logger) *Monitor {
	return &Monitor{
		store:                 store,
		log:                   log,
		active:                make(map[string]*model.DecisionChain),
		chainByRecommendation: make(map[string]string),
		reasonHist:            make(map[string]int64),
	}
}

// Start begins a new chain with final_decision=PENDING.
func (m *Monitor) Start(ctx context.Context, symbol string, direction model.Direction, source string) (*model.DecisionChain, error) {
	chain := &model.DecisionChain{
		ChainID:       model.NewID("chain-"),
		Symbol:        symbol,
		Direction:     direction,
		Source:        source,
		StartedAt:     time.Now(),
		FinalDecision: model.DecisionPending,
	}
	if err := m.store.SaveDecisionChain(ctx, chain); err != nil {
		return nil, fmt.Errorf("start decision chain: %w", err)
	}

	m.mu.Lock()
	m.active[chain.ChainID] = chain
	m.mu.Unlock()

	return chain, nil
}

// AddStep appends a step in arrival order, at the next index of the chain.
// It returns an error when the chain is not active in this process or is
// already finalized. Steps are not de-duplicated: adding the same step
// twice records it twice, under two indexes.
func (m *Monitor) AddStep(ctx context.Context, chainID string, stage model.Stage, decision model.StepDecision, reason string, details model.StepDetail) error {
	m.mu.Lock()
	chain, ok := m.active[chainID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("chain_not_found: %s", chainID)
	}
	if chain.Finalized() {
		m.mu.Unlock()
		return fmt.Errorf("cannot append step to finalized chain %s", chainID)
	}
	step := model.DecisionStep{
		Index:     len(chain.Steps),
		Stage:     stage,
		Decision:  decision,
		Reason:    reason,
		Details:   details,
		Timestamp: time.Now(),
	}
	chain.Steps = append(chain.Steps, step)
	m.mu.Unlock()

	return m.store.AppendDecisionStep(ctx, chainID, step)
}

// Link stores the recommendation/execution foreign keys on the chain.
func (m *Monitor) Link(chainID, recommendationID, executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain, ok := m.active[chainID]
	if !ok {
		return
	}
	if recommendationID != "" {
		chain.RecommendationID = recommendationID
		m.chainByRecommendation[recommendationID] = chainID
	}
	if executionID != "" {
		chain.ExecutionID = executionID
	}
}

// AppendExecutionDecision appends the post-close EXECUTION_DECISION audit
// step (spec §4.5) to the chain linked to recommendationID. Unlike AddStep,
// this is allowed after the chain has finalized: admission finalization
// fixes final_decision at APPROVED, but the chain keeps accepting audit
// history for the lifecycle events that follow (satisfies tracker.ChainLinker).
func (m *Monitor) AppendExecutionDecision(ctx context.Context, recommendationID, reason string) error {
	m.mu.Lock()
	chainID, ok := m.chainByRecommendation[recommendationID]
	delete(m.chainByRecommendation, recommendationID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no decision chain linked to recommendation %s", recommendationID)
	}

	chain, err := m.store.GetDecisionChain(ctx, chainID)
	if err != nil {
		return fmt.Errorf("load decision chain %s: %w", chainID, err)
	}

	step := model.DecisionStep{
		Index:     len(chain.Steps),
		Stage:     model.StageExecutionDecision,
		Decision:  model.DecisionApproved,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	return m.store.AppendDecisionStep(ctx, chainID, step)
}

// Finalize sets finalized_at, computes decision_time_ms, and derives
// final_decision from the recorded steps (spec §4.3, §9 ABANDONED rule).
func (m *Monitor) Finalize(ctx context.Context, chainID string) (*model.DecisionChain, error) {
	m.mu.Lock()
	chain, ok := m.active[chainID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("chain_not_found: %s", chainID)
	}
	if chain.Finalized() {
		m.mu.Unlock()
		return chain, nil
	}

	now := time.Now()
	decision, reason := model.DeriveFinalDecision(chain.Steps)
	chain.FinalizedAt = &now
	chain.FinalDecision = decision
	elapsed := now.Sub(chain.StartedAt).Milliseconds()
	chain.DecisionTimeMs = &elapsed
	delete(m.active, chainID)
	m.mu.Unlock()

	if err := m.store.FinalizeDecisionChain(ctx, chain); err != nil {
		return nil, fmt.Errorf("finalize decision chain: %w", err)
	}

	m.recordMetrics(decision, reason, elapsed)
	return chain, nil
}

func (m *Monitor) recordMetrics(decision model.StepDecision, reason string, decisionTimeMs int64) {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	m.totals++
	switch decision {
	case model.DecisionApproved:
		m.approved++
	case model.DecisionRejected:
		m.rejected++
		m.reasonHist[reason]++
	}
	m.decisionTimeSumMs += decisionTimeMs
}

// Get retrieves a single chain by id, from the durable store.
func (m *Monitor) Get(ctx context.Context, chainID string) (*model.DecisionChain, error) {
	return m.store.GetDecisionChain(ctx, chainID)
}

// Query lists decision chains filtered and paginated per spec §4.3.
func (m *Monitor) Query(ctx context.Context, f model.DecisionChainFilter) ([]*model.DecisionChain, error) {
	return m.store.ListDecisionChains(ctx, f)
}

// Replay returns a chain's steps in order, a pure function of stored data
// (spec §4.3).
func (m *Monitor) Replay(ctx context.Context, chainID string) ([]model.DecisionStep, error) {
	chain, err := m.store.GetDecisionChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return chain.Steps, nil
}

// Metrics is the aggregate snapshot returned by the decision-chain stats
// endpoint: totals, approval rate, rejection-reason histogram, and average
// decision time.
type Metrics struct {
	Total            int64            `json:"total"`
	Approved         int64            `json:"approved"`
	Rejected         int64            `json:"rejected"`
	ApprovalRate     float64          `json:"approval_rate"`
	RejectionReasons map[string]int64 `json:"rejection_reasons"`
	AvgDecisionTimeMs float64         `json:"avg_decision_time_ms"`
}

// MetricsSnapshot returns a read-only snapshot of process-lifetime chain metrics.
func (m *Monitor) MetricsSnapshot() Metrics {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()

	snap := Metrics{
		Total:            m.totals,
		Approved:         m.approved,
		Rejected:         m.rejected,
		RejectionReasons: make(map[string]int64, len(m.reasonHist)),
	}
	for k, v := range m.reasonHist {
		snap.RejectionReasons[k] = v
	}
	if m.totals > 0 {
		snap.ApprovalRate = float64(m.approved) / float64(m.totals)
		snap.AvgDecisionTimeMs = float64(m.decisionTimeSumMs) / float64(m.totals)
	}
	return snap
}
