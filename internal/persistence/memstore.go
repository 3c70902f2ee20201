package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

// ErrConflict is returned by SaveRecommendation when the id already
// exists, mirroring the unique-violation a real Postgres insert would
// raise on the recommendations table's id primary key (spec §4.1
// invariant (iv): "an id is never reused").
var ErrConflict = errors.New("recommendation id already exists")

// MemStore is an in-process Store used by package tests that would
// otherwise need a live PostgreSQL instance, mirroring how the teacher's
// position_tracker_test.go fakes PositionStateRepository rather than
// hitting a real database.
type MemStore struct {
	mu         sync.Mutex
	recs       map[string]*model.Recommendation
	executions map[string][]*model.Execution
	chains     map[string]*model.DecisionChain
	snapshots  []*model.GatingSnapshot
	recEvents  map[string][]*model.RecommendationEvent

	slippageRecords map[string][]model.SlippageRecord
	slippageStats   map[string]model.SlippageStatistics
	slippageThresh  map[string]model.SlippageThreshold
	slippageAlerts  map[string][]model.SlippageAlert
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		recs:            make(map[string]*model.Recommendation),
		executions:      make(map[string][]*model.Execution),
		chains:          make(map[string]*model.DecisionChain),
		recEvents:       make(map[string][]*model.RecommendationEvent),
		slippageRecords: make(map[string][]model.SlippageRecord),
		slippageStats:   make(map[string]model.SlippageStatistics),
		slippageThresh:  make(map[string]model.SlippageThreshold),
		slippageAlerts:  make(map[string][]model.SlippageAlert),
	}
}

func (m *MemStore) HealthCheck(ctx context.Context) error { return nil }

func (m *MemStore) SaveRecommendation(ctx context.Context, r *model.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.recs[r.ID]; exists {
		return ErrConflict
	}
	cp := *r
	m.recs[r.ID] = &cp
	return nil
}

func (m *MemStore) UpdateRecommendation(ctx context.Context, r *model.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[r.ID]; !ok {
		return fmt.Errorf("recommendation %s not found", r.ID)
	}
	cp := *r
	m.recs[r.ID] = &cp
	return nil
}

func (m *MemStore) GetRecommendation(ctx context.Context, id string) (*model.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return nil, fmt.Errorf("recommendation %s not found", id)
	}
	cp := *r
	return &cp, nil
}

func (m *MemStore) ListActiveRecommendations(ctx context.Context, symbol string) ([]*model.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Recommendation
	for _, r := range m.recs {
		if r.Symbol == symbol && r.IsActive() {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) ListRecommendationHistory(ctx context.Context, symbol string, limit, offset int) ([]*model.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Recommendation
	for _, r := range m.recs {
		if r.Symbol == symbol && !r.IsActive() {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *MemStore) ListRecentRecommendations(ctx context.Context, symbol string, since time.Time) ([]*model.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Recommendation
	for _, r := range m.recs {
		if r.Symbol == symbol && !r.CreatedAt.Before(since) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) ListRecommendations(ctx context.Context, f model.RecommendationFilter) ([]*model.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Recommendation
	for _, r := range m.recs {
		if f.Symbol != "" && r.Symbol != f.Symbol {
			continue
		}
		if f.StrategyType != "" && r.StrategyType != f.StrategyType {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Result != "" && (r.Result == nil || *r.Result != f.Result) {
			continue
		}
		if f.Direction != "" && r.Direction != f.Direction {
			continue
		}
		if f.ExperimentID != "" && r.ExperimentID != f.ExperimentID {
			continue
		}
		if !f.StartDate.IsZero() && r.CreatedAt.Before(f.StartDate) {
			continue
		}
		if !f.EndDate.IsZero() && r.CreatedAt.After(f.EndDate) {
			continue
		}
		if !f.IncludeActive && r.IsActive() {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemStore) DeleteRecommendation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return fmt.Errorf("recommendation %s not found", id)
	}
	if r.IsActive() {
		return fmt.Errorf("recommendation %s is still active", id)
	}
	delete(m.recs, id)
	delete(m.executions, id)
	return nil
}

func (m *MemStore) TrimHistory(ctx context.Context, symbol string, keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var closed []*model.Recommendation
	for _, r := range m.recs {
		if r.Symbol == symbol && !r.IsActive() {
			closed = append(closed, r)
		}
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].CreatedAt.After(closed[j].CreatedAt) })
	if keep >= len(closed) {
		return 0, nil
	}
	removed := 0
	for _, r := range closed[keep:] {
		delete(m.recs, r.ID)
		delete(m.executions, r.ID)
		removed++
	}
	return removed, nil
}

func (m *MemStore) SaveExecution(ctx context.Context, e *model.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.executions[e.RecommendationID] = append(m.executions[e.RecommendationID], &cp)
	return nil
}

func (m *MemStore) ListExecutions(ctx context.Context, recommendationID string) ([]*model.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Execution(nil), m.executions[recommendationID]...), nil
}

func (m *MemStore) ListExecutionsFiltered(ctx context.Context, f model.ExecutionFilter) ([]*model.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Execution
	for _, execs := range m.executions {
		for _, e := range execs {
			if f.Symbol != "" && e.Symbol != f.Symbol {
				continue
			}
			if f.Direction != "" && e.Direction != f.Direction {
				continue
			}
			if f.EventType != "" && e.EventType != f.EventType {
				continue
			}
			if !f.StartDate.IsZero() && e.FillTimestamp.Before(f.StartDate) {
				continue
			}
			if !f.EndDate.IsZero() && e.FillTimestamp.After(f.EndDate) {
				continue
			}
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FillTimestamp.After(out[j].FillTimestamp) })
	return out, nil
}

func (m *MemStore) SaveDecisionChain(ctx context.Context, c *model.DecisionChain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.Steps = append([]model.DecisionStep(nil), c.Steps...)
	m.chains[c.ChainID] = &cp
	return nil
}

func (m *MemStore) AppendDecisionStep(ctx context.Context, chainID string, step model.DecisionStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chains[chainID]
	if !ok {
		return fmt.Errorf("decision chain %s not found", chainID)
	}
	c.Steps = append(c.Steps, step)
	return nil
}

func (m *MemStore) FinalizeDecisionChain(ctx context.Context, c *model.DecisionChain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.chains[c.ChainID]
	if !ok {
		return fmt.Errorf("decision chain %s not found", c.ChainID)
	}
	existing.FinalizedAt = c.FinalizedAt
	existing.FinalDecision = c.FinalDecision
	existing.DecisionTimeMs = c.DecisionTimeMs
	existing.RecommendationID = c.RecommendationID
	existing.ExecutionID = c.ExecutionID
	return nil
}

func (m *MemStore) GetDecisionChain(ctx context.Context, chainID string) (*model.DecisionChain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chains[chainID]
	if !ok {
		return nil, fmt.Errorf("decision chain %s not found", chainID)
	}
	cp := *c
	cp.Steps = append([]model.DecisionStep(nil), c.Steps...)
	return &cp, nil
}

func (m *MemStore) ListDecisionChains(ctx context.Context, f model.DecisionChainFilter) ([]*model.DecisionChain, error) {
	m.mu.Lock()
	var out []*model.DecisionChain
	for _, c := range m.chains {
		if f.Symbol != "" && c.Symbol != f.Symbol {
			continue
		}
		if f.Direction != "" && c.Direction != f.Direction {
			continue
		}
		if f.Source != "" && c.Source != f.Source {
			continue
		}
		if !f.StartDate.IsZero() && c.StartedAt.Before(f.StartDate) {
			continue
		}
		if !f.EndDate.IsZero() && c.StartedAt.After(f.EndDate) {
			continue
		}
		if f.FinalDecision != "" && c.FinalDecision != f.FinalDecision {
			continue
		}
		if f.FailuresOnly && c.FinalDecision != model.DecisionRejected {
			continue
		}
		cp := *c
		cp.Steps = append([]model.DecisionStep(nil), c.Steps...)
		out = append(out, &cp)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ChainID > out[j].ChainID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemStore) SaveRecommendationEvent(ctx context.Context, e *model.RecommendationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.recEvents[e.RecommendationID] = append(m.recEvents[e.RecommendationID], &cp)
	return nil
}

func (m *MemStore) ListRecommendationEvents(ctx context.Context, recommendationID string) ([]*model.RecommendationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*model.RecommendationEvent(nil), m.recEvents[recommendationID]...)
	return out, nil
}

func (m *MemStore) SaveMonitoringSnapshot(ctx context.Context, s *model.GatingSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.snapshots = append(m.snapshots, &cp)
	return nil
}

// Snapshots exposes recorded gating snapshots for assertions in tests.
func (m *MemStore) Snapshots() []*model.GatingSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.GatingSnapshot(nil), m.snapshots...)
}

func (m *MemStore) ListMonitoringSnapshots(ctx context.Context, symbol string, limit, offset int) ([]*model.GatingSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.GatingSnapshot
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		s := m.snapshots[i]
		if symbol != "" && s.Symbol != symbol {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckTime.After(out[j].CheckTime) })

	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) SaveSlippageRecord(ctx context.Context, rec model.SlippageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slippageRecords[rec.Symbol] = append(m.slippageRecords[rec.Symbol], rec)
	return nil
}

func (m *MemStore) ListSlippageRecords(ctx context.Context, symbol string, since time.Time) ([]model.SlippageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SlippageRecord
	for _, rec := range m.slippageRecords[symbol] {
		if !rec.RecordedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemStore) SaveSlippageStatistics(ctx context.Context, stats model.SlippageStatistics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slippageStats[stats.Symbol] = stats
	return nil
}

func (m *MemStore) GetSlippageStatistics(ctx context.Context, symbol string) (*model.SlippageStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.slippageStats[symbol]
	if !ok {
		return nil, fmt.Errorf("no slippage statistics for %s", symbol)
	}
	cp := stats
	return &cp, nil
}

func (m *MemStore) SaveSlippageThreshold(ctx context.Context, th model.SlippageThreshold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slippageThresh[th.Symbol] = th
	return nil
}

func (m *MemStore) GetSlippageThreshold(ctx context.Context, symbol string) (*model.SlippageThreshold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	th, ok := m.slippageThresh[symbol]
	if !ok {
		return nil, fmt.Errorf("no slippage threshold for %s", symbol)
	}
	cp := th
	return &cp, nil
}

func (m *MemStore) SaveSlippageAlert(ctx context.Context, alert model.SlippageAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slippageAlerts[alert.Symbol] = append(m.slippageAlerts[alert.Symbol], alert)
	return nil
}

func (m *MemStore) ListSlippageAlerts(ctx context.Context, symbol string, limit int) ([]model.SlippageAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alerts := m.slippageAlerts[symbol]
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].RaisedAt.After(alerts[j].RaisedAt) })
	if limit > 0 && limit < len(alerts) {
		alerts = alerts[:limit]
	}
	return append([]model.SlippageAlert(nil), alerts...), nil
}

var _ Store = (*MemStore)(nil)
