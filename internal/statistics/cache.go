package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
)

// Service wraps Calculator with a short-TTL, in-process cache keyed by
// query shape (spec §4.6 "cached per query-key with TTL... invalidated on
// every admission, closure, deletion, or trim"). Grounded on the teacher's
// CacheService (internal/cache/cache_service.go) for the TTL-entry idiom,
// simplified to an in-process map since this cache is never shared across
// processes.
type Service struct {
	calc *Calculator
	ttl  time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// DefaultTTL matches spec §4.6's default of 60s.
const DefaultTTL = 60 * time.Second

// NewService builds a cached statistics facade over store.
func NewService(store persistence.Store, log zerolog.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		calc:    New(store, log),
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Invalidate drops every cached entry. It is called on admission, on
// closures and force-expiries made through the API, on deletion, and on
// trim; closures made by the tracker's own tick do not call it, so those
// show up once the cached entry's TTL expires.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]cacheEntry)
}

func (s *Service) get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (s *Service) put(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(s.ttl)}
}

func (s *Service) Overall(ctx context.Context) (*model.OverallStatistics, error) {
	const key = "overall"
	if v, ok := s.get(key); ok {
		return v.(*model.OverallStatistics), nil
	}
	stats, err := s.calc.Overall(ctx)
	if err != nil {
		return nil, err
	}
	s.put(key, stats)
	return stats, nil
}

func (s *Service) ByStrategy(ctx context.Context) ([]*model.StrategyStatistics, error) {
	const key = "by_strategy"
	if v, ok := s.get(key); ok {
		return v.([]*model.StrategyStatistics), nil
	}
	stats, err := s.calc.ByStrategy(ctx)
	if err != nil {
		return nil, err
	}
	s.put(key, stats)
	return stats, nil
}

func (s *Service) ByPeriod(ctx context.Context, period model.Period) (*model.PeriodStatistics, error) {
	key := fmt.Sprintf("period:%s", period)
	if v, ok := s.get(key); ok {
		return v.(*model.PeriodStatistics), nil
	}
	stats, err := s.calc.ByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	s.put(key, stats)
	return stats, nil
}

func (s *Service) EVDistribution(ctx context.Context, bins int, mode model.BinMode, byVariant bool) (*model.EVDistribution, error) {
	key := fmt.Sprintf("ev_dist:%d:%s:%v", bins, mode, byVariant)
	if v, ok := s.get(key); ok {
		return v.(*model.EVDistribution), nil
	}
	dist, err := s.calc.EVDistribution(ctx, bins, mode, byVariant)
	if err != nil {
		return nil, err
	}
	s.put(key, dist)
	return dist, nil
}

func (s *Service) EVMonitoring(ctx context.Context, window model.EVWindow, groupBy string) (*model.EVMonitoring, error) {
	key := fmt.Sprintf("ev_mon:%s:%s", window, groupBy)
	if v, ok := s.get(key); ok {
		return v.(*model.EVMonitoring), nil
	}
	report, err := s.calc.EVMonitoring(ctx, window, groupBy)
	if err != nil {
		return nil, err
	}
	s.put(key, report)
	return report, nil
}
