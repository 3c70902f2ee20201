// Package pricefeed maintains the per-symbol latest-price cache the gating
// engine and tracker read from. The cache/health/staleness shape follows
// the teacher's internal/cache/cache_service.go (TTL + degraded mode) and
// the other_examples market-maker price monitor (atomic price storage,
// staleness-based CheckHealth); per-symbol single-flight coalescing is
// grounded on the teacher's internal/database/redis_order_tracker.go
// background-loop pattern adapted to a fetch-coalescing key instead of a
// TTL-tracked order key.
package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// ErrUpstreamUnavailable is returned when a fetch fails and no cached value
// remains inside the stale-but-usable window (spec §4.2).
var ErrUpstreamUnavailable = fmt.Errorf("UPSTREAM_UNAVAILABLE")

// Fetcher retrieves the current mark price for a symbol from whatever
// market-data collaborator is wired in; out of scope for this module to
// implement, only to consume (spec Non-goals).
type Fetcher func(ctx context.Context, symbol string) (decimal.Decimal, error)

type cacheEntry struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// Config controls cache freshness behavior.
type Config struct {
	TTL          time.Duration // freshness window; default 10s
	StaleWindow  time.Duration // stale-but-usable window; default 60s
}

func (c Config) withDefaults() Config {
	if c.TTL == 0 {
		c.TTL = 10 * time.Second
	}
	if c.StaleWindow == 0 {
		c.StaleWindow = 60 * time.Second
	}
	return c
}

// Quote is a price read with a freshness flag, returned when a stale value
// is served inside the stale-but-usable window.
type Quote struct {
	Price     decimal.Decimal
	FetchedAt time.Time
	Stale     bool
}

// Monitor is the symbol->price cache described in spec §4.2.
type Monitor struct {
	cfg     Config
	fetch   Fetcher
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
	log     zerolog.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// New builds a Monitor wrapping fetch with a circuit breaker so a
// persistently failing upstream collaborator trips quickly instead of
// piling up latency on every tick, the way the teacher's
// internal/circuit/breaker.go guards outbound calls.
func New(cfg Config, fetch Fetcher, log zerolog.Logger) *Monitor {
	cfg = cfg.withDefaults()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pricefeed-upstream",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("price fetch breaker state change")
		},
	})

	return &Monitor{
		cfg:     cfg,
		fetch:   fetch,
		breaker: breaker,
		log:     log,
		entries: make(map[string]cacheEntry),
	}
}

// GetLatest reads the cache; if the entry is stale beyond the TTL, it
// refreshes from the upstream fetcher (coalesced per symbol). A fetch
// failure falls back to a stale-but-usable cached value (flagged) when one
// exists within StaleWindow, else returns ErrUpstreamUnavailable.
func (m *Monitor) GetLatest(ctx context.Context, symbol string) (Quote, error) {
	m.mu.RLock()
	entry, ok := m.entries[symbol]
	m.mu.RUnlock()

	now := time.Now()
	if ok && now.Sub(entry.fetchedAt) < m.cfg.TTL {
		return Quote{Price: entry.price, FetchedAt: entry.fetchedAt}, nil
	}

	refreshed, err := m.refresh(ctx, symbol)
	if err == nil {
		return Quote{Price: refreshed.price, FetchedAt: refreshed.fetchedAt}, nil
	}

	if ok && now.Sub(entry.fetchedAt) < m.cfg.StaleWindow {
		m.log.Warn().Str("symbol", symbol).Err(err).Msg("serving stale price inside stale-but-usable window")
		return Quote{Price: entry.price, FetchedAt: entry.fetchedAt, Stale: true}, nil
	}

	return Quote{}, ErrUpstreamUnavailable
}

// Prime force-refreshes a symbol regardless of TTL.
func (m *Monitor) Prime(ctx context.Context, symbol string) error {
	_, err := m.refresh(ctx, symbol)
	return err
}

// Clear drops the cached entry for a symbol.
func (m *Monitor) Clear(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, symbol)
}

// refresh performs a single-flight-coalesced fetch: concurrent callers for
// the same symbol share one upstream call.
func (m *Monitor) refresh(ctx context.Context, symbol string) (cacheEntry, error) {
	v, err, _ := m.group.Do(symbol, func() (interface{}, error) {
		price, ferr := m.breaker.Execute(func() (interface{}, error) {
			return m.fetch(ctx, symbol)
		})
		if ferr != nil {
			return cacheEntry{}, ferr
		}
		entry := cacheEntry{price: price.(decimal.Decimal), fetchedAt: time.Now()}
		m.mu.Lock()
		m.entries[symbol] = entry
		m.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return cacheEntry{}, err
	}
	return v.(cacheEntry), nil
}

// CheckHealth reports whether the most recently cached price for symbol is
// fresh enough to be considered healthy (used by the system-status
// endpoint), mirroring the market-maker price monitor's CheckHealth.
func (m *Monitor) CheckHealth(symbol string) error {
	m.mu.RLock()
	entry, ok := m.entries[symbol]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no price observed yet for %s", symbol)
	}
	if age := time.Since(entry.fetchedAt); age > m.cfg.StaleWindow {
		return fmt.Errorf("stale price for %s: last update %s ago", symbol, age)
	}
	return nil
}
