// Package slippage maintains rolling per-symbol fill-slippage statistics and
// a debounced admission threshold derived from them, grounded on the
// teacher's internal/risk.TrailingStopManager: a per-symbol state map guarded
// by a single mutex, updated on every price/fill event, exposing a copy to
// callers rather than the live pointer.
package slippage

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
)

// Config tunes the rolling window and threshold debounce (spec §4.9).
type Config struct {
	// WindowSize is the number of most recent executions per symbol kept
	// for avg/median/p95 computation.
	WindowSize int
	// KSigma scales the dispersion term in threshold = p95 + KSigma*sigma.
	KSigma float64
	MinThresholdBps float64
	MaxThresholdBps float64
	// AdjustDebounce is the minimum interval between threshold changes for
	// a given symbol.
	AdjustDebounce time.Duration
}

// DefaultConfig mirrors the clamp bounds named in spec §4.9 (1bp .. 10%).
func DefaultConfig() Config {
	return Config{
		WindowSize:      500,
		KSigma:          3.0,
		MinThresholdBps: 1,
		MaxThresholdBps: 1000,
		AdjustDebounce:  15 * time.Minute,
	}
}

var bucketEdges = []float64{0, 5, 10, 25, 50, 100, math.Inf(1)}

// Analyzer records per-execution slippage, maintains a rolling window per
// symbol, and evaluates the debounced threshold on every new sample.
type Analyzer struct {
	store persistence.Store
	log   zerolog.Logger
	cfg   Config

	mu         sync.Mutex
	windows    map[string]*rollingWindow
	latest     map[string]model.SlippageStatistics
	thresholds map[string]*thresholdState
}

type rollingWindow struct {
	samples []float64
	next    int
	filled  int
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{samples: make([]float64, size)}
}

func (w *rollingWindow) add(v float64) {
	w.samples[w.next] = v
	w.next = (w.next + 1) % len(w.samples)
	if w.filled < len(w.samples) {
		w.filled++
	}
}

func (w *rollingWindow) sorted() []float64 {
	out := append([]float64(nil), w.samples[:w.filled]...)
	sort.Float64s(out)
	return out
}

// New builds an Analyzer backed by store, logging under the "slippage"
// component.
func New(store persistence.Store, log zerolog.Logger, cfg Config) *Analyzer {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	if cfg.KSigma <= 0 {
		cfg.KSigma = DefaultConfig().KSigma
	}
	if cfg.MaxThresholdBps <= 0 {
		cfg.MaxThresholdBps = DefaultConfig().MaxThresholdBps
	}
	if cfg.AdjustDebounce <= 0 {
		cfg.AdjustDebounce = DefaultConfig().AdjustDebounce
	}
	return &Analyzer{
		store:      store,
		log:        log.With().Str("component", "slippage").Logger(),
		cfg:        cfg,
		windows:    make(map[string]*rollingWindow),
		latest:     make(map[string]model.SlippageStatistics),
		thresholds: make(map[string]*thresholdState),
	}
}

// RecordExecution appends exec's slippage to the rolling window, persists
// the record and refreshed statistics, and returns an alert if the
// observation breached the current threshold (nil alert otherwise).
func (a *Analyzer) RecordExecution(ctx context.Context, exec *model.Execution) (*model.SlippageAlert, error) {
	bps := math.Abs(exec.SlippageBps)
	recordedAt := exec.FillTimestamp
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	rec := model.SlippageRecord{
		ID:          exec.ID,
		Symbol:      exec.Symbol,
		Direction:   exec.Direction,
		EventType:   exec.EventType,
		SlippageBps: bps,
		RecordedAt:  recordedAt,
	}
	if err := a.store.SaveSlippageRecord(ctx, rec); err != nil {
		return nil, err
	}

	stats := a.updateWindow(exec.Symbol, bps, recordedAt)
	if err := a.store.SaveSlippageStatistics(ctx, stats); err != nil {
		return nil, err
	}

	alert, err := a.evaluateThreshold(ctx, exec.Symbol, bps, stats, recordedAt)
	if err != nil {
		return nil, err
	}
	if alert != nil {
		a.log.Warn().Str("symbol", exec.Symbol).Float64("slippage_bps", bps).
			Str("severity", string(alert.Severity)).Msg("slippage threshold breached")
	}
	return alert, nil
}

func (a *Analyzer) updateWindow(symbol string, bps float64, now time.Time) model.SlippageStatistics {
	a.mu.Lock()
	w, ok := a.windows[symbol]
	if !ok {
		w = newRollingWindow(a.cfg.WindowSize)
		a.windows[symbol] = w
	}
	w.add(bps)
	sorted := w.sorted()
	a.mu.Unlock()

	stats := model.SlippageStatistics{
		Symbol:      symbol,
		SampleCount: int64(len(sorted)),
		UpdatedAt:   now,
		Buckets:     histogram(sorted),
	}
	if len(sorted) == 0 {
		return stats
	}
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	stats.AvgBps = sum / float64(len(sorted))
	stats.MedianBps = percentile(sorted, 0.5)
	stats.P95Bps = percentile(sorted, 0.95)

	a.mu.Lock()
	a.latest[symbol] = stats
	a.mu.Unlock()
	return stats
}

// Stats returns the in-memory snapshot for symbol without hitting Store,
// used by the API's read path.
func (a *Analyzer) Stats(symbol string) (model.SlippageStatistics, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats, ok := a.latest[symbol]
	return stats, ok
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func histogram(sorted []float64) []model.SlippageBucket {
	buckets := make([]model.SlippageBucket, len(bucketEdges)-1)
	for i := range buckets {
		buckets[i] = model.SlippageBucket{LowerBoundBps: bucketEdges[i], UpperBoundBps: bucketEdges[i+1]}
	}
	for _, v := range sorted {
		for i := range buckets {
			if v >= buckets[i].LowerBoundBps && v < buckets[i].UpperBoundBps {
				buckets[i].Count++
				break
			}
		}
	}
	return buckets
}
