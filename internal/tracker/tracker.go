// Package tracker owns the mutable in-memory set of active recommendations
// and evaluates exits on each price tick (spec §4.5). Its active-set
// ownership, RWMutex-guarded cache, and rehydrate-on-startup behavior are
// grounded directly on the teacher's
// internal/orders/position_tracker.go (PositionTracker/activePositions).
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
	"github.com/wangqiang-666/ETH-sub009/internal/pricefeed"
)

// ErrRecommendationNotFound mirrors the teacher's ErrPositionNotFound.
var ErrRecommendationNotFound = errors.New("recommendation not found")

// ErrAlreadyClosed is returned by manual close/force-expire on a
// recommendation that is no longer ACTIVE (spec §7 ALREADY_CLOSED).
var ErrAlreadyClosed = errors.New("recommendation already closed")

// Config controls the tracker's exit-evaluation behavior (spec §6).
type Config struct {
	TickInterval      time.Duration
	MaxHoldingTime    time.Duration
	PriceStaleGrace   time.Duration // grace period G before a stalled price feed causes a skip
	BreakevenWindow   time.Duration
	BreakevenEnabled  bool
}

func (c Config) withDefaults() Config {
	if c.TickInterval == 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.MaxHoldingTime == 0 {
		c.MaxHoldingTime = 24 * time.Hour
	}
	if c.PriceStaleGrace == 0 {
		c.PriceStaleGrace = 120 * time.Second
	}
	if c.BreakevenWindow == 0 {
		c.BreakevenWindow = time.Hour
	}
	return c
}

// ChainLinker lets the tracker append the EXECUTION_DECISION step to the
// decision chain a recommendation was admitted through, without importing
// the decisionchain package directly (keeps the dependency one-directional).
type ChainLinker interface {
	AppendExecutionDecision(ctx context.Context, recommendationID, reason string) error
}

// ExecutionSink records the realised fill for an admission or a closing
// transition (spec §3 Execution, §4.9 "on each closed execution, compute
// the slippage in bps..."). Optional: wired by main so the tracker package
// doesn't need to know about persistence.Store.SaveExecution or the
// slippage analyzer directly.
type ExecutionSink interface {
	RecordExecution(ctx context.Context, exec *model.Execution)
}

// Tracker is the single mutator of the active-recommendation set.
type Tracker struct {
	cfg    Config
	store  persistence.Store
	prices *pricefeed.Monitor
	chains ChainLinker
	log    zerolog.Logger

	mu     sync.RWMutex
	active map[string]*model.Recommendation

	staleSince map[string]time.Time

	execSink ExecutionSink

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// SetExecutionSink wires an optional execution recorder, invoked on
// admission (OPEN) and on every closing transition (CLOSE).
func (t *Tracker) SetExecutionSink(sink ExecutionSink) {
	t.execSink = sink
}

// New builds a Tracker. Rehydrate must be called once at startup before
// Start.
func New(cfg Config, store persistence.Store, prices *pricefeed.Monitor, chains ChainLinker, log zerolog.Logger) *Tracker {
	return &Tracker{
		cfg:        cfg.withDefaults(),
		store:      store,
		prices:     prices,
		chains:     chains,
		log:        log.With().Str("component", "tracker").Logger(),
		active:     make(map[string]*model.Recommendation),
		staleSince: make(map[string]time.Time),
	}
}

// Rehydrate loads ACTIVE recommendations from persistence into the
// in-memory set, mirroring LoadActivePositions — persistence is the
// source of truth on every restart (spec §9).
func (t *Tracker) Rehydrate(ctx context.Context, symbols []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, symbol := range symbols {
		recs, err := t.store.ListActiveRecommendations(ctx, symbol)
		if err != nil {
			return fmt.Errorf("rehydrate active recommendations for %s: %w", symbol, err)
		}
		for _, r := range recs {
			t.active[r.ID] = r
			total++
		}
	}

	t.log.Info().Int("count", total).Msg("rehydrated active recommendations")
	return nil
}

// Admit adds a freshly persisted recommendation to the active set. Called
// by the integration service immediately after a successful gating
// admission and persist (spec §4.7).
func (t *Tracker) Admit(rec *model.Recommendation) {
	t.mu.Lock()
	t.active[rec.ID] = rec
	t.mu.Unlock()

	if t.execSink != nil {
		t.execSink.RecordExecution(context.Background(), &model.Execution{
			ID:               model.NewID("exec-"),
			RecommendationID: rec.ID,
			Symbol:           rec.Symbol,
			Direction:        rec.Direction,
			EventType:        model.EventOpen,
			IntendedPrice:    rec.EntryPrice,
			FillPrice:        rec.EntryPrice,
			FillTimestamp:    rec.CreatedAt,
		})
	}

	t.recordLifecycleEvent(context.Background(), rec.ID, model.LifecycleEventCreated, nil, rec.EntryPrice, "")
}

// recordLifecycleEvent appends to a recommendation's audit trail (spec
// SPEC_FULL.md "Lifecycle event log"). Persistence failures are logged and
// swallowed: the trail is an observability aid, not load-bearing state.
func (t *Tracker) recordLifecycleEvent(ctx context.Context, recommendationID string, eventType model.LifecycleEventType, label *model.ExitLabel, price float64, reason string) {
	ev := &model.RecommendationEvent{
		RecommendationID: recommendationID,
		EventType:        eventType,
		ExitLabel:        label,
		Price:            price,
		Reason:           reason,
		Timestamp:        time.Now(),
	}
	if err := t.store.SaveRecommendationEvent(ctx, ev); err != nil {
		t.log.Warn().Err(err).Str("recommendation_id", recommendationID).Msg("failed to record lifecycle event")
	}
}

// ActiveSnapshot returns a copy-on-read snapshot of the active set,
// optionally filtered by symbol.
func (t *Tracker) ActiveSnapshot(symbol string) []*model.Recommendation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*model.Recommendation, 0, len(t.active))
	for _, r := range t.active {
		if symbol == "" || r.Symbol == symbol {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

// Get returns a copy of an active recommendation by id, or
// ErrRecommendationNotFound if it is not currently tracked.
func (t *Tracker) Get(id string) (*model.Recommendation, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.active[id]
	if !ok {
		return nil, ErrRecommendationNotFound
	}
	cp := *r
	return &cp, nil
}

// Start launches the periodic exit-evaluation loop (spec §4.5, §5:
// at-most-one-in-flight, cooperative shutdown).
func (t *Tracker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.loop(ctx)
}

// Stop signals cooperative shutdown and waits for the current tick to
// finish.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

func (t *Tracker) loop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.TickInterval)
	defer ticker.Stop()

	var inFlight sync.Mutex
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !inFlight.TryLock() {
				t.log.Warn().Msg("tracker tick overrun, skipping")
				continue
			}
			t.runTick(ctx)
			inFlight.Unlock()
		}
	}
}

// runTick snapshots the active set, evaluates exits for each recommendation
// in isolation (a single failure never aborts the loop), and closes any
// that have met an exit condition.
func (t *Tracker) runTick(ctx context.Context) {
	snapshot := t.ActiveSnapshot("")

	for _, rec := range snapshot {
		quote, err := t.prices.GetLatest(ctx, rec.Symbol)
		if err != nil {
			t.markStale(rec.ID)
			continue
		}
		if quote.Stale {
			if t.staleSinceExceeds(rec.ID, t.cfg.PriceStaleGrace) {
				continue
			}
		} else {
			t.clearStale(rec.ID)
		}

		price, _ := quote.Price.Float64()
		outcome, ok := evaluateExit(rec, price, time.Now(), t.cfg)
		if !ok {
			t.updateCurrentPrice(rec.ID, price)
			continue
		}

		if err := t.closeRecommendation(ctx, rec, outcome); err != nil {
			t.log.Error().Err(err).Str("recommendation_id", rec.ID).Msg("failed to close recommendation, will retry next tick")
		}
	}
}

func (t *Tracker) markStale(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.staleSince[id]; !ok {
		t.staleSince[id] = time.Now()
	}
}

func (t *Tracker) clearStale(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.staleSince, id)
}

func (t *Tracker) staleSinceExceeds(id string, grace time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	since, ok := t.staleSince[id]
	if !ok {
		t.staleSince[id] = time.Now()
		return false
	}
	return time.Since(since) > grace
}

func (t *Tracker) updateCurrentPrice(id string, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.active[id]; ok {
		r.CurrentPrice = price
	}
}

// closeRecommendation persists the closing transition, removes the
// recommendation from the active set, and links an EXECUTION_DECISION step
// to its decision chain. On persistence failure it returns before touching
// the in-memory state, so the recommendation stays active and the
// transition is retried on the next tick (spec §4.5).
func (t *Tracker) closeRecommendation(ctx context.Context, rec *model.Recommendation, outcome exitOutcome) error {
	now := time.Now()
	updated := *rec
	updated.Status = model.StatusClosed
	updated.ClosedAt = &now
	updated.ExitPrice = &outcome.exitPrice
	reason := outcome.exitReason
	updated.ExitReason = &reason
	label := outcome.label
	updated.ExitLabel = &label
	updated.PnLAmount = &outcome.pnlAmount
	updated.PnLPercent = &outcome.pnlPercent
	result := outcome.result
	updated.Result = &result

	if err := t.store.UpdateRecommendation(ctx, &updated); err != nil {
		return fmt.Errorf("persist closing transition: %w", err)
	}

	t.mu.Lock()
	delete(t.active, rec.ID)
	delete(t.staleSince, rec.ID)
	t.mu.Unlock()

	if t.chains != nil {
		if err := t.chains.AppendExecutionDecision(ctx, rec.ID, "EXITED:"+string(outcome.label)); err != nil {
			t.log.Warn().Err(err).Str("recommendation_id", rec.ID).Msg("failed to append execution decision step")
		}
	}

	if t.execSink != nil {
		t.execSink.RecordExecution(ctx, &model.Execution{
			ID:               model.NewID("exec-"),
			RecommendationID: rec.ID,
			Symbol:           rec.Symbol,
			Direction:        rec.Direction,
			EventType:        model.EventClose,
			IntendedPrice:    intendedExitPrice(rec, outcome),
			FillPrice:        outcome.exitPrice,
			FillTimestamp:    now,
			PnLAmount:        outcome.pnlAmount,
			PnLPercent:       outcome.pnlPercent,
		})
	}

	closedLabel := outcome.label
	t.recordLifecycleEvent(ctx, rec.ID, model.LifecycleEventClosed, &closedLabel, outcome.exitPrice, outcome.exitReason)

	t.log.Info().
		Str("recommendation_id", rec.ID).
		Str("exit_label", string(outcome.label)).
		Str("result", string(outcome.result)).
		Float64("pnl_percent", outcome.pnlPercent).
		Msg("recommendation closed")

	return nil
}

// intendedExitPrice is the price the exit was targeting: the stop-loss or
// take-profit level for those labels, and the actual fill price itself for
// timeout/break-even/manual closes where no specific level was being
// aimed at (zero slippage by definition).
func intendedExitPrice(rec *model.Recommendation, outcome exitOutcome) float64 {
	switch outcome.label {
	case model.ExitLabelStopLoss:
		return rec.StopLossPrice
	case model.ExitLabelTakeProfit:
		return rec.TakeProfitPrice
	default:
		return outcome.exitPrice
	}
}

// ManualClose closes an active recommendation on operator request with an
// optional reason (spec §6).
func (t *Tracker) ManualClose(ctx context.Context, id, reason string) error {
	rec, err := t.Get(id)
	if err != nil {
		return err
	}
	if !rec.IsActive() {
		return ErrAlreadyClosed
	}

	quote, err := t.prices.GetLatest(ctx, rec.Symbol)
	var price float64
	if err == nil {
		price, _ = quote.Price.Float64()
	} else {
		price = rec.CurrentPrice
	}

	outcome := classifyManualExit(rec, price, model.ExitLabelBreakeven, reason)
	return t.closeRecommendation(ctx, rec, outcome)
}

// ForceExpire maps to status=EXPIRED with exit_label=TIMEOUT, unifying the
// two per the §9 Open Question decision.
func (t *Tracker) ForceExpire(ctx context.Context, id string) error {
	rec, err := t.Get(id)
	if err != nil {
		return err
	}
	if !rec.IsActive() {
		return ErrAlreadyClosed
	}

	quote, err := t.prices.GetLatest(ctx, rec.Symbol)
	var price float64
	if err == nil {
		price, _ = quote.Price.Float64()
	} else {
		price = rec.CurrentPrice
	}

	outcome := classifyManualExit(rec, price, model.ExitLabelTimeout, "force-expired")

	now := time.Now()
	updated := *rec
	updated.Status = model.StatusExpired
	updated.ClosedAt = &now
	updated.ExitPrice = &outcome.exitPrice
	reason := outcome.exitReason
	updated.ExitReason = &reason
	label := outcome.label
	updated.ExitLabel = &label
	updated.PnLAmount = &outcome.pnlAmount
	updated.PnLPercent = &outcome.pnlPercent
	result := outcome.result
	updated.Result = &result

	if err := t.store.UpdateRecommendation(ctx, &updated); err != nil {
		return fmt.Errorf("persist force-expire transition: %w", err)
	}

	t.mu.Lock()
	delete(t.active, id)
	delete(t.staleSince, id)
	t.mu.Unlock()

	if t.chains != nil {
		if err := t.chains.AppendExecutionDecision(ctx, id, "EXITED:"+string(outcome.label)); err != nil {
			t.log.Warn().Err(err).Str("recommendation_id", id).Msg("failed to append execution decision step")
		}
	}

	if t.execSink != nil {
		t.execSink.RecordExecution(ctx, &model.Execution{
			ID:               model.NewID("exec-"),
			RecommendationID: id,
			Symbol:           rec.Symbol,
			Direction:        rec.Direction,
			EventType:        model.EventClose,
			IntendedPrice:    intendedExitPrice(rec, outcome),
			FillPrice:        outcome.exitPrice,
			FillTimestamp:    now,
			PnLAmount:        outcome.pnlAmount,
			PnLPercent:       outcome.pnlPercent,
		})
	}

	expiredLabel := outcome.label
	t.recordLifecycleEvent(ctx, id, model.LifecycleEventClosed, &expiredLabel, outcome.exitPrice, outcome.exitReason)

	return nil
}
