package gating

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
)

// Engine evaluates the fixed-order rule chain over (candidate,
// world-state) and returns either an admission or a typed Rejection,
// appending a GATING_CHECK step for every rule it runs (spec §4.4).
type Engine struct {
	store    persistence.Store
	counters *Counters
	locks    *SymbolLocks
	log      zerolog.Logger
}

// New builds an Engine reading world-state from store.
func New(store persistence.Store, counters *Counters, log zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		counters: counters,
		locks:    NewSymbolLocks(),
		log:      log,
	}
}

// Lock/Unlock expose the per-symbol stripe so the integration service can
// hold it across gating evaluation and the subsequent persist (spec §5:
// "held from begin gating to admission persisted ... or rejection
// snapshot persisted").
func (e *Engine) Lock(symbol string)   { e.locks.Lock(symbol) }
func (e *Engine) Unlock(symbol string) { e.locks.Unlock(symbol) }

// Result is the outcome of Evaluate: exactly one of Rejection or Admitted
// is set, alongside the full ordered GATING_CHECK steps for the chain.
type Result struct {
	Admitted  bool
	Rejection *Rejection
	Steps     []model.DecisionStep
}

// Evaluate runs the fixed rule order, stopping at first rejection. Callers
// must hold the symbol lock via Lock/Unlock around Evaluate plus the
// subsequent persist.
func (e *Engine) Evaluate(ctx context.Context, c Candidate, cfg Config) (Result, error) {
	var result Result

	step := func(decision model.StepDecision, reason string, detail model.StepDetail) {
		result.Steps = append(result.Steps, model.DecisionStep{
			Stage:     model.StageGatingCheck,
			Decision:  decision,
			Reason:    reason,
			Details:   detail,
			Timestamp: time.Now(),
		})
	}

	if rej := validateSchema(c); rej != nil {
		step(model.DecisionRejected, rej.Reason, rej.Detail)
		result.Rejection = rej
		return result, nil
	}
	step(model.DecisionApproved, "schema valid", model.StepDetail{})

	recent, err := e.store.ListRecentRecommendations(ctx, c.Symbol, time.Now().Add(-maxLookback(cfg)))
	if err != nil {
		return result, fmt.Errorf("list recent recommendations: %w", err)
	}

	if rej := evaluateCooldown(c, recent, cfg); rej != nil {
		step(model.DecisionRejected, rej.Reason, rej.Detail)
		result.Rejection = rej
		e.recordRejection(rej, c.Direction)
		return result, nil
	}
	step(model.DecisionApproved, "cooldown clear", model.StepDetail{})

	if rej := evaluateDuplicate(c, recent, cfg); rej != nil {
		step(model.DecisionRejected, rej.Reason, rej.Detail)
		result.Rejection = rej
		e.recordRejection(rej, c.Direction)
		return result, nil
	}
	step(model.DecisionApproved, "no duplicate found", model.StepDetail{})

	if rej := evaluateMTF(c, cfg); rej != nil {
		step(model.DecisionRejected, rej.Reason, rej.Detail)
		result.Rejection = rej
		e.recordRejection(rej, c.Direction)
		return result, nil
	}
	step(model.DecisionApproved, "MTF agreement satisfied", model.StepDetail{})

	active, err := e.store.ListActiveRecommendations(ctx, c.Symbol)
	if err != nil {
		return result, fmt.Errorf("list active recommendations: %w", err)
	}

	if rej := evaluateOppositeConstraint(c, active, cfg); rej != nil {
		step(model.DecisionRejected, rej.Reason, rej.Detail)
		result.Rejection = rej
		e.recordRejection(rej, c.Direction)
		return result, nil
	}
	step(model.DecisionApproved, "opposite-direction constraint satisfied", model.StepDetail{})

	if rej := evaluateExposureCap(c, active, cfg); rej != nil {
		step(model.DecisionRejected, rej.Reason, rej.Detail)
		result.Rejection = rej
		e.recordRejection(rej, c.Direction)
		return result, nil
	}
	step(model.DecisionApproved, "exposure within caps", model.StepDetail{})

	result.Admitted = true
	e.counters.RecordAdmission(c.Direction, c.DominantDirection == "", cfg.HourlyUnknownDirectionPolicy)
	return result, nil
}

func (e *Engine) recordRejection(rej *Rejection, direction model.Direction) {
	e.counters.RecordRejection(string(rej.Code), direction)
}

// maxLookback bounds the "recent" query window to the widest scope any
// rule reads: the largest of one hour (HOURLY cap), the duplicate-
// suppression window, and the three cooldown windows.
func maxLookback(cfg Config) time.Duration {
	lookback := time.Hour
	if cfg.DuplicateWindow > lookback {
		lookback = cfg.DuplicateWindow
	}
	if cfg.CooldownSameDirection > lookback {
		lookback = cfg.CooldownSameDirection
	}
	if cfg.CooldownOpposite > lookback {
		lookback = cfg.CooldownOpposite
	}
	if cfg.CooldownGlobal > lookback {
		lookback = cfg.CooldownGlobal
	}
	return lookback
}

// Snapshot exposes the gating counters for the system-status endpoint.
func (e *Engine) Snapshot() Snapshot {
	return e.counters.Snapshot()
}
