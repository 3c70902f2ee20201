// Package integration wires the gating engine, decision-chain monitor,
// tracker, and statistics cache into the periodic admission loop (spec
// §4.7). The ticker/overrun-skip/cooperative-shutdown shape is the same one
// the tracker package already uses, itself grounded on the teacher's
// internal/orders/position_tracker.go loop.
package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wangqiang-666/ETH-sub009/internal/decisionchain"
	"github.com/wangqiang-666/ETH-sub009/internal/gating"
	"github.com/wangqiang-666/ETH-sub009/internal/model"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
	"github.com/wangqiang-666/ETH-sub009/internal/statistics"
	"github.com/wangqiang-666/ETH-sub009/internal/tracker"
)

// SignalSource is the external collaborator that proposes candidates; its
// generation logic (technical indicators, ML models) is out of scope (spec
// §1 Non-goals) and consumed only through this interface.
type SignalSource interface {
	// NextCandidate returns a candidate for symbol, or ok=false if the
	// collaborator has nothing to propose this tick.
	NextCandidate(ctx context.Context, symbol string) (gating.Candidate, bool, error)
}

// Config controls the admission loop's cadence (spec §6
// tick_interval_admission, default 15s).
type Config struct {
	TickInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval == 0 {
		c.TickInterval = 15 * time.Second
	}
	return c
}

// Service is the top-level orchestrator: one instance per tracked symbol.
type Service struct {
	symbol     string
	cfg        Config
	gatingCfg  gating.Config
	signals    SignalSource
	store      persistence.Store
	engine     *gating.Engine
	chains     *decisionchain.Monitor
	tracker    *tracker.Tracker
	stats      *statistics.Service
	log        zerolog.Logger

	mu            sync.Mutex
	onCreateHooks []OnCreateHook

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Service for symbol, wiring the already-constructed
// collaborators (spec §4.7 "wire collaborators").
func New(
	symbol string,
	cfg Config,
	gatingCfg gating.Config,
	signals SignalSource,
	store persistence.Store,
	engine *gating.Engine,
	chains *decisionchain.Monitor,
	trk *tracker.Tracker,
	stats *statistics.Service,
	log zerolog.Logger,
) *Service {
	return &Service{
		symbol:    symbol,
		cfg:       cfg.withDefaults(),
		gatingCfg: gatingCfg,
		signals:   signals,
		store:     store,
		engine:    engine,
		chains:    chains,
		tracker:   trk,
		stats:     stats,
		log:       log.With().Str("component", "integration").Str("symbol", symbol).Logger(),
	}
}

// Start launches the periodic admission loop. At most one tick runs at a
// time; an overrunning tick causes the next one to be skipped rather than
// queued (spec §5, §7.2).
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop signals cooperative shutdown and waits for any in-flight tick.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	var inFlight sync.Mutex
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !inFlight.TryLock() {
				s.log.Warn().Msg("admission tick overrun, skipping")
				continue
			}
			s.runTick(ctx)
			inFlight.Unlock()
		}
	}
}

// runTick asks the signal source for one candidate and drives it through
// gating admission. A failure here is isolated to this tick; the loop
// itself never aborts (spec §4.5 failure semantics, applied identically to
// admission).
func (s *Service) runTick(ctx context.Context) {
	candidate, ok, err := s.signals.NextCandidate(ctx, s.symbol)
	if err != nil {
		s.log.Error().Err(err).Msg("signal source failed, retrying next tick")
		return
	}
	if !ok {
		return
	}

	if _, err := s.Admit(ctx, candidate, model.SourceAuto, false); err != nil {
		s.log.Error().Err(err).Msg("admission attempt failed")
	}
}

// AdmitOutcome is the result of one admission attempt, returned to both
// the periodic loop and the manual-create API handler (spec §6 "Create...
// returns {id, decision_chain_id} on success").
type AdmitOutcome struct {
	ChainID        string
	Admitted       bool
	Recommendation *model.Recommendation
	Rejection      *gating.Rejection
}

// Admit runs one full admission attempt: start the decision chain, hold
// the per-symbol lock across gating evaluation and the subsequent persist,
// and finalize the chain regardless of outcome (spec §4.3, §5). source
// distinguishes an operator-triggered call (MANUAL) from the periodic loop
// (AUTO); suppressHook honors the `x-loop-guard` header (spec §4.8).
func (s *Service) Admit(ctx context.Context, candidate gating.Candidate, source string, suppressHook bool) (*AdmitOutcome, error) {
	chain, err := s.chains.Start(ctx, candidate.Symbol, candidate.Direction, source)
	if err != nil {
		return nil, fmt.Errorf("start decision chain: %w", err)
	}
	outcome := &AdmitOutcome{ChainID: chain.ChainID}

	s.engine.Lock(candidate.Symbol)
	result, evalErr := s.engine.Evaluate(ctx, candidate, s.gatingCfg)
	if evalErr != nil {
		s.engine.Unlock(candidate.Symbol)
		if _, err := s.chains.Finalize(ctx, chain.ChainID); err != nil {
			s.log.Warn().Err(err).Str("chain_id", chain.ChainID).Msg("failed to finalize decision chain")
		}
		return outcome, fmt.Errorf("evaluate gating: %w", evalErr)
	}

	for _, step := range result.Steps {
		if err := s.chains.AddStep(ctx, chain.ChainID, step.Stage, step.Decision, step.Reason, step.Details); err != nil {
			s.log.Warn().Err(err).Str("chain_id", chain.ChainID).Msg("failed to append gating step")
		}
	}

	if result.Admitted {
		rec := candidate.ToRecommendation(model.NewID(""))
		if err := s.store.SaveRecommendation(ctx, rec); err != nil {
			s.engine.Unlock(candidate.Symbol)
			if _, ferr := s.chains.Finalize(ctx, chain.ChainID); ferr != nil {
				s.log.Warn().Err(ferr).Str("chain_id", chain.ChainID).Msg("failed to finalize decision chain")
			}
			return outcome, fmt.Errorf("persist admitted recommendation: %w", err)
		}
		s.chains.Link(chain.ChainID, rec.ID, "")
		s.tracker.Admit(rec)
		s.engine.Unlock(candidate.Symbol)

		if s.stats != nil {
			s.stats.Invalidate()
		}
		if err := s.chains.AddStep(ctx, chain.ChainID, model.StageExecutionDecision, model.DecisionApproved, "ADMITTED", model.StepDetail{}); err != nil {
			s.log.Warn().Err(err).Str("chain_id", chain.ChainID).Msg("failed to append execution decision step")
		}
		if _, err := s.chains.Finalize(ctx, chain.ChainID); err != nil {
			s.log.Warn().Err(err).Str("chain_id", chain.ChainID).Msg("failed to finalize decision chain")
		}
		if !suppressHook {
			s.fireOnCreate(rec)
		}
		s.log.Info().Str("recommendation_id", rec.ID).Str("symbol", rec.Symbol).Msg("recommendation admitted")

		outcome.Admitted = true
		outcome.Recommendation = rec
		return outcome, nil
	}

	snapshot := &model.GatingSnapshot{
		RecommendationID: model.NewGatedID(chain.ChainID),
		Symbol:           candidate.Symbol,
		CheckTime:        time.Now(),
		CurrentPrice:     candidate.CurrentPrice,
		Stage:            model.StageGatingCheck,
		Source:           source,
	}
	if result.Rejection != nil {
		snapshot.Reason = result.Rejection.Reason
		snapshot.Detail = result.Rejection.Detail
		outcome.Rejection = result.Rejection
	}
	if err := s.store.SaveMonitoringSnapshot(ctx, snapshot); err != nil {
		s.log.Warn().Err(err).Str("chain_id", chain.ChainID).Msg("failed to persist gating rejection snapshot")
	}
	s.engine.Unlock(candidate.Symbol)

	if _, err := s.chains.Finalize(ctx, chain.ChainID); err != nil {
		s.log.Warn().Err(err).Str("chain_id", chain.ChainID).Msg("failed to finalize decision chain")
	}
	return outcome, nil
}
