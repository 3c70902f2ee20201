// Trading-recommendation engine entrypoint: wires persistence, the gating
// admission chain, the decision-chain monitor, the position tracker, the
// statistics/slippage read models, and the HTTP/WebSocket API surface,
// grounded on the teacher's main.go construction-then-serve shape
// (build collaborators bottom-up, start background loops, serve, wait for
// SIGINT/SIGTERM, shut down in reverse order).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wangqiang-666/ETH-sub009/config"
	"github.com/wangqiang-666/ETH-sub009/internal/apiserver"
	"github.com/wangqiang-666/ETH-sub009/internal/decisionchain"
	"github.com/wangqiang-666/ETH-sub009/internal/gating"
	"github.com/wangqiang-666/ETH-sub009/internal/integration"
	"github.com/wangqiang-666/ETH-sub009/internal/model"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
	"github.com/wangqiang-666/ETH-sub009/internal/pricefeed"
	"github.com/wangqiang-666/ETH-sub009/internal/slippage"
	"github.com/wangqiang-666/ETH-sub009/internal/statistics"
	"github.com/wangqiang-666/ETH-sub009/internal/telemetry"
	"github.com/wangqiang-666/ETH-sub009/internal/tracker"
	"github.com/wangqiang-666/ETH-sub009/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := telemetry.New(cfg.Logging.Level, cfg.Logging.JSON)
	log.Info().Msg("starting trading recommendation engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolveSecrets(ctx, cfg, log)

	store, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build persistence store")
	}
	defer closeStore()

	prices := pricefeed.New(cfg.PriceFeed.ToPriceFeedConfig(), httpPriceFetcher(cfg.PriceFeed.UpstreamURL, log), telemetry.Component(log, "pricefeed"))
	chains := decisionchain.New(store, telemetry.Component(log, "decisionchain"))
	counters := gating.NewCounters()
	engine := gating.New(store, counters, telemetry.Component(log, "gating"))

	trk := tracker.New(cfg.Tracker.ToTrackerConfig(), store, prices, chains, telemetry.Component(log, "tracker"))
	if err := trk.Rehydrate(ctx, []string{cfg.Integration.Symbol}); err != nil {
		log.Fatal().Err(err).Msg("rehydrate active recommendations")
	}

	slippageAnalyzer := slippage.New(store, telemetry.Component(log, "slippage"), cfg.Slippage.ToSlippageConfig())
	trk.SetExecutionSink(newExecutionSink(store, slippageAnalyzer, telemetry.Component(log, "execution")))

	statsSvc := statistics.NewService(store, telemetry.Component(log, "statistics"), cfg.Stats.CacheTTL)

	signals := httpSignalSource(cfg.Integration.SignalSourceURL, telemetry.Component(log, "signals"))
	integ := integration.New(
		cfg.Integration.Symbol,
		cfg.Integration.ToIntegrationConfig(),
		cfg.Gating.ToGatingConfig(),
		signals,
		store,
		engine,
		chains,
		trk,
		statsSvc,
		telemetry.Component(log, "integration"),
	)

	srv := apiserver.New(cfg.Server.ToAPIServerConfig(), apiserver.Deps{
		Store:       store,
		Engine:      engine,
		GatingCfg:   cfg.Gating.ToGatingConfig(),
		Chains:      chains,
		Tracker:     trk,
		Stats:       statsSvc,
		Slippage:    slippageAnalyzer,
		Prices:      prices,
		Integration: integ,
	}, telemetry.Component(log, "apiserver"))

	// The manual-create handler broadcasts admissions itself; this hook
	// covers the periodic AUTO-sourced path so every admission reaches the
	// WebSocket feed regardless of source (spec §4.7 onCreate hooks).
	integ.RegisterOnCreate(func(_ context.Context, rec *model.Recommendation) error {
		srv.BroadcastEvent("RECOMMENDATION_ADMITTED", rec)
		return nil
	})

	trk.Start(ctx)
	integ.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("api server exited unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api server shutdown")
	}
	integ.Stop()
	trk.Stop()

	log.Info().Msg("trading recommendation engine stopped")
}

// resolveSecrets overrides the persistence password and signal-source
// upstream with Vault-resolved values when VaultConfig.Enabled, mirroring
// the teacher's pattern of layering a secret store on top of env-sourced
// config rather than replacing it.
func resolveSecrets(ctx context.Context, cfg *config.Config, log zerolog.Logger) {
	if !cfg.Vault.Enabled {
		return
	}
	client, err := vault.NewClient(cfg.Vault.ToVaultConfig())
	if err != nil {
		log.Warn().Err(err).Msg("vault client init failed, continuing with env-sourced secrets")
		return
	}
	if err := client.Health(ctx); err != nil {
		log.Warn().Err(err).Msg("vault health check failed, continuing with env-sourced secrets")
		return
	}
	if pw, err := client.ResolveSecret(ctx, "db_password"); err == nil {
		cfg.Persistence.Password = pw
	}
	if url, err := client.ResolveSecret(ctx, "signal_source_url"); err == nil {
		cfg.Integration.SignalSourceURL = url
	}
}

// buildStore returns either a PostgreSQL-backed Store (running migrations
// first) or an in-memory one, per PersistenceConfig.UseMemStore.
func buildStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (persistence.Store, func(), error) {
	if cfg.Persistence.UseMemStore {
		log.Info().Msg("using in-memory store")
		return persistence.NewMemStore(), func() {}, nil
	}

	db, err := persistence.NewDB(ctx, cfg.Persistence.ToPersistenceConfig(), telemetry.Component(log, "persistence"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	repo := persistence.NewRepository(db)
	return repo, db.Close, nil
}

// httpPriceFetcher returns a pricefeed.Fetcher reading a ticker price
// endpoint shaped like Binance's `GET /api/v3/ticker/price?symbol=...`
// (spec §1: market-data fetching is an out-of-scope external collaborator,
// so this is a minimal concrete stand-in rather than a production client).
func httpPriceFetcher(baseURL string, log zerolog.Logger) pricefeed.Fetcher {
	client := &http.Client{Timeout: 5 * time.Second}
	return func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		url := fmt.Sprintf("%s?symbol=%s", baseURL, symbol)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return decimal.Zero, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", pricefeed.ErrUpstreamUnavailable, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return decimal.Zero, fmt.Errorf("%w: status %d", pricefeed.ErrUpstreamUnavailable, resp.StatusCode)
		}

		var body struct {
			Price string `json:"price"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return decimal.Zero, fmt.Errorf("decode price response: %w", err)
		}
		price, err := decimal.NewFromString(body.Price)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse price: %w", err)
		}
		return price, nil
	}
}

// httpSignalSourceAdapter satisfies integration.SignalSource by polling an
// upstream recommendation-candidate feed over HTTP. Candidate generation
// itself (technical analysis, ML scoring) is out of scope per spec §1; this
// adapter only deserializes what the upstream already decided.
type httpSignalSourceAdapter struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

func httpSignalSource(url string, log zerolog.Logger) integration.SignalSource {
	return &httpSignalSourceAdapter{url: url, client: &http.Client{Timeout: 5 * time.Second}, log: log}
}

func (a *httpSignalSourceAdapter) NextCandidate(ctx context.Context, symbol string) (gating.Candidate, bool, error) {
	if a.url == "" {
		return gating.Candidate{}, false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?symbol=%s", a.url, symbol), nil)
	if err != nil {
		return gating.Candidate{}, false, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Warn().Err(err).Str("symbol", symbol).Msg("signal source unreachable")
		return gating.Candidate{}, false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return gating.Candidate{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return gating.Candidate{}, false, fmt.Errorf("signal source status %d", resp.StatusCode)
	}

	var c gating.Candidate
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return gating.Candidate{}, false, fmt.Errorf("decode candidate: %w", err)
	}
	return c, true, nil
}

// executionSink fans a tracker fill event out to durable storage and the
// slippage analyzer, implementing tracker.ExecutionSink (spec §4.9 "on each
// closed execution, compute the slippage in bps").
type executionSink struct {
	store    persistence.Store
	slippage *slippage.Analyzer
	log      zerolog.Logger
}

func newExecutionSink(store persistence.Store, analyzer *slippage.Analyzer, log zerolog.Logger) *executionSink {
	return &executionSink{store: store, slippage: analyzer, log: log}
}

func (s *executionSink) RecordExecution(ctx context.Context, exec *model.Execution) {
	if err := s.store.SaveExecution(ctx, exec); err != nil {
		s.log.Error().Err(err).Str("recommendation_id", exec.RecommendationID).Msg("save execution failed")
	}
	if _, err := s.slippage.RecordExecution(ctx, exec); err != nil {
		s.log.Error().Err(err).Str("recommendation_id", exec.RecommendationID).Msg("slippage analysis failed")
	}
}
