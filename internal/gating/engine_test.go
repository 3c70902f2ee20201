package gating

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
)

func newTestEngine() (*Engine, *persistence.MemStore) {
	store := persistence.NewMemStore()
	engine := New(store, NewCounters(), zerolog.Nop())
	return engine, store
}

func baseCandidate() Candidate {
	return Candidate{
		Symbol:          "ETH-USDT-SWAP",
		Direction:       model.DirectionLong,
		StrategyType:    "trend",
		Leverage:        3,
		EntryPrice:      2000,
		CurrentPrice:    2000,
		TakeProfitPrice: 2056,
		StopLossPrice:   1960,
		Confidence:      0.8,
	}
}

func TestEvaluate_SchemaRejectionStopsChain(t *testing.T) {
	engine, _ := newTestEngine()
	c := baseCandidate()
	c.EntryPrice = -1

	result, err := engine.Evaluate(context.Background(), c, DefaultConfig())
	require.NoError(t, err)
	assert.False(t, result.Admitted, "expected rejection")
	assert.Equal(t, CodeInvalidRequestBody, result.Rejection.Code)
	assert.Len(t, result.Steps, 1, "expected evaluation to stop after rule 1")
}

func TestEvaluate_InvalidPriceOrderingRejected(t *testing.T) {
	engine, _ := newTestEngine()
	c := baseCandidate()
	c.StopLossPrice = 2100 // above entry_price for a LONG: violates sl < entry < tp

	result, err := engine.Evaluate(context.Background(), c, DefaultConfig())
	require.NoError(t, err)
	assert.False(t, result.Admitted, "expected rejection")
	assert.Equal(t, CodeInvalidPriceOrdering, result.Rejection.Code)
	assert.Len(t, result.Steps, 1, "expected evaluation to stop after rule 1")
}

func TestEvaluate_CooldownSameDirection(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.CooldownSameDirection = 15 * time.Minute

	existing := baseCandidate().ToRecommendation("rec-1")
	existing.CreatedAt = time.Now().Add(-1 * time.Minute)
	require.NoError(t, store.SaveRecommendation(ctx, existing))

	result, err := engine.Evaluate(ctx, baseCandidate(), cfg)
	require.NoError(t, err)
	require.False(t, result.Admitted, "expected cooldown rejection")
	assert.Equal(t, CodeCooldownSameDirection, result.Rejection.Code)
	if assert.NotNil(t, result.Rejection.Detail.RemainingMs) {
		assert.Greater(t, *result.Rejection.Detail.RemainingMs, int64(0))
	}
}

func TestEvaluate_DuplicateSuppression(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.CooldownSameDirection = 0
	cfg.CooldownOpposite = 0
	cfg.CooldownGlobal = 0
	cfg.HourlyCapTotal = 0
	cfg.HourlyCapPerDirection = 0

	existing := baseCandidate().ToRecommendation("rec-dup")
	existing.EntryPrice = 2000
	existing.CreatedAt = time.Now().Add(-5 * time.Minute)
	require.NoError(t, store.SaveRecommendation(ctx, existing))

	// 5 bps diff: 2000 -> 2001 is well within the 10 bps threshold.
	dup := baseCandidate()
	dup.EntryPrice = 2001
	result, err := engine.Evaluate(ctx, dup, cfg)
	require.NoError(t, err)
	require.NotNil(t, result.Rejection)
	assert.Equal(t, CodeDuplicateRecommendation, result.Rejection.Code)

	// 25 bps diff clears the threshold.
	clear := baseCandidate()
	clear.EntryPrice = 2005
	result, err = engine.Evaluate(ctx, clear, cfg)
	require.NoError(t, err)
	assert.True(t, result.Admitted, "expected admission, got rejection %+v", result.Rejection)
}

func TestEvaluate_ExposureCap(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.CooldownSameDirection = 0
	cfg.CooldownOpposite = 0
	cfg.CooldownGlobal = 0
	cfg.HourlyCapTotal = 0
	cfg.HourlyCapPerDirection = 0
	cfg.DuplicateBpsThreshold = 0
	cfg.ExposureCapTotal = 3
	cfg.ExposureCapPerDirection = 0

	for i := 0; i < 3; i++ {
		rec := baseCandidate().ToRecommendation(string(rune('a' + i)))
		rec.EntryPrice = 2000 + float64(i)*1000 // keep far apart to dodge dup suppression
		rec.StopLossPrice = rec.EntryPrice - 40
		rec.TakeProfitPrice = rec.EntryPrice + 56
		rec.CreatedAt = time.Now()
		require.NoError(t, store.SaveRecommendation(ctx, rec))
	}

	fourth := baseCandidate()
	fourth.EntryPrice = 9999
	fourth.StopLossPrice = 9959
	fourth.TakeProfitPrice = 10055
	result, err := engine.Evaluate(ctx, fourth, cfg)
	require.NoError(t, err)
	require.NotNil(t, result.Rejection)
	assert.Equal(t, CodeExposureCap, result.Rejection.Code)
	require.NotNil(t, result.Rejection.Detail.CurrentTotal)
	require.NotNil(t, result.Rejection.Detail.TotalCap)
	assert.Equal(t, 3, *result.Rejection.Detail.CurrentTotal)
	assert.Equal(t, 3, *result.Rejection.Detail.TotalCap)
}

func TestEvaluate_BypassCooldown(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()
	cfg := DefaultConfig()

	existing := baseCandidate().ToRecommendation("rec-1")
	existing.CreatedAt = time.Now()
	require.NoError(t, store.SaveRecommendation(ctx, existing))

	candidate := baseCandidate()
	candidate.EntryPrice = 2500
	candidate.StopLossPrice = 2460
	candidate.TakeProfitPrice = 2556
	candidate.BypassCooldown = true

	result, err := engine.Evaluate(ctx, candidate, cfg)
	require.NoError(t, err)
	assert.True(t, result.Admitted, "expected bypassCooldown to admit despite recent recommendation, got %+v", result.Rejection)
}
