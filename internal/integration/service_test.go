package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangqiang-666/ETH-sub009/internal/decisionchain"
	"github.com/wangqiang-666/ETH-sub009/internal/gating"
	"github.com/wangqiang-666/ETH-sub009/internal/model"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
	"github.com/wangqiang-666/ETH-sub009/internal/tracker"
)

func newTestService() *Service {
	store := persistence.NewMemStore()
	chains := decisionchain.New(store, zerolog.Nop())
	engine := gating.New(store, gating.NewCounters(), zerolog.Nop())
	trk := tracker.New(tracker.Config{}, store, nil, chains, zerolog.Nop())
	return New("ETH-USDT-SWAP", Config{}, gating.DefaultConfig(), nil, store, engine, chains, trk, nil, zerolog.Nop())
}

func baseCandidate() gating.Candidate {
	return gating.Candidate{
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

// TestAdmit_OnCreateHookFires asserts spec §8's testable property: exactly
// one onCreate hook fires per admission when the loop-guard is not set.
func TestAdmit_OnCreateHookFires(t *testing.T) {
	svc := newTestService()

	var mu sync.Mutex
	var fired []string
	done := make(chan struct{}, 1)
	svc.RegisterOnCreate(func(_ context.Context, rec *model.Recommendation) error {
		mu.Lock()
		fired = append(fired, rec.ID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	outcome, err := svc.Admit(context.Background(), baseCandidate(), model.SourceManual, false)
	require.NoError(t, err)
	require.True(t, outcome.Admitted)

	<-done // hooks run in their own goroutine (spec §4.7 "asynchronously")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{outcome.Recommendation.ID}, fired, "expected exactly one hook invocation")
}

// TestAdmit_LoopGuardSuppressesHook asserts the x-loop-guard path: no
// onCreate hook fires when suppressHook is true.
func TestAdmit_LoopGuardSuppressesHook(t *testing.T) {
	svc := newTestService()

	var mu sync.Mutex
	fired := 0
	svc.RegisterOnCreate(func(_ context.Context, rec *model.Recommendation) error {
		mu.Lock()
		fired++
		mu.Unlock()
		return nil
	})

	outcome, err := svc.Admit(context.Background(), baseCandidate(), model.SourceManual, true)
	require.NoError(t, err)
	require.True(t, outcome.Admitted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, fired, "loop-guard should suppress the onCreate hook")
}
