package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

func TestMemStore_SaveAndGetRecommendation(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	rec := &model.Recommendation{
		ID:              "rec-1",
		Symbol:          "ETH-USDT-SWAP",
		Direction:       model.DirectionLong,
		StrategyType:    "trend",
		Leverage:        5,
		EntryPrice:      3000,
		CurrentPrice:    3000,
		TakeProfitPrice: 3100,
		StopLossPrice:   2950,
		Confidence:      0.8,
		Status:          model.StatusActive,
		CreatedAt:       time.Now(),
	}

	if err := store.SaveRecommendation(ctx, rec); err != nil {
		t.Fatalf("SaveRecommendation: %v", err)
	}

	got, err := store.GetRecommendation(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetRecommendation: %v", err)
	}
	if got.Symbol != rec.Symbol || got.Status != model.StatusActive {
		t.Fatalf("unexpected recommendation round-trip: %+v", got)
	}

	active, err := store.ListActiveRecommendations(ctx, "ETH-USDT-SWAP")
	if err != nil {
		t.Fatalf("ListActiveRecommendations: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active recommendation, got %d", len(active))
	}
}

func TestMemStore_UpdateRecommendation_NotFound(t *testing.T) {
	store := NewMemStore()
	err := store.UpdateRecommendation(context.Background(), &model.Recommendation{ID: "missing"})
	if err == nil {
		t.Fatal("expected error updating unknown recommendation")
	}
}

func TestMemStore_DecisionChainLifecycle(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	chain := &model.DecisionChain{
		ChainID:       "chain-1",
		Symbol:        "ETH-USDT-SWAP",
		Direction:     model.DirectionLong,
		Source:        model.SourceAuto,
		StartedAt:     time.Now(),
		FinalDecision: model.DecisionPending,
	}
	if err := store.SaveDecisionChain(ctx, chain); err != nil {
		t.Fatalf("SaveDecisionChain: %v", err)
	}

	step := model.DecisionStep{
		Index:     0,
		Stage:     model.StageGatingCheck,
		Decision:  model.DecisionApproved,
		Reason:    "cooldown clear",
		Timestamp: time.Now(),
	}
	if err := store.AppendDecisionStep(ctx, "chain-1", step); err != nil {
		t.Fatalf("AppendDecisionStep: %v", err)
	}

	now := time.Now()
	chain.FinalizedAt = &now
	chain.FinalDecision = model.DecisionApproved
	if err := store.FinalizeDecisionChain(ctx, chain); err != nil {
		t.Fatalf("FinalizeDecisionChain: %v", err)
	}

	got, err := store.GetDecisionChain(ctx, "chain-1")
	if err != nil {
		t.Fatalf("GetDecisionChain: %v", err)
	}
	if len(got.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(got.Steps))
	}
	if got.FinalDecision != model.DecisionApproved {
		t.Fatalf("expected APPROVED final decision, got %s", got.FinalDecision)
	}
}
