package slippage

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
	"github.com/wangqiang-666/ETH-sub009/internal/persistence"
)

func newTestAnalyzer() *Analyzer {
	store := persistence.NewMemStore()
	return New(store, zerolog.Nop(), Config{
		WindowSize:      50,
		KSigma:          3,
		MinThresholdBps: 1,
		MaxThresholdBps: 1000,
		AdjustDebounce:  time.Minute,
	})
}

func execAt(symbol string, slippageBps float64, when time.Time) *model.Execution {
	return &model.Execution{
		ID:            "exec-" + when.Format(time.RFC3339Nano),
		Symbol:        symbol,
		Direction:     model.DirectionLong,
		EventType:     model.EventOpen,
		SlippageBps:   slippageBps,
		FillTimestamp: when,
	}
}

func TestRecordExecution_AccumulatesStats(t *testing.T) {
	a := newTestAnalyzer()
	ctx := context.Background()
	base := time.Now()

	for i, bps := range []float64{2, 4, 6, 8, 10} {
		if _, err := a.RecordExecution(ctx, execAt("ETHUSDT", bps, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("record execution: %v", err)
		}
	}

	stats, ok := a.Stats("ETHUSDT")
	if !ok {
		t.Fatal("expected stats to exist for ETHUSDT")
	}
	if stats.SampleCount != 5 {
		t.Fatalf("expected 5 samples, got %d", stats.SampleCount)
	}
	if stats.AvgBps != 6 {
		t.Fatalf("expected avg 6, got %v", stats.AvgBps)
	}
}

func TestRecordExecution_AlertsAboveInitialMaxThreshold(t *testing.T) {
	a := newTestAnalyzer()
	a.cfg.MaxThresholdBps = 20
	ctx := context.Background()

	alert, err := a.RecordExecution(ctx, execAt("ETHUSDT", 5, time.Now()))
	if err != nil {
		t.Fatalf("record execution: %v", err)
	}
	if alert != nil {
		t.Fatalf("did not expect an alert for slippage below threshold, got %+v", alert)
	}

	alert, err = a.RecordExecution(ctx, execAt("ETHUSDT", 25, time.Now()))
	if err != nil {
		t.Fatalf("record execution: %v", err)
	}
	if alert == nil {
		t.Fatal("expected an alert for slippage above threshold")
	}
	if alert.Severity != model.AlertWarning {
		t.Fatalf("expected WARNING severity, got %s", alert.Severity)
	}
}

func TestRecordExecution_CriticalSeverityAboveOneAndHalfThreshold(t *testing.T) {
	a := newTestAnalyzer()
	a.cfg.MaxThresholdBps = 10
	ctx := context.Background()

	alert, err := a.RecordExecution(ctx, execAt("ETHUSDT", 20, time.Now()))
	if err != nil {
		t.Fatalf("record execution: %v", err)
	}
	if alert == nil || alert.Severity != model.AlertCritical {
		t.Fatalf("expected CRITICAL severity, got %+v", alert)
	}
}

func TestThresholdAdjustment_RespectsDebounceAndClamp(t *testing.T) {
	a := newTestAnalyzer()
	a.cfg.AdjustDebounce = 0
	a.cfg.MaxThresholdBps = 1000
	a.cfg.MinThresholdBps = 1
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 20; i++ {
		if _, err := a.RecordExecution(ctx, execAt("ETHUSDT", 5, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("record execution: %v", err)
		}
	}

	th := a.Threshold("ETHUSDT")
	if th.ThresholdBps <= 0 || th.ThresholdBps > a.cfg.MaxThresholdBps {
		t.Fatalf("expected threshold within clamp bounds, got %v", th.ThresholdBps)
	}
}
