package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

func newTestTWAP(t *testing.T, w *fakeWriter, timer *testTimer, total quant.QtySats, slices int) *TWAP {
	t.Helper()
	tw, err := NewTWAP(newTestEnv(w, timer), "twap-1", "BTCUSDT", domain.TWAPParams{
		Side:           domain.SideBuy,
		TotalQtySats:   total,
		SliceCount:     slices,
		IntervalMicros: 60_000_000,
		ChildKind:      domain.KindMarket,
	})
	if err != nil {
		t.Fatalf("NewTWAP failed: %v", err)
	}
	return tw
}

func TestTWAPParamValidation(t *testing.T) {
	env := newTestEnv(&fakeWriter{}, &testTimer{})

	tests := []struct {
		name   string
		params domain.TWAPParams
	}{
		{"zero slices", domain.TWAPParams{Side: domain.SideBuy, TotalQtySats: 1000000000, IntervalMicros: 1000, ChildKind: domain.KindMarket}},
		{"zero interval", domain.TWAPParams{Side: domain.SideBuy, TotalQtySats: 1000000000, SliceCount: 5, ChildKind: domain.KindMarket}},
		{"stop child", domain.TWAPParams{Side: domain.SideBuy, TotalQtySats: 1000000000, SliceCount: 5, IntervalMicros: 1000, ChildKind: domain.KindStopLimit}},
		{"limit child without price", domain.TWAPParams{Side: domain.SideBuy, TotalQtySats: 1000000000, SliceCount: 5, IntervalMicros: 1000, ChildKind: domain.KindLimit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTWAP(env, "twap-x", "BTCUSDT", tt.params); !errors.Is(err, domain.ErrInvalidParameters) {
				t.Errorf("expected ErrInvalidParameters, got %v", err)
			}
		})
	}
}

func TestTWAPCompletesWithoutRejections(t *testing.T) {
	w := &fakeWriter{}
	timer := &testTimer{}
	tw := newTestTWAP(t, w, timer, 1000000000, 5)
	ctx := context.Background()

	if err := tw.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var filled quant.QtySats
	for i := 0; i < 5; i++ {
		child := w.lastSubmit()
		if child.QtySats != 200000000 {
			t.Errorf("slice %d qty = %d, want 200000000", i+1, child.QtySats)
		}
		filled += child.QtySats
		tw.OnOrderUpdate(ctx, w.update(child.ClientID, domain.StatusFilled))
		if i < 4 {
			tw.OnTimer(ctx)
		}
	}

	if tw.Status() != domain.StrategyCompleted {
		t.Errorf("expected COMPLETED, got %s", tw.Status())
	}
	if filled != 1000000000 {
		t.Errorf("sum of child fills = %d, want total quantity", filled)
	}
	if tw.remainingSlices != 0 {
		t.Errorf("remainingSlices = %d, want 0", tw.remainingSlices)
	}
}

func TestTWAPRetriesRejectedSlice(t *testing.T) {
	w := &fakeWriter{}
	timer := &testTimer{}
	tw := newTestTWAP(t, w, timer, 1000000000, 5)
	ctx := context.Background()

	if err := tw.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Slices 1 and 2 fill.
	for i := 0; i < 2; i++ {
		tw.OnOrderUpdate(ctx, w.update(w.lastSubmit().ClientID, domain.StatusFilled))
		tw.OnTimer(ctx)
	}

	// Slice 3 is rejected twice; the schedule does not advance.
	for i := 0; i < 2; i++ {
		tw.OnOrderUpdate(ctx, w.update(w.lastSubmit().ClientID, domain.StatusRejected))
		if tw.Status() != domain.StrategyActive {
			t.Fatalf("strategy should stay active after %d rejection(s), got %s", i+1, tw.Status())
		}
		tw.OnTimer(ctx)
	}
	if tw.remainingSlices != 3 {
		t.Errorf("rejections must not consume slices: remainingSlices = %d, want 3", tw.remainingSlices)
	}

	// The retried slice and the remaining two fill.
	for i := 0; i < 3; i++ {
		tw.OnOrderUpdate(ctx, w.update(w.lastSubmit().ClientID, domain.StatusFilled))
		if i < 2 {
			tw.OnTimer(ctx)
		}
	}

	if tw.Status() != domain.StrategyCompleted {
		t.Errorf("expected COMPLETED, got %s", tw.Status())
	}
	if tw.remaining != 0 {
		t.Errorf("remaining = %d, want 0", tw.remaining)
	}
	if tw.rejections != 2 {
		t.Errorf("rejections = %d, want 2", tw.rejections)
	}
	if got := len(w.submits) - tw.rejections; got != 5 {
		t.Errorf("successful submissions = %d, want 5", got)
	}
}

func TestTWAPFailsAfterConsecutiveRejections(t *testing.T) {
	w := &fakeWriter{}
	timer := &testTimer{}
	tw := newTestTWAP(t, w, timer, 1000000000, 5)
	ctx := context.Background()

	if err := tw.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < maxConsecutiveRejects; i++ {
		tw.OnOrderUpdate(ctx, w.update(w.lastSubmit().ClientID, domain.StatusRejected))
		if i < maxConsecutiveRejects-1 {
			tw.OnTimer(ctx)
		}
	}

	if tw.Status() != domain.StrategyFailed {
		t.Errorf("expected FAILED, got %s", tw.Status())
	}
	rec := tw.Record()
	if rec.FailCause == "" {
		t.Error("expected a fail cause reporting the unexecuted remainder")
	}
}

func TestTWAPLaterSlicesAbsorbShortfall(t *testing.T) {
	w := &fakeWriter{}
	timer := &testTimer{}
	tw := newTestTWAP(t, w, timer, 1000000000, 4)
	ctx := context.Background()

	if err := tw.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// First slice (250000000) only half-fills before being reclaimed.
	first := w.lastSubmit()
	half := first
	half.Status = domain.StatusCanceled
	half.FilledQtySats = 125000000
	tw.OnOrderUpdate(ctx, half)

	// Next slice must spread the shortfall: 875000000 / 3.
	tw.OnTimer(ctx)
	if got := w.lastSubmit().QtySats; got != 291666666 {
		t.Errorf("second slice qty = %d, want 291666666", got)
	}
}

func TestTWAPReclaimsRestingChildOnTick(t *testing.T) {
	w := &fakeWriter{}
	timer := &testTimer{}
	env := newTestEnv(w, timer)
	tw, err := NewTWAP(env, "twap-1", "BTCUSDT", domain.TWAPParams{
		Side:             domain.SideBuy,
		TotalQtySats:     1000000000,
		SliceCount:       5,
		IntervalMicros:   60_000_000,
		ChildKind:        domain.KindLimit,
		LimitPriceMicros: 64000000000,
	})
	if err != nil {
		t.Fatalf("NewTWAP failed: %v", err)
	}
	ctx := context.Background()

	if err := tw.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	child := w.lastSubmit()

	// The child is still resting at the next tick: it is cancelled and
	// the next slice waits for the terminal fill count.
	tw.OnTimer(ctx)
	if len(w.cancels) != 1 || w.cancels[0] != child.ClientID {
		t.Fatalf("expected cancel of resting child, got %v", w.cancels)
	}
	if len(w.submits) != 1 {
		t.Fatalf("slice must not be submitted before the old child resolves")
	}

	canceled := w.update(child.ClientID, domain.StatusCanceled)
	canceled.FilledQtySats = 50000000
	tw.OnOrderUpdate(ctx, canceled)
	if len(w.submits) != 2 {
		t.Fatalf("expected deferred slice submission, got %d submits", len(w.submits))
	}

	// 950000000 remaining over the 4 slices left.
	if got := w.lastSubmit().QtySats; got != 237500000 {
		t.Errorf("deferred slice qty = %d, want 237500000", got)
	}
}

func TestTWAPCancel(t *testing.T) {
	w := &fakeWriter{}
	timer := &testTimer{}
	tw := newTestTWAP(t, w, timer, 1000000000, 5)
	ctx := context.Background()

	if err := tw.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	child := w.lastSubmit()

	tw.Cancel(ctx)
	if tw.Status() != domain.StrategyCompleting {
		t.Fatalf("expected COMPLETING, got %s", tw.Status())
	}
	if len(w.cancels) != 1 {
		t.Fatalf("expected child cancel, got %v", w.cancels)
	}

	tw.OnOrderUpdate(ctx, w.update(child.ClientID, domain.StatusCanceled))
	if tw.Status() != domain.StrategyCanceled {
		t.Errorf("expected CANCELED, got %s", tw.Status())
	}

	// Timers that fire after teardown are ignored.
	tw.OnTimer(ctx)
	if len(w.submits) != 1 {
		t.Errorf("no slices may be placed after cancel, got %d submits", len(w.submits))
	}
}

func TestTWAPRestoreRoundTrip(t *testing.T) {
	w := &fakeWriter{}
	timer := &testTimer{}
	tw := newTestTWAP(t, w, timer, 1000000000, 5)
	ctx := context.Background()

	if err := tw.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tw.OnOrderUpdate(ctx, w.update(w.lastSubmit().ClientID, domain.StatusFilled))

	restored, err := RestoreTWAP(newTestEnv(w, timer), tw.Record())
	if err != nil {
		t.Fatalf("RestoreTWAP failed: %v", err)
	}
	if restored.remaining != tw.remaining || restored.remainingSlices != tw.remainingSlices {
		t.Errorf("restored state mismatch: %d/%d vs %d/%d",
			restored.remaining, restored.remainingSlices, tw.remaining, tw.remainingSlices)
	}
}
