package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
)

func newTestSingle(t *testing.T, w *fakeWriter) *Single {
	t.Helper()
	s, err := NewSingle(newTestEnv(w, &testTimer{}), "single-1", "BTCUSDT", domain.SingleParams{
		Side:             domain.SideBuy,
		Kind:             domain.KindLimit,
		QtySats:          100000000,
		LimitPriceMicros: 64000000000,
	})
	if err != nil {
		t.Fatalf("NewSingle failed: %v", err)
	}
	return s
}

func TestSingleFillCompletes(t *testing.T) {
	w := &fakeWriter{}
	s := newTestSingle(t, w)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(w.submits) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(w.submits))
	}

	s.OnOrderUpdate(ctx, w.update(s.clientID, domain.StatusFilled))
	if s.Status() != domain.StrategyCompleted {
		t.Errorf("expected COMPLETED, got %s", s.Status())
	}
}

func TestSingleRejectFails(t *testing.T) {
	w := &fakeWriter{}
	s := newTestSingle(t, w)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	rejected := w.update(s.clientID, domain.StatusRejected)
	rejected.RejectReason = "price out of bounds"
	s.OnOrderUpdate(ctx, rejected)
	if s.Status() != domain.StrategyFailed {
		t.Errorf("expected FAILED, got %s", s.Status())
	}
	if s.Record().FailCause == "" {
		t.Error("expected a fail cause")
	}
}

func TestSingleCancelFlow(t *testing.T) {
	w := &fakeWriter{}
	s := newTestSingle(t, w)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.Cancel(ctx)
	if s.Status() != domain.StrategyCompleting {
		t.Fatalf("expected COMPLETING, got %s", s.Status())
	}
	s.OnOrderUpdate(ctx, w.update(s.clientID, domain.StatusCanceled))
	if s.Status() != domain.StrategyCanceled {
		t.Errorf("expected CANCELED, got %s", s.Status())
	}
}

func TestSingleInvalidParams(t *testing.T) {
	env := newTestEnv(&fakeWriter{}, &testTimer{})
	_, err := NewSingle(env, "single-x", "BTCUSDT", domain.SingleParams{
		Side: domain.SideBuy, Kind: domain.KindLimit, QtySats: 100000000,
	})
	if !errors.Is(err, domain.ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters for limit without price, got %v", err)
	}
}
