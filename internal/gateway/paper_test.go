package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

func newTestPaper() (*Paper, chan event.Event) {
	inbox := make(chan event.Event, 64)
	var seq uint64
	return NewPaper(inbox, &seq), inbox
}

func nextUpdate(t *testing.T, inbox chan event.Event) event.OrderUpdateEvent {
	t.Helper()
	select {
	case ev := <-inbox:
		up, ok := ev.(event.OrderUpdateEvent)
		if !ok {
			t.Fatalf("expected OrderUpdateEvent, got %T", ev)
		}
		return up
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event.OrderUpdateEvent{}
	}
}

func limitOrder(clientID string, side domain.Side, price quant.PriceMicros) domain.Order {
	return domain.Order{
		ClientID:         clientID,
		StrategyID:       "strat-1",
		Symbol:           "BTCUSDT",
		Side:             side,
		Kind:             domain.KindLimit,
		QtySats:          100000000,
		LimitPriceMicros: price,
	}
}

func TestPaperMarketOrderFillsAtLastPrice(t *testing.T) {
	p, inbox := newTestPaper()
	p.UpdatePrice("BTCUSDT", 65000000000)

	o := limitOrder("mkt-1", domain.SideBuy, 0)
	o.Kind = domain.KindMarket
	o.LimitPriceMicros = 0
	if err := p.SubmitOrder(context.Background(), o); err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}

	up := nextUpdate(t, inbox)
	if up.ClientID != "mkt-1" || up.Status != domain.StatusFilled {
		t.Errorf("unexpected fill event: %+v", up)
	}
	if up.FilledDeltaSats != 100000000 {
		t.Errorf("filled delta = %d, want full qty", up.FilledDeltaSats)
	}
}

func TestPaperMarketOrderWithoutPrice(t *testing.T) {
	p, _ := newTestPaper()

	o := limitOrder("mkt-1", domain.SideBuy, 0)
	o.Kind = domain.KindMarket
	err := p.SubmitOrder(context.Background(), o)
	if err == nil {
		t.Fatal("expected error without a market price")
	}
	if ge, ok := domain.AsGatewayError(err); !ok || ge.Transient {
		t.Errorf("expected non-transient gateway error, got %v", err)
	}
}

func TestPaperDuplicateClientID(t *testing.T) {
	p, _ := newTestPaper()
	ctx := context.Background()

	o := limitOrder("dup-1", domain.SideBuy, 64000000000)
	if err := p.SubmitOrder(ctx, o); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	err := p.SubmitOrder(ctx, o)
	ge, ok := domain.AsGatewayError(err)
	if !ok || !ge.Duplicate {
		t.Errorf("expected duplicate rejection, got %v", err)
	}

	// Exactly one exchange-side order exists.
	snap, err := p.QueryOrder(ctx, "dup-1", "BTCUSDT")
	if err != nil {
		t.Fatalf("QueryOrder failed: %v", err)
	}
	if snap.Status != domain.StatusOpen {
		t.Errorf("unexpected status: %s", snap.Status)
	}
}

func TestPaperLimitFillsOnCrossing(t *testing.T) {
	p, inbox := newTestPaper()
	ctx := context.Background()

	if err := p.SubmitOrder(ctx, limitOrder("buy-1", domain.SideBuy, 64000000000)); err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}

	// Price above the buy limit: still resting.
	p.UpdatePrice("BTCUSDT", 65000000000)
	select {
	case ev := <-inbox:
		t.Fatalf("unexpected event before crossing: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	// Crossing fills the full quantity.
	p.UpdatePrice("BTCUSDT", 63900000000)
	up := nextUpdate(t, inbox)
	if up.ClientID != "buy-1" || up.Status != domain.StatusFilled {
		t.Errorf("unexpected event: %+v", up)
	}
}

func TestPaperSellLimitFillsAtOrAbove(t *testing.T) {
	p, inbox := newTestPaper()
	ctx := context.Background()

	if err := p.SubmitOrder(ctx, limitOrder("sell-1", domain.SideSell, 66000000000)); err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}

	p.UpdatePrice("BTCUSDT", 66000000000)
	up := nextUpdate(t, inbox)
	if up.ClientID != "sell-1" || up.Status != domain.StatusFilled {
		t.Errorf("unexpected event: %+v", up)
	}
}

func TestPaperStopLimitTriggersThenFills(t *testing.T) {
	p, inbox := newTestPaper()
	ctx := context.Background()

	stop := domain.Order{
		ClientID:         "stop-1",
		StrategyID:       "strat-1",
		Symbol:           "BTCUSDT",
		Side:             domain.SideSell,
		Kind:             domain.KindStopLimit,
		QtySats:          100000000,
		StopPriceMicros:  60000000000,
		LimitPriceMicros: 59900000000,
	}
	if err := p.SubmitOrder(ctx, stop); err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}

	// Above the trigger: untouched.
	p.UpdatePrice("BTCUSDT", 61000000000)
	select {
	case ev := <-inbox:
		t.Fatalf("stop acted before trigger: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	// Crossing the trigger arms the limit leg.
	p.UpdatePrice("BTCUSDT", 59950000000)
	select {
	case ev := <-inbox:
		t.Fatalf("stop filled on the trigger tick: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	// The next tick at or above the limit price executes it.
	p.UpdatePrice("BTCUSDT", 59900000000)
	up := nextUpdate(t, inbox)
	if up.ClientID != "stop-1" || up.Status != domain.StatusFilled {
		t.Errorf("unexpected event: %+v", up)
	}
}

func TestPaperCancelOutcomes(t *testing.T) {
	p, inbox := newTestPaper()
	ctx := context.Background()

	if out, _ := p.CancelOrder(ctx, "missing", "BTCUSDT"); out != domain.CancelNotFound {
		t.Errorf("expected NOT_FOUND, got %s", out)
	}

	if err := p.SubmitOrder(ctx, limitOrder("c-1", domain.SideBuy, 64000000000)); err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	out, err := p.CancelOrder(ctx, "c-1", "BTCUSDT")
	if err != nil || out != domain.CancelDone {
		t.Fatalf("expected CANCELED, got %s, %v", out, err)
	}
	up := nextUpdate(t, inbox)
	if up.Status != domain.StatusCanceled {
		t.Errorf("expected CANCELED event, got %+v", up)
	}

	if out, _ = p.CancelOrder(ctx, "c-1", "BTCUSDT"); out != domain.CancelAlreadyTerminal {
		t.Errorf("expected ALREADY_TERMINAL, got %s", out)
	}
}

func TestPaperCanceledOrderNeverFills(t *testing.T) {
	p, inbox := newTestPaper()
	ctx := context.Background()

	if err := p.SubmitOrder(ctx, limitOrder("c-1", domain.SideBuy, 64000000000)); err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if _, err := p.CancelOrder(ctx, "c-1", "BTCUSDT"); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	nextUpdate(t, inbox) // CANCELED

	p.UpdatePrice("BTCUSDT", 60000000000)
	select {
	case ev := <-inbox:
		t.Fatalf("canceled order produced event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
