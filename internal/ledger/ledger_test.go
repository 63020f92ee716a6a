package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/internal/infra"
	"github.com/makwana23-Harshil/binance-bot/internal/storage"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// fakeGateway records calls and returns scripted results.
type fakeGateway struct {
	mu        sync.Mutex
	submitted []domain.Order
	submitErr error
	cancelOut domain.CancelOutcome
	cancelErr error
	queries   map[string]domain.OrderSnapshot
	queryErr  error
}

func (g *fakeGateway) SubmitOrder(ctx context.Context, o domain.Order) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitted = append(g.submitted, o)
	return g.submitErr
}

func (g *fakeGateway) CancelOrder(ctx context.Context, clientID, symbol string) (domain.CancelOutcome, error) {
	return g.cancelOut, g.cancelErr
}

func (g *fakeGateway) QueryOrder(ctx context.Context, clientID, symbol string) (domain.OrderSnapshot, error) {
	if g.queryErr != nil {
		return domain.OrderSnapshot{}, g.queryErr
	}
	snap, ok := g.queries[clientID]
	if !ok {
		return domain.OrderSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (g *fakeGateway) Close() error { return nil }

func (g *fakeGateway) submitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submitted)
}

type fixture struct {
	ledger  *Ledger
	gateway *fakeGateway
	inbox   chan event.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	gw := &fakeGateway{cancelOut: domain.CancelDone}
	retry := infra.NewRetryPolicy(
		infra.NewRateLimiter(100, 100),
		infra.DefaultCircuitBreaker("test"),
		3,
	).WithBackoff(func(int) time.Duration { return 0 })

	inbox := make(chan event.Event, 64)
	var seq uint64
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	l := New(store, gw, retry, inbox, &seq, logger, 2*time.Second, 2*time.Second)
	return &fixture{ledger: l, gateway: gw, inbox: inbox}
}

func (f *fixture) waitEvent(t *testing.T) event.Event {
	t.Helper()
	select {
	case ev := <-f.inbox:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func testOrder() domain.Order {
	return domain.Order{
		StrategyID:       "strat-1",
		Symbol:           "BTCUSDT",
		Side:             domain.SideBuy,
		Kind:             domain.KindLimit,
		QtySats:          100000000,
		LimitPriceMicros: 65000000000,
	}
}

func TestSubmitAssignsClientID(t *testing.T) {
	f := newFixture(t)

	id, err := f.ledger.Submit(context.Background(), testOrder())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty client id")
	}

	ev := f.waitEvent(t)
	up, ok := ev.(event.OrderUpdateEvent)
	if !ok {
		t.Fatalf("expected OrderUpdateEvent, got %T", ev)
	}
	if up.ClientID != id || up.Status != domain.StatusOpen {
		t.Errorf("unexpected update: %+v", up)
	}
	if f.gateway.submitCount() != 1 {
		t.Errorf("expected 1 gateway submission, got %d", f.gateway.submitCount())
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := testOrder()
	o.ClientID = "fixed-id"

	id1, err := f.ledger.Submit(ctx, o)
	if err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	f.waitEvent(t)

	id2, err := f.ledger.Submit(ctx, o)
	if err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %s vs %s", id1, id2)
	}

	// The duplicate must not reach the gateway.
	if n := f.gateway.submitCount(); n != 1 {
		t.Errorf("expected 1 gateway submission, got %d", n)
	}
}

func TestSubmitValidatesOrder(t *testing.T) {
	f := newFixture(t)

	o := testOrder()
	o.QtySats = 0
	if _, err := f.ledger.Submit(context.Background(), o); !errors.Is(err, domain.ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters, got %v", err)
	}
}

func TestSubmitRejectionPostsRejectedEvent(t *testing.T) {
	f := newFixture(t)
	f.gateway.submitErr = &domain.GatewayError{Code: -1102, Msg: "bad param"}

	id, err := f.ledger.Submit(context.Background(), testOrder())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	ev := f.waitEvent(t)
	up, ok := ev.(event.OrderUpdateEvent)
	if !ok {
		t.Fatalf("expected OrderUpdateEvent, got %T", ev)
	}
	if up.ClientID != id || up.Status != domain.StatusRejected {
		t.Errorf("unexpected update: %+v", up)
	}
	if up.Reason == "" {
		t.Error("expected a reject reason")
	}
}

func TestSubmitDuplicateAtExchangeIsSuccess(t *testing.T) {
	f := newFixture(t)
	f.gateway.submitErr = &domain.GatewayError{Code: -4116, Msg: "duplicated", Duplicate: true}

	id, err := f.ledger.Submit(context.Background(), testOrder())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	ev := f.waitEvent(t)
	up := ev.(event.OrderUpdateEvent)
	if up.ClientID != id || up.Status != domain.StatusOpen {
		t.Errorf("duplicate submit should resolve OPEN, got %+v", up)
	}
}

func TestCancelLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.ledger.Submit(ctx, testOrder())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	open := f.waitEvent(t).(event.OrderUpdateEvent)
	if _, err := f.ledger.Apply(ctx, open); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if err := f.ledger.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	ev := f.waitEvent(t)
	res, ok := ev.(event.CancelResultEvent)
	if !ok {
		t.Fatalf("expected CancelResultEvent, got %T", ev)
	}
	if res.ClientID != id || res.Outcome != domain.CancelDone {
		t.Errorf("unexpected cancel result: %+v", res)
	}
}

func TestCancelTerminalOrderIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.ledger.Submit(ctx, testOrder())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	open := f.waitEvent(t).(event.OrderUpdateEvent)
	if _, err := f.ledger.Apply(ctx, open); err != nil {
		t.Fatalf("Apply open failed: %v", err)
	}
	fill := event.OrderUpdateEvent{
		ClientID:        id,
		Status:          domain.StatusFilled,
		FilledDeltaSats: testOrder().QtySats,
	}
	if _, err := f.ledger.Apply(ctx, fill); err != nil {
		t.Fatalf("Apply fill failed: %v", err)
	}

	if err := f.ledger.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	res := f.waitEvent(t).(event.CancelResultEvent)
	if res.Outcome != domain.CancelAlreadyTerminal {
		t.Errorf("expected ALREADY_TERMINAL, got %+v", res)
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.Cancel(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyRejectsStaleEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.ledger.Submit(ctx, testOrder())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	f.waitEvent(t)

	steps := []event.OrderUpdateEvent{
		{ClientID: id, Status: domain.StatusOpen},
		{ClientID: id, Status: domain.StatusPartiallyFilled, FilledDeltaSats: 30000000},
	}
	for _, ev := range steps {
		if _, err := f.ledger.Apply(ctx, ev); err != nil {
			t.Fatalf("Apply %s failed: %v", ev.Status, err)
		}
	}

	// Late OPEN after a partial fill must be rejected.
	if _, err := f.ledger.Apply(ctx, event.OrderUpdateEvent{ClientID: id, Status: domain.StatusOpen}); !errors.Is(err, domain.ErrStaleEvent) {
		t.Errorf("expected ErrStaleEvent for rank regression, got %v", err)
	}

	if _, err := f.ledger.Apply(ctx, event.OrderUpdateEvent{
		ClientID: id, Status: domain.StatusFilled, FilledDeltaSats: 70000000,
	}); err != nil {
		t.Fatalf("Apply fill failed: %v", err)
	}

	// Anything after a terminal state is stale.
	if _, err := f.ledger.Apply(ctx, event.OrderUpdateEvent{ClientID: id, Status: domain.StatusCanceled}); !errors.Is(err, domain.ErrStaleEvent) {
		t.Errorf("expected ErrStaleEvent after terminal, got %v", err)
	}

	got, ok := f.ledger.Get(id)
	if !ok {
		t.Fatal("order vanished")
	}
	if got.Status != domain.StatusFilled || got.FilledQtySats != got.QtySats {
		t.Errorf("final state wrong: %+v", got)
	}
}

func TestApplyAccumulatesFills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.ledger.Submit(ctx, testOrder())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	f.waitEvent(t)

	updates := []event.OrderUpdateEvent{
		{ClientID: id, Status: domain.StatusOpen},
		{ClientID: id, Status: domain.StatusPartiallyFilled, FilledDeltaSats: 40000000},
		{ClientID: id, Status: domain.StatusPartiallyFilled, FilledDeltaSats: 40000000},
		{ClientID: id, Status: domain.StatusFilled, FilledDeltaSats: 20000000},
	}
	for _, ev := range updates {
		if _, err := f.ledger.Apply(ctx, ev); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}

	got, _ := f.ledger.Get(id)
	if got.FilledQtySats != quant.QtySats(100000000) {
		t.Errorf("expected full fill, got %d", got.FilledQtySats)
	}
}

func TestReconcileAdoptsExchangeState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.ledger.Submit(ctx, testOrder())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	f.waitEvent(t)

	f.gateway.queries = map[string]domain.OrderSnapshot{
		id: {ClientID: id, Status: domain.StatusFilled, FilledQtySats: 100000000},
	}
	if err := f.ledger.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	got, _ := f.ledger.Get(id)
	if got.Status != domain.StatusFilled || got.FilledQtySats != 100000000 {
		t.Errorf("reconcile did not adopt exchange state: %+v", got)
	}
}

func TestReconcileMarksUnknownOrdersRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.ledger.Submit(ctx, testOrder())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	f.waitEvent(t)

	// No scripted query result: exchange reports not found.
	if err := f.ledger.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	got, _ := f.ledger.Get(id)
	if got.Status != domain.StatusRejected {
		t.Errorf("expected REJECTED after reconcile, got %s", got.Status)
	}
	if f.gateway.submitCount() != 1 {
		t.Errorf("reconcile must never resubmit, got %d submissions", f.gateway.submitCount())
	}
}

func TestHydrateRestoresOpenOrders(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := storage.NewStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	o := testOrder()
	o.ClientID = "restored-1"
	o.Status = domain.StatusOpen
	o.CreatedUnixM = quant.Now()
	if err := store.SaveOrder(context.Background(), o); err != nil {
		t.Fatalf("SaveOrder failed: %v", err)
	}
	store.Close()

	store2, err := storage.NewStore(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	t.Cleanup(func() { store2.Close() })

	gw := &fakeGateway{}
	retry := infra.NewRetryPolicy(infra.NewRateLimiter(100, 100), infra.DefaultCircuitBreaker("test"), 3)
	inbox := make(chan event.Event, 16)
	var seq uint64
	l := New(store2, gw, retry, inbox, &seq,
		slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second, time.Second)

	if err := l.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	got, ok := l.Get("restored-1")
	if !ok {
		t.Fatal("restored order missing from ledger")
	}
	if got.Status != domain.StatusOpen {
		t.Errorf("unexpected status: %s", got.Status)
	}
}

func TestReconcileToleratesTransientQueryFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.ledger.Submit(ctx, testOrder())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	f.waitEvent(t)

	f.gateway.queryErr = &domain.GatewayError{Code: -1001, Msg: "internal error", Transient: true}
	if err := f.ledger.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile should skip transient failures, got: %v", err)
	}

	got, ok := f.ledger.Get(id)
	if !ok {
		t.Fatal("order lost during reconciliation")
	}
	if got.Status != domain.StatusPending {
		t.Errorf("status changed on failed query: %s", got.Status)
	}
}
