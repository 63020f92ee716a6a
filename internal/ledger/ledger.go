package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/internal/infra"
	"github.com/makwana23-Harshil/binance-bot/internal/storage"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
	"github.com/makwana23-Harshil/binance-bot/pkg/safe"
)

// Ledger is the system of record for every primitive order. It assigns
// idempotency tokens, persists records before any network call, runs
// submissions and cancels on its own goroutines through the retry
// policy, and reports results back to the dispatcher inbox as events.
//
// Status transitions go through Apply, which enforces monotonicity:
// an update that would move an order backwards, or past a terminal
// state, is rejected with ErrStaleEvent.
type Ledger struct {
	store   *storage.Store
	gateway domain.Gateway
	retry   *infra.RetryPolicy
	inbox   chan<- event.Event
	logger  *slog.Logger
	seq     *uint64

	gatewayTimeout time.Duration
	cancelBudget   time.Duration

	mu        sync.RWMutex
	orders    map[string]*domain.Order
	canceling map[string]bool
}

func New(store *storage.Store, gateway domain.Gateway, retry *infra.RetryPolicy,
	inbox chan<- event.Event, seq *uint64, logger *slog.Logger,
	gatewayTimeout, cancelBudget time.Duration) *Ledger {
	return &Ledger{
		store:          store,
		gateway:        gateway,
		retry:          retry,
		inbox:          inbox,
		logger:         logger,
		seq:            seq,
		gatewayTimeout: gatewayTimeout,
		cancelBudget:   cancelBudget,
		orders:         make(map[string]*domain.Order),
		canceling:      make(map[string]bool),
	}
}

// Hydrate loads all non-terminal orders from storage into memory.
// Called once at startup before reconciliation.
func (l *Ledger) Hydrate(ctx context.Context) error {
	open, err := l.store.LoadOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to hydrate ledger: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range open {
		o := open[i]
		l.orders[o.ClientID] = &o
	}
	l.logger.Info("ledger hydrated", slog.Int("open_orders", len(open)))
	return nil
}

// Submit records a new order and starts an asynchronous submission.
// If the order already carries a client id the ledger has seen, the
// call is a no-op returning the existing id: retrying a Submit can
// never place a second order.
//
// The returned client id identifies the order in all later events.
func (l *Ledger) Submit(ctx context.Context, o domain.Order) (string, error) {
	if err := domain.ValidateOrder(o); err != nil {
		return "", err
	}

	if o.ClientID == "" {
		o.ClientID = uuid.NewString()
	}
	o.Status = domain.StatusPending
	o.CreatedUnixM = quant.Now()

	l.mu.Lock()
	if existing, ok := l.orders[o.ClientID]; ok {
		l.mu.Unlock()
		l.logger.Debug("duplicate submit ignored", slog.String("client_id", existing.ClientID))
		return existing.ClientID, nil
	}
	stored := o
	l.orders[o.ClientID] = &stored
	l.mu.Unlock()

	// Persist before the network call: a crash after this point leaves
	// a PENDING row that reconciliation resolves via QueryOrder.
	if err := l.store.SaveOrder(ctx, o); err != nil {
		l.mu.Lock()
		delete(l.orders, o.ClientID)
		l.mu.Unlock()
		return "", fmt.Errorf("%w: persist order: %v", domain.ErrInternal, err)
	}

	go l.submit(o)
	return o.ClientID, nil
}

func (l *Ledger) submit(o domain.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), l.gatewayTimeout)
	defer cancel()

	err := l.retry.Execute(ctx, func(ctx context.Context) error {
		return l.gateway.SubmitOrder(ctx, o)
	})
	if err != nil {
		l.logger.Warn("order submission failed",
			slog.String("client_id", o.ClientID),
			slog.String("symbol", o.Symbol),
			slog.Any("error", err))
		l.post(event.OrderUpdateEvent{
			BaseEvent: l.base(),
			ClientID:  o.ClientID,
			Status:    domain.StatusRejected,
			Reason:    err.Error(),
		})
		return
	}

	l.logger.Info("order submitted",
		slog.String("client_id", o.ClientID),
		slog.String("symbol", o.Symbol),
		slog.String("side", string(o.Side)),
		slog.String("kind", string(o.Kind)))
	l.post(event.OrderUpdateEvent{
		BaseEvent: l.base(),
		ClientID:  o.ClientID,
		Status:    domain.StatusOpen,
	})
}

// Cancel starts an asynchronous cancel for a known order. Canceling an
// order that is already terminal, or already being canceled, is a no-op;
// the terminal case still posts a CancelResultEvent so callers always
// get an answer.
func (l *Ledger) Cancel(ctx context.Context, clientID string) error {
	l.mu.Lock()
	o, ok := l.orders[clientID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, clientID)
	}
	if o.Status.IsTerminal() {
		l.mu.Unlock()
		l.post(event.CancelResultEvent{
			BaseEvent: l.base(),
			ClientID:  clientID,
			Outcome:   domain.CancelAlreadyTerminal,
		})
		return nil
	}
	if l.canceling[clientID] {
		l.mu.Unlock()
		return nil
	}
	l.canceling[clientID] = true
	symbol := o.Symbol
	l.mu.Unlock()

	go l.cancel(clientID, symbol)
	return nil
}

func (l *Ledger) cancel(clientID, symbol string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cancelBudget)
	defer cancel()

	var outcome domain.CancelOutcome
	err := l.retry.Execute(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = l.gateway.CancelOrder(ctx, clientID, symbol)
		return err
	})

	l.mu.Lock()
	delete(l.canceling, clientID)
	l.mu.Unlock()

	ev := event.CancelResultEvent{
		BaseEvent: l.base(),
		ClientID:  clientID,
	}
	if err != nil {
		l.logger.Warn("cancel failed",
			slog.String("client_id", clientID),
			slog.Any("error", err))
		ev.Err = err.Error()
	} else {
		ev.Outcome = outcome
	}
	l.post(ev)
}

// Get returns a copy of the order with the given client id.
func (l *Ledger) Get(clientID string) (domain.Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.orders[clientID]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// Apply folds an order update into the ledger. Returns the updated
// order copy, or ErrStaleEvent when the update would move the order
// backwards, or ErrNotFound for an unknown client id.
//
// Called only from the dispatcher goroutine.
func (l *Ledger) Apply(ctx context.Context, ev event.OrderUpdateEvent) (domain.Order, error) {
	l.mu.Lock()
	o, ok := l.orders[ev.ClientID]
	if !ok {
		l.mu.Unlock()
		return domain.Order{}, fmt.Errorf("%w: order %s", domain.ErrNotFound, ev.ClientID)
	}

	curRank, newRank := o.Status.Rank(), ev.Status.Rank()
	if newRank < 0 {
		l.mu.Unlock()
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", domain.ErrStaleEvent, ev.Status)
	}
	if o.Status.IsTerminal() || newRank < curRank {
		l.mu.Unlock()
		return domain.Order{}, fmt.Errorf("%w: %s -> %s for order %s",
			domain.ErrStaleEvent, o.Status, ev.Status, ev.ClientID)
	}

	o.Status = ev.Status
	if ev.Reason != "" {
		o.RejectReason = ev.Reason
	}
	if ev.FilledDeltaSats > 0 {
		o.FilledQtySats = quant.QtySats(safe.SafeAdd(int64(o.FilledQtySats), int64(ev.FilledDeltaSats)))
		if o.FilledQtySats > o.QtySats {
			o.FilledQtySats = o.QtySats
		}
	}
	// A FILLED report with no delta can arrive after a missed partial
	// fill; trust the terminal status over the accumulated quantity.
	if o.Status == domain.StatusFilled {
		o.FilledQtySats = o.QtySats
	}
	updated := *o
	l.mu.Unlock()

	if err := l.store.SaveOrder(ctx, updated); err != nil {
		l.logger.Error("failed to persist order update",
			slog.String("client_id", updated.ClientID),
			slog.Any("error", err))
	}
	return updated, nil
}

// Reconcile queries the exchange for every non-terminal order and folds
// the authoritative answer back in. Orders the exchange does not know
// are marked REJECTED: a PENDING row whose submission never went out
// must not be resubmitted, only surfaced.
func (l *Ledger) Reconcile(ctx context.Context) error {
	l.mu.RLock()
	var open []domain.Order
	for _, o := range l.orders {
		if !o.Status.IsTerminal() {
			open = append(open, *o)
		}
	}
	l.mu.RUnlock()

	for _, o := range open {
		snap, err := l.gateway.QueryOrder(ctx, o.ClientID, o.Symbol)
		if errors.Is(err, domain.ErrNotFound) {
			l.logger.Warn("order unknown to exchange, marking rejected",
				slog.String("client_id", o.ClientID))
			if _, err := l.Apply(ctx, event.OrderUpdateEvent{
				BaseEvent: l.base(),
				ClientID:  o.ClientID,
				Status:    domain.StatusRejected,
				Reason:    "not found during reconciliation",
			}); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			if infra.IsTransient(err) {
				// Keep the last known state; the next user-stream
				// update or restart will converge it.
				l.logger.Warn("reconcile query failed, keeping last known state",
					slog.String("client_id", o.ClientID),
					slog.Any("error", err))
				continue
			}
			return fmt.Errorf("reconcile %s: %w", o.ClientID, err)
		}

		delta := snap.FilledQtySats - o.FilledQtySats
		if delta < 0 {
			delta = 0
		}
		if snap.Status == o.Status && delta == 0 {
			continue
		}
		if _, err := l.Apply(ctx, event.OrderUpdateEvent{
			BaseEvent:       l.base(),
			ClientID:        o.ClientID,
			Status:          snap.Status,
			FilledDeltaSats: delta,
		}); err != nil && !errors.Is(err, domain.ErrStaleEvent) {
			return err
		}
	}

	l.logger.Info("reconciliation complete", slog.Int("orders", len(open)))
	return nil
}

func (l *Ledger) base() event.BaseEvent {
	return event.BaseEvent{Seq: quant.NextSeq(l.seq), Ts: quant.Now()}
}

func (l *Ledger) post(ev event.Event) {
	l.inbox <- ev
}
