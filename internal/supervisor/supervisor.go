package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/internal/storage"
	"github.com/makwana23-Harshil/binance-bot/internal/strategy"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// OrderReader resolves client ids to orders for event routing.
type OrderReader interface {
	Get(clientID string) (domain.Order, bool)
}

// Supervisor owns the map from strategy id to live strategy instance.
// The Handle* methods are called only from the dispatcher goroutine;
// the mutex protects the map against the external command surface
// (Create, CancelStrategy, Status, List), which may be called from any
// goroutine.
//
// A panicking strategy is retired as FAILED without taking down the
// process or any other strategy.
type Supervisor struct {
	env    strategy.Env
	store  *storage.Store
	orders OrderReader
	logger *slog.Logger

	mu         sync.Mutex
	strategies map[string]strategy.Strategy
}

func New(env strategy.Env, store *storage.Store, orders OrderReader, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		env:        env,
		store:      store,
		orders:     orders,
		logger:     logger,
		strategies: make(map[string]strategy.Strategy),
	}
}

// Create validates parameters, persists the new strategy, and starts
// it. Nothing reaches the exchange when validation fails.
func (sv *Supervisor) Create(ctx context.Context, kind domain.StrategyKind, symbol string, params json.RawMessage) (string, error) {
	id := uuid.NewString()
	st, err := strategy.New(sv.env, id, kind, symbol, params)
	if err != nil {
		return "", err
	}

	if err := sv.store.SaveStrategy(ctx, st.Record()); err != nil {
		return "", fmt.Errorf("%w: persist strategy: %v", domain.ErrInternal, err)
	}

	sv.mu.Lock()
	sv.strategies[id] = st
	sv.mu.Unlock()

	if err := sv.guard(ctx, st, func() error { return st.Start(ctx) }); err != nil {
		rec := st.Record()
		if !rec.Status.IsTerminal() {
			rec.Status = domain.StrategyFailed
			rec.FailCause = fmt.Sprintf("start failed: %v", err)
		}
		if serr := sv.store.SaveStrategy(ctx, rec); serr != nil {
			sv.logger.Error("failed to persist start failure", slog.Any("error", serr))
		}
		sv.retire(ctx, st)
		return "", err
	}
	sv.persist(ctx, st)

	sv.logger.Info("strategy created",
		slog.String("strategy_id", id),
		slog.String("kind", string(kind)),
		slog.String("symbol", symbol))
	return id, nil
}

// CancelStrategy delegates to the strategy's own teardown path.
func (sv *Supervisor) CancelStrategy(ctx context.Context, id string) error {
	sv.mu.Lock()
	st, ok := sv.strategies[id]
	sv.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: strategy %s", domain.ErrNotFound, id)
	}

	sv.guard(ctx, st, func() error { st.Cancel(ctx); return nil })
	sv.persist(ctx, st)
	if st.Status().IsTerminal() {
		sv.retire(ctx, st)
	}
	return nil
}

// Status returns a snapshot for a live or persisted strategy.
func (sv *Supervisor) Status(ctx context.Context, id string) (domain.StrategySnapshot, error) {
	sv.mu.Lock()
	st, ok := sv.strategies[id]
	sv.mu.Unlock()
	if ok {
		return snapshotOf(st.Record()), nil
	}

	rec, err := sv.store.GetStrategy(ctx, id)
	if err != nil {
		return domain.StrategySnapshot{}, err
	}
	return snapshotOf(rec), nil
}

// List returns snapshots for every live strategy.
func (sv *Supervisor) List() []domain.StrategySnapshot {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	out := make([]domain.StrategySnapshot, 0, len(sv.strategies))
	for _, st := range sv.strategies {
		out = append(out, snapshotOf(st.Record()))
	}
	return out
}

func snapshotOf(rec domain.StrategyRecord) domain.StrategySnapshot {
	return domain.StrategySnapshot{
		ID:           rec.ID,
		Kind:         rec.Kind,
		Symbol:       rec.Symbol,
		Status:       rec.Status,
		FailCause:    rec.FailCause,
		Detail:       rec.State,
		CreatedUnixM: rec.CreatedUnixM,
	}
}

// HandleOrderUpdate routes a post-transition order copy to its owner.
func (sv *Supervisor) HandleOrderUpdate(ctx context.Context, o domain.Order) {
	st, ok := sv.lookup(o.StrategyID)
	if !ok {
		sv.logger.Debug("order update for unknown strategy",
			slog.String("strategy_id", o.StrategyID),
			slog.String("client_id", o.ClientID))
		return
	}
	sv.guard(ctx, st, func() error { st.OnOrderUpdate(ctx, o); return nil })
	sv.finish(ctx, st)
}

// HandleCancelResult routes a cancel outcome to the strategy owning the
// order.
func (sv *Supervisor) HandleCancelResult(ctx context.Context, ev event.CancelResultEvent) {
	o, ok := sv.orders.Get(ev.ClientID)
	if !ok {
		return
	}
	st, ok := sv.lookup(o.StrategyID)
	if !ok {
		return
	}
	sv.guard(ctx, st, func() error { st.OnCancelResult(ctx, ev); return nil })
	sv.finish(ctx, st)
}

// HandlePriceTick fans a tick out to every live strategy on the symbol.
func (sv *Supervisor) HandlePriceTick(ctx context.Context, symbol string, price quant.PriceMicros) {
	sv.mu.Lock()
	matching := make([]strategy.Strategy, 0, len(sv.strategies))
	for _, st := range sv.strategies {
		if st.Symbol() == symbol {
			matching = append(matching, st)
		}
	}
	sv.mu.Unlock()

	for _, st := range matching {
		sv.guard(ctx, st, func() error { st.OnPriceTick(ctx, price); return nil })
		sv.finish(ctx, st)
	}
}

// HandleTimer fires a scheduled timer on its strategy.
func (sv *Supervisor) HandleTimer(ctx context.Context, strategyID string) {
	st, ok := sv.lookup(strategyID)
	if !ok {
		return
	}
	sv.guard(ctx, st, func() error { st.OnTimer(ctx); return nil })
	sv.finish(ctx, st)
}

// Resume rebuilds live strategies from persisted records after a
// restart. Orders are never resubmitted: the ledger has already been
// hydrated and reconciled against the exchange by the time this runs.
func (sv *Supervisor) Resume(ctx context.Context) error {
	recs, err := sv.store.LoadActiveStrategies(ctx)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		st, err := strategy.Restore(sv.env, rec)
		if err != nil {
			sv.logger.Error("failed to restore strategy",
				slog.String("strategy_id", rec.ID),
				slog.Any("error", err))
			rec.Status = domain.StrategyFailed
			rec.FailCause = fmt.Sprintf("restore failed: %v", err)
			if serr := sv.store.SaveStrategy(ctx, rec); serr != nil {
				sv.logger.Error("failed to persist restore failure", slog.Any("error", serr))
			}
			continue
		}

		sv.mu.Lock()
		sv.strategies[rec.ID] = st
		sv.mu.Unlock()

		if err := sv.replayOrders(ctx, rec.ID); err != nil {
			return err
		}

		// Replay may have driven the strategy to a terminal state (a
		// fill that landed while the process was down); only a still
		// live strategy re-arms its timers.
		if r, ok := st.(interface{ Resume() }); ok && !st.Status().IsTerminal() {
			r.Resume()
		}
		sv.logger.Info("strategy resumed",
			slog.String("strategy_id", rec.ID),
			slog.String("kind", string(rec.Kind)),
			slog.String("status", string(st.Status())))
	}
	return nil
}

// replayOrders folds the reconciled ledger state of a restored
// strategy's orders back through its handlers. Transitions that
// happened while the process was down (a grid level that filled, an
// OCO leg that executed) reach the strategy here; updates it already
// processed before shutdown are ignored by the handlers' own
// client-id and phase checks.
func (sv *Supervisor) replayOrders(ctx context.Context, strategyID string) error {
	orders, err := sv.store.LoadStrategyOrders(ctx, strategyID)
	if err != nil {
		return fmt.Errorf("replay orders for %s: %w", strategyID, err)
	}
	for _, o := range orders {
		if o.Status != domain.StatusPartiallyFilled && !o.Status.IsTerminal() {
			continue
		}
		sv.HandleOrderUpdate(ctx, o)
	}
	return nil
}

func (sv *Supervisor) lookup(id string) (strategy.Strategy, bool) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	st, ok := sv.strategies[id]
	return st, ok
}

// guard runs a strategy callback with panic isolation: a panic retires
// the strategy as FAILED and never propagates.
func (sv *Supervisor) guard(ctx context.Context, st strategy.Strategy, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			sv.logger.Error("strategy panicked",
				slog.String("strategy_id", st.ID()),
				slog.Any("panic", r))
			rec := st.Record()
			rec.Status = domain.StrategyFailed
			rec.FailCause = fmt.Sprintf("panic: %v", r)
			if serr := sv.store.SaveStrategy(ctx, rec); serr != nil {
				sv.logger.Error("failed to persist panic failure", slog.Any("error", serr))
			}
			sv.mu.Lock()
			delete(sv.strategies, st.ID())
			sv.mu.Unlock()
			err = fmt.Errorf("%w: strategy panicked: %v", domain.ErrInternal, r)
		}
	}()
	return fn()
}

// finish persists the strategy's current record and retires it when
// terminal. Persisting on every transition keeps restart state exact.
func (sv *Supervisor) finish(ctx context.Context, st strategy.Strategy) {
	sv.mu.Lock()
	_, live := sv.strategies[st.ID()]
	sv.mu.Unlock()
	if !live {
		return // already retired by the panic guard
	}
	sv.persist(ctx, st)
	if st.Status().IsTerminal() {
		sv.retire(ctx, st)
	}
}

func (sv *Supervisor) persist(ctx context.Context, st strategy.Strategy) {
	if err := sv.store.SaveStrategy(ctx, st.Record()); err != nil {
		sv.logger.Error("failed to persist strategy",
			slog.String("strategy_id", st.ID()),
			slog.Any("error", err))
	}
}

func (sv *Supervisor) retire(ctx context.Context, st strategy.Strategy) {
	sv.mu.Lock()
	delete(sv.strategies, st.ID())
	sv.mu.Unlock()
	sv.logger.Info("strategy retired",
		slog.String("strategy_id", st.ID()),
		slog.String("status", string(st.Status())))
}
