package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/internal/ledger"
	"github.com/makwana23-Harshil/binance-bot/internal/supervisor"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// Dispatcher is the single consumer of the process-wide event inbox.
// Gateway events, price ticks, timers, and cancel results all funnel
// through one goroutine, so no two handlers for the same strategy ever
// run concurrently and no per-strategy locking is needed.
type Dispatcher struct {
	inbox  chan event.Event
	ledger *ledger.Ledger
	sup    *supervisor.Supervisor
	logger *slog.Logger
	seq    *uint64

	onTick func(symbol string, price quant.PriceMicros)
	done   chan struct{}
}

// SetTickListener registers a hook invoked for every price tick before
// strategies see it. The paper gateway uses it to advance its
// simulated market. Must be set before Run.
func (d *Dispatcher) SetTickListener(fn func(symbol string, price quant.PriceMicros)) {
	d.onTick = fn
}

func New(inbox chan event.Event, l *ledger.Ledger, sup *supervisor.Supervisor, seq *uint64, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		inbox:  inbox,
		ledger: l,
		sup:    sup,
		logger: logger,
		seq:    seq,
		done:   make(chan struct{}),
	}
}

// Inbox exposes the send side for workers and the ledger.
func (d *Dispatcher) Inbox() chan<- event.Event { return d.inbox }

// Base stamps a fresh event header.
func (d *Dispatcher) Base() event.BaseEvent {
	return event.BaseEvent{Seq: quant.NextSeq(d.seq), Ts: quant.Now()}
}

// Schedule posts a TimerEvent for the strategy after the delay. The
// timer fires on its own goroutine and re-enters through the inbox, so
// the handler still runs on the dispatcher.
func (d *Dispatcher) Schedule(strategyID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		d.postTimer(strategyID)
	})
}

// postTimer delivers a timer event unless the dispatcher has already
// stopped; a timer that fires after shutdown must not strand its
// goroutine on a full inbox.
func (d *Dispatcher) postTimer(strategyID string) {
	ev := event.TimerEvent{BaseEvent: d.Base(), StrategyID: strategyID}
	select {
	case d.inbox <- ev:
	case <-d.done:
	}
}

// Emit posts an event without blocking the caller. Informational
// events are dropped when the inbox is saturated.
func (d *Dispatcher) Emit(ev event.Event) {
	select {
	case d.inbox <- ev:
	default:
		d.logger.Warn("inbox full, dropping event", slog.Int("type", int(ev.GetType())))
	}
}

// Run consumes the inbox until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started")
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return ctx.Err()
		case ev := <-d.inbox:
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev event.Event) {
	switch e := ev.(type) {
	case *event.PriceTickEvent:
		if d.onTick != nil {
			d.onTick(e.Symbol, e.PriceMicros)
		}
		d.sup.HandlePriceTick(ctx, e.Symbol, e.PriceMicros)
		event.ReleasePriceTickEvent(e)

	case event.OrderUpdateEvent:
		updated, err := d.ledger.Apply(ctx, e)
		switch {
		case errors.Is(err, domain.ErrStaleEvent):
			// Out-of-order or post-terminal: discard, log only.
			d.logger.Debug("stale order event discarded",
				slog.String("client_id", e.ClientID),
				slog.String("status", string(e.Status)))
		case errors.Is(err, domain.ErrNotFound):
			d.logger.Warn("order event for unknown client id",
				slog.String("client_id", e.ClientID))
		case err != nil:
			d.logger.Error("failed to apply order event",
				slog.String("client_id", e.ClientID),
				slog.Any("error", err))
		default:
			d.sup.HandleOrderUpdate(ctx, updated)
		}

	case event.CancelResultEvent:
		d.sup.HandleCancelResult(ctx, e)

	case event.TimerEvent:
		d.sup.HandleTimer(ctx, e.StrategyID)

	case event.GridEdgeEvent:
		d.logger.Info("grid edge exhausted",
			slog.String("strategy_id", e.StrategyID),
			slog.String("price", e.PriceMicros.String()))

	default:
		d.logger.Warn("unhandled event", slog.Int("type", int(ev.GetType())))
	}
}
