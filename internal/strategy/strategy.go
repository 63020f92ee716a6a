package strategy

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// OrderWriter is the slice of the order ledger visible to strategies.
type OrderWriter interface {
	Submit(ctx context.Context, o domain.Order) (string, error)
	Cancel(ctx context.Context, clientID string) error
	Get(clientID string) (domain.Order, bool)
}

// Env carries the services every strategy shares. Timer schedules a
// TimerEvent for the strategy after the given delay; Emit posts an
// informational event to the dispatcher without blocking.
type Env struct {
	Orders OrderWriter
	Timer  func(strategyID string, d time.Duration)
	Emit   func(ev event.Event)
	Base   func() event.BaseEvent
	Logger *slog.Logger
}

// Strategy is a stateful execution plan owning one or more primitive
// orders. All callbacks run on the dispatcher goroutine, so
// implementations never need internal locking.
type Strategy interface {
	ID() string
	Symbol() string
	Status() domain.StrategyStatus
	Record() domain.StrategyRecord

	// Start places initial orders or arms triggers. Called once,
	// after the record has been persisted.
	Start(ctx context.Context) error

	// OnOrderUpdate receives the post-transition copy of an order
	// owned by this strategy.
	OnOrderUpdate(ctx context.Context, o domain.Order)

	// OnCancelResult reports the outcome of a cancel this strategy
	// requested.
	OnCancelResult(ctx context.Context, ev event.CancelResultEvent)

	// OnPriceTick delivers a mark price update for the strategy's symbol.
	OnPriceTick(ctx context.Context, price quant.PriceMicros)

	// OnTimer fires a previously scheduled timer.
	OnTimer(ctx context.Context)

	// Cancel begins a caller-requested teardown: cancel open child
	// orders and move toward CANCELED.
	Cancel(ctx context.Context)
}

// core holds the fields and bookkeeping common to all strategies.
type core struct {
	env       Env
	id        string
	symbol    string
	status    domain.StrategyStatus
	failCause string
	createdAt quant.TimeStamp
}

func newCore(env Env, id, symbol string) core {
	return core{
		env:       env,
		id:        id,
		symbol:    symbol,
		status:    domain.StrategyActive,
		createdAt: quant.Now(),
	}
}

func (c *core) ID() string                    { return c.id }
func (c *core) Symbol() string                { return c.symbol }
func (c *core) Status() domain.StrategyStatus { return c.status }

func (c *core) fail(cause string) {
	c.status = domain.StrategyFailed
	c.failCause = cause
	c.env.Logger.Error("strategy failed",
		slog.String("strategy_id", c.id),
		slog.String("cause", cause))
}

func (c *core) record(kind domain.StrategyKind, params, state any) domain.StrategyRecord {
	p, _ := json.Marshal(params)
	st, _ := json.Marshal(state)
	return domain.StrategyRecord{
		ID:           c.id,
		Kind:         kind,
		Symbol:       c.symbol,
		Status:       c.status,
		FailCause:    c.failCause,
		Params:       p,
		State:        st,
		CreatedUnixM: c.createdAt,
		UpdatedUnixM: quant.Now(),
	}
}

func (c *core) restoreCore(rec domain.StrategyRecord) {
	c.id = rec.ID
	c.symbol = rec.Symbol
	c.status = rec.Status
	c.failCause = rec.FailCause
	c.createdAt = rec.CreatedUnixM
}
