package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// Paper simulates the exchange in memory for strategy validation.
// Market orders fill immediately at the last seen price; limit and
// stop-limit orders rest until a tick crosses them. Fills are reported
// through the same event inbox the real user-data stream would use, so
// the rest of the system cannot tell the difference.
//
// Duplicate client ids are rejected the way the real exchange does,
// which exercises the ledger's retry-after-ambiguous-timeout path.
type Paper struct {
	inbox chan<- event.Event
	seq   *uint64

	mu     sync.Mutex
	orders map[string]*paperOrder
	prices map[string]quant.PriceMicros
}

type paperOrder struct {
	domain.Order
	triggered bool // stop-limit trigger crossed, now resting as a limit
}

func NewPaper(inbox chan<- event.Event, seq *uint64) *Paper {
	return &Paper{
		inbox:  inbox,
		seq:    seq,
		orders: make(map[string]*paperOrder),
		prices: make(map[string]quant.PriceMicros),
	}
}

func (p *Paper) base() event.BaseEvent {
	return event.BaseEvent{Seq: quant.NextSeq(p.seq), Ts: quant.Now()}
}

// SubmitOrder accepts an order into the book. Market orders fill
// synchronously but still report through the event stream.
func (p *Paper) SubmitOrder(ctx context.Context, o domain.Order) error {
	p.mu.Lock()
	if _, exists := p.orders[o.ClientID]; exists {
		p.mu.Unlock()
		return &domain.GatewayError{Code: -4116, Msg: "client order id is duplicated", Duplicate: true}
	}

	po := &paperOrder{Order: o}
	po.Status = domain.StatusOpen

	var fill *event.OrderUpdateEvent
	if o.Kind == domain.KindMarket {
		price, ok := p.prices[o.Symbol]
		if !ok {
			p.mu.Unlock()
			return &domain.GatewayError{Code: -4131, Msg: fmt.Sprintf("no market price for %s", o.Symbol)}
		}
		po.Status = domain.StatusFilled
		po.FilledQtySats = o.QtySats
		fill = &event.OrderUpdateEvent{
			ClientID:        o.ClientID,
			Status:          domain.StatusFilled,
			FilledDeltaSats: o.QtySats,
		}
		slog.Debug("paper market fill",
			slog.String("client_id", o.ClientID),
			slog.String("price", price.String()))
	}
	p.orders[o.ClientID] = po
	p.mu.Unlock()

	if fill != nil {
		fill.BaseEvent = p.base()
		p.inbox <- *fill
	}
	return nil
}

// CancelOrder removes a resting order.
func (p *Paper) CancelOrder(ctx context.Context, clientID, symbol string) (domain.CancelOutcome, error) {
	p.mu.Lock()
	po, ok := p.orders[clientID]
	if !ok {
		p.mu.Unlock()
		return domain.CancelNotFound, nil
	}
	if po.Status.IsTerminal() {
		p.mu.Unlock()
		return domain.CancelAlreadyTerminal, nil
	}
	po.Status = domain.StatusCanceled
	p.mu.Unlock()

	p.inbox <- event.OrderUpdateEvent{
		BaseEvent: p.base(),
		ClientID:  clientID,
		Status:    domain.StatusCanceled,
	}
	return domain.CancelDone, nil
}

// QueryOrder reports the simulated order state.
func (p *Paper) QueryOrder(ctx context.Context, clientID, symbol string) (domain.OrderSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	po, ok := p.orders[clientID]
	if !ok {
		return domain.OrderSnapshot{}, domain.ErrNotFound
	}
	return domain.OrderSnapshot{
		ClientID:      clientID,
		Status:        po.Status,
		FilledQtySats: po.FilledQtySats,
	}, nil
}

func (p *Paper) Close() error { return nil }

// UpdatePrice advances the simulated market and fills any resting
// order the new price crosses. Fill events are delivered on a separate
// goroutine because UpdatePrice may be called from the dispatcher
// itself.
func (p *Paper) UpdatePrice(symbol string, price quant.PriceMicros) {
	p.mu.Lock()
	p.prices[symbol] = price

	var fills []event.OrderUpdateEvent
	for _, po := range p.orders {
		if po.Symbol != symbol || po.Status.IsTerminal() {
			continue
		}
		if po.Kind == domain.KindStopLimit && !po.triggered {
			if crossesStop(po.Side, po.StopPriceMicros, price) {
				po.triggered = true
			}
			continue
		}
		if crossesLimit(po.Side, po.LimitPriceMicros, price) {
			po.Status = domain.StatusFilled
			po.FilledQtySats = po.QtySats
			fills = append(fills, event.OrderUpdateEvent{
				ClientID:        po.ClientID,
				Status:          domain.StatusFilled,
				FilledDeltaSats: po.QtySats,
			})
		}
	}
	p.mu.Unlock()

	if len(fills) == 0 {
		return
	}
	go func() {
		for _, f := range fills {
			f.BaseEvent = p.base()
			p.inbox <- f
		}
	}()
}

// crossesLimit reports whether a resting limit order executes at the
// given market price: buys at or below the limit, sells at or above.
func crossesLimit(side domain.Side, limit, price quant.PriceMicros) bool {
	if side == domain.SideBuy {
		return price <= limit
	}
	return price >= limit
}

// crossesStop mirrors the mark-price trigger: a sell stop arms at or
// below the trigger, a buy stop at or above.
func crossesStop(side domain.Side, stop, price quant.PriceMicros) bool {
	if side == domain.SideSell {
		return price <= stop
	}
	return price >= stop
}
