package event

import (
	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// Type defines the type of event.
type Type uint16

const (
	EvPriceTick Type = iota + 1
	EvOrderUpdate
	EvCancelResult
	EvTimer
	EvGridEdge
)

// Event is the interface for all dispatcher events.
type Event interface {
	GetSeq() uint64
	GetTs() quant.TimeStamp
	GetType() Type
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq uint64          `json:"seq"`
	Ts  quant.TimeStamp `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64         { return e.Seq }
func (e BaseEvent) GetTs() quant.TimeStamp { return e.Ts }

// PriceTickEvent represents a price change for a symbol.
type PriceTickEvent struct {
	BaseEvent
	Symbol      string            `json:"symbol"`
	PriceMicros quant.PriceMicros `json:"price"`
}

func (e PriceTickEvent) GetType() Type { return EvPriceTick }

// OrderUpdateEvent represents an order status change reported by the
// gateway (or by the ledger's own submitter goroutines).
// FilledDeltaSats is the newly filled quantity since the previous update.
type OrderUpdateEvent struct {
	BaseEvent
	ClientID        string             `json:"client_id"`
	Status          domain.OrderStatus `json:"status"`
	FilledDeltaSats quant.QtySats      `json:"filled_delta"`
	Reason          string             `json:"reason,omitempty"`
}

func (e OrderUpdateEvent) GetType() Type { return EvOrderUpdate }

// CancelResultEvent reports the outcome of an asynchronous cancel request.
// Err is set when cancellation failed after bounded retries.
type CancelResultEvent struct {
	BaseEvent
	ClientID string               `json:"client_id"`
	Outcome  domain.CancelOutcome `json:"outcome,omitempty"`
	Err      string               `json:"err,omitempty"`
}

func (e CancelResultEvent) GetType() Type { return EvCancelResult }

// TimerEvent fires a scheduled strategy tick (TWAP slice schedule).
type TimerEvent struct {
	BaseEvent
	StrategyID string `json:"strategy_id"`
}

func (e TimerEvent) GetType() Type { return EvTimer }

// GridEdgeEvent is the informational notice that a grid level went dormant
// because its replacement would fall outside the configured range.
type GridEdgeEvent struct {
	BaseEvent
	StrategyID  string            `json:"strategy_id"`
	PriceMicros quant.PriceMicros `json:"price"`
}

func (e GridEdgeEvent) GetType() Type { return EvGridEdge }
