package domain

import (
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderKind is the primitive order type understood by the exchange.
type OrderKind string

const (
	KindMarket    OrderKind = "MARKET"
	KindLimit     OrderKind = "LIMIT"
	KindStopLimit OrderKind = "STOP_LIMIT"
)

// OrderStatus is the lifecycle state of a primitive order.
// Transitions are monotonic: PENDING -> OPEN -> PARTIALLY_FILLED -> terminal.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusOpen            OrderStatus = "OPEN"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
)

// Rank orders statuses for monotonicity checks. Terminal states share the
// highest rank: no terminal-to-terminal transition is ever accepted.
func (s OrderStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusOpen:
		return 1
	case StatusPartiallyFilled:
		return 2
	case StatusFilled, StatusCanceled, StatusRejected:
		return 3
	default:
		return -1
	}
}

// IsTerminal reports whether no further transition can occur.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// Order represents a primitive exchange request/response pair.
// All monetary values are fixed-point int64.
type Order struct {
	ClientID         string            `json:"client_id"` // idempotency token, unique per process lifetime
	StrategyID       string            `json:"strategy_id,omitempty"`
	Symbol           string            `json:"symbol"`
	Side             Side              `json:"side"`
	Kind             OrderKind         `json:"kind"`
	QtySats          quant.QtySats     `json:"qty"`
	LimitPriceMicros quant.PriceMicros `json:"limit_price,omitempty"`
	StopPriceMicros  quant.PriceMicros `json:"stop_price,omitempty"`
	ReduceOnly       bool              `json:"reduce_only,omitempty"`
	Status           OrderStatus       `json:"status"`
	FilledQtySats    quant.QtySats     `json:"filled_qty"`
	RejectReason     string            `json:"reject_reason,omitempty"`
	CreatedUnixM     quant.TimeStamp   `json:"created_at"`
}

// IsOpen checks if the order is still active on the exchange.
func (o *Order) IsOpen() bool {
	return o.Status == StatusOpen || o.Status == StatusPartiallyFilled
}

// RemainingSats is the unfilled portion of the order.
func (o *Order) RemainingSats() quant.QtySats {
	return o.QtySats - o.FilledQtySats
}
