package domain

import (
	"context"

	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// CancelOutcome is the exchange's answer to a cancel request.
type CancelOutcome string

const (
	CancelDone            CancelOutcome = "CANCELED"
	CancelAlreadyTerminal CancelOutcome = "ALREADY_TERMINAL"
	CancelNotFound        CancelOutcome = "NOT_FOUND"
)

// OrderSnapshot is the exchange-reported state of an order, used for
// reconciliation at restart.
type OrderSnapshot struct {
	ClientID       string
	Status         OrderStatus
	FilledQtySats  quant.QtySats
	AvgPriceMicros quant.PriceMicros
}

// Gateway abstracts the exchange: Paper for simulation, Binance testnet for
// DEMO, Binance mainnet for REAL. Treated as unreliable; callers go through
// the retry policy, never directly.
//
// SubmitOrder must be idempotent on ClientID: resubmitting an order the
// exchange already accepted returns a GatewayError with Duplicate set.
type Gateway interface {
	SubmitOrder(ctx context.Context, o Order) error
	CancelOrder(ctx context.Context, clientID, symbol string) (CancelOutcome, error)
	QueryOrder(ctx context.Context, clientID, symbol string) (OrderSnapshot, error)

	// Close cleans up resources and wipes secrets.
	Close() error
}
