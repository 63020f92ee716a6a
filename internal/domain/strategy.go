package domain

import (
	"encoding/json"

	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// StrategyKind identifies the closed set of execution plans.
type StrategyKind string

const (
	StrategySingle StrategyKind = "SINGLE"
	StrategyStop   StrategyKind = "STOP"
	StrategyOCO    StrategyKind = "OCO"
	StrategyTWAP   StrategyKind = "TWAP"
	StrategyGrid   StrategyKind = "GRID"
)

// StrategyStatus is the lifecycle state of a strategy.
type StrategyStatus string

const (
	StrategyActive     StrategyStatus = "ACTIVE"
	StrategyCompleting StrategyStatus = "COMPLETING"
	StrategyCompleted  StrategyStatus = "COMPLETED"
	StrategyCanceled   StrategyStatus = "CANCELED"
	StrategyFailed     StrategyStatus = "FAILED"
)

// IsTerminal reports whether the strategy has been retired.
func (s StrategyStatus) IsTerminal() bool {
	return s == StrategyCompleted || s == StrategyCanceled || s == StrategyFailed
}

// SingleParams places one primitive order and supervises it to a terminal state.
type SingleParams struct {
	Side             Side              `json:"side"`
	Kind             OrderKind         `json:"kind"`
	QtySats          quant.QtySats     `json:"qty"`
	LimitPriceMicros quant.PriceMicros `json:"limit_price,omitempty"`
	StopPriceMicros  quant.PriceMicros `json:"stop_price,omitempty"`
	ReduceOnly       bool              `json:"reduce_only,omitempty"`
}

// StopParams arms a local price trigger that submits a limit order
// exactly once when the stop price is crossed.
type StopParams struct {
	Side             Side              `json:"side"`
	QtySats          quant.QtySats     `json:"qty"`
	StopPriceMicros  quant.PriceMicros `json:"stop_price"`
	LimitPriceMicros quant.PriceMicros `json:"limit_price"`
	ReduceOnly       bool              `json:"reduce_only,omitempty"`
}

// OCOParams links a take-profit limit leg with a stop-limit leg.
// Filling either leg cancels the other.
type OCOParams struct {
	Side                 Side              `json:"side"` // side of the take-profit leg
	QtySats              quant.QtySats     `json:"qty"`
	TakeProfitMicros     quant.PriceMicros `json:"take_profit_price"`
	StopTriggerMicros    quant.PriceMicros `json:"stop_trigger_price"`
	StopLimitPriceMicros quant.PriceMicros `json:"stop_limit_price,omitempty"` // defaults to trigger price
}

// TWAPParams slices a total quantity into timed child orders.
type TWAPParams struct {
	Side             Side              `json:"side"`
	TotalQtySats     quant.QtySats     `json:"total_qty"`
	SliceCount       int               `json:"slice_count"`
	IntervalMicros   int64             `json:"interval_us"`
	ChildKind        OrderKind         `json:"child_kind"` // MARKET or LIMIT
	LimitPriceMicros quant.PriceMicros `json:"limit_price,omitempty"`
}

// GridSpacing selects how level prices are distributed across the range.
type GridSpacing string

const (
	SpacingArithmetic GridSpacing = "ARITHMETIC"
	SpacingGeometric  GridSpacing = "GEOMETRIC"
)

// GridParams maintains a ladder of resting orders across a price range.
type GridParams struct {
	LowerMicros    quant.PriceMicros `json:"lower_price"`
	UpperMicros    quant.PriceMicros `json:"upper_price"`
	LevelCount     int               `json:"level_count"`
	QtyPerLevel    quant.QtySats     `json:"qty_per_level"`
	Spacing        GridSpacing       `json:"spacing,omitempty"` // defaults to ARITHMETIC
	SeedPriceMicro quant.PriceMicros `json:"seed_price"`        // mid price at creation
}

// GridLevel is one rung of a grid: at most one active resting order at a time.
type GridLevel struct {
	PriceMicros    quant.PriceMicros `json:"price"`
	Side           Side              `json:"side"`
	ActiveClientID string            `json:"active_client_id,omitempty"`
	FilledCount    int               `json:"filled_count"`
	Dormant        bool              `json:"dormant,omitempty"`
}

// StrategyRecord is the durable form of a strategy: its variant, parameters
// and resumable state. Records are archived on retirement, never deleted.
type StrategyRecord struct {
	ID           string          `json:"id"`
	Kind         StrategyKind    `json:"kind"`
	Symbol       string          `json:"symbol"`
	Status       StrategyStatus  `json:"status"`
	FailCause    string          `json:"fail_cause,omitempty"`
	Params       json.RawMessage `json:"params"`
	State        json.RawMessage `json:"state,omitempty"`
	CreatedUnixM quant.TimeStamp `json:"created_at"`
	UpdatedUnixM quant.TimeStamp `json:"updated_at"`
}

// StrategySnapshot is the read-only view exposed on the command surface.
type StrategySnapshot struct {
	ID           string          `json:"id"`
	Kind         StrategyKind    `json:"kind"`
	Symbol       string          `json:"symbol"`
	Status       StrategyStatus  `json:"status"`
	FailCause    string          `json:"fail_cause,omitempty"`
	Detail       json.RawMessage `json:"detail,omitempty"`
	CreatedUnixM quant.TimeStamp `json:"created_at"`
}
