package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

type stopPhase string

const (
	stopArmed     stopPhase = "ARMED"
	stopTriggered stopPhase = "TRIGGERED"
)

// Stop watches price ticks and submits a limit order exactly once when
// the stop price is crossed. The client id is generated up front so a
// retried submission after the trigger can never place a second order.
type Stop struct {
	core
	params domain.StopParams

	phase    stopPhase
	clientID string
}

type stopState struct {
	Phase    stopPhase `json:"phase"`
	ClientID string    `json:"client_id"`
}

func NewStop(env Env, id, symbol string, p domain.StopParams) (*Stop, error) {
	if p.StopPriceMicros <= 0 || p.LimitPriceMicros <= 0 {
		return nil, fmt.Errorf("%w: stop and limit prices are required", domain.ErrInvalidParameters)
	}
	if err := domain.ValidateOrder(orderFromStop(id, symbol, "", p)); err != nil {
		return nil, err
	}
	return &Stop{
		core:     newCore(env, id, symbol),
		params:   p,
		phase:    stopArmed,
		clientID: uuid.NewString(),
	}, nil
}

func RestoreStop(env Env, rec domain.StrategyRecord) (*Stop, error) {
	s := &Stop{}
	s.env = env
	s.restoreCore(rec)
	if err := json.Unmarshal(rec.Params, &s.params); err != nil {
		return nil, fmt.Errorf("%w: stop params: %v", domain.ErrInternal, err)
	}
	var st stopState
	if err := json.Unmarshal(rec.State, &st); err != nil {
		return nil, fmt.Errorf("%w: stop state: %v", domain.ErrInternal, err)
	}
	s.phase = st.Phase
	s.clientID = st.ClientID
	return s, nil
}

func orderFromStop(id, symbol, clientID string, p domain.StopParams) domain.Order {
	return domain.Order{
		ClientID:         clientID,
		StrategyID:       id,
		Symbol:           symbol,
		Side:             p.Side,
		Kind:             domain.KindLimit,
		QtySats:          p.QtySats,
		LimitPriceMicros: p.LimitPriceMicros,
		ReduceOnly:       p.ReduceOnly,
	}
}

func (s *Stop) Record() domain.StrategyRecord {
	return s.record(domain.StrategyStop, s.params, stopState{Phase: s.phase, ClientID: s.clientID})
}

// Start is a no-op: an armed stop only acts on ticks.
func (s *Stop) Start(ctx context.Context) error { return nil }

// crossed reports whether price breaches the trigger in the configured
// direction: a sell stop fires at or below the stop price, a buy stop
// at or above.
func (s *Stop) crossed(price quant.PriceMicros) bool {
	if s.params.Side == domain.SideSell {
		return price <= s.params.StopPriceMicros
	}
	return price >= s.params.StopPriceMicros
}

func (s *Stop) OnPriceTick(ctx context.Context, price quant.PriceMicros) {
	if s.status.IsTerminal() || s.phase != stopArmed || !s.crossed(price) {
		return
	}
	s.phase = stopTriggered
	s.env.Logger.Info("stop triggered",
		slog.String("strategy_id", s.id),
		slog.String("symbol", s.symbol),
		slog.String("price", price.String()),
		slog.String("stop_price", s.params.StopPriceMicros.String()))

	if _, err := s.env.Orders.Submit(ctx, orderFromStop(s.id, s.symbol, s.clientID, s.params)); err != nil {
		// A failed stop must never silently disappear.
		s.fail(fmt.Sprintf("stop order submission failed: %v", err))
	}
}

func (s *Stop) OnOrderUpdate(ctx context.Context, o domain.Order) {
	if o.ClientID != s.clientID || s.status.IsTerminal() {
		return
	}
	switch o.Status {
	case domain.StatusFilled:
		s.status = domain.StrategyCompleted
	case domain.StatusRejected:
		s.fail(fmt.Sprintf("stop order rejected: %s", o.RejectReason))
	case domain.StatusCanceled:
		s.status = domain.StrategyCanceled
	}
}

func (s *Stop) OnCancelResult(ctx context.Context, ev event.CancelResultEvent) {
	if ev.Err != "" && s.status == domain.StrategyCompleting {
		s.fail(fmt.Sprintf("cancel failed: %s", ev.Err))
	}
}

func (s *Stop) OnTimer(ctx context.Context) {}

func (s *Stop) Cancel(ctx context.Context) {
	if s.status.IsTerminal() {
		return
	}
	if s.phase == stopArmed {
		s.status = domain.StrategyCanceled
		return
	}
	s.status = domain.StrategyCompleting
	if err := s.env.Orders.Cancel(ctx, s.clientID); err != nil {
		s.status = domain.StrategyCanceled
	}
}
