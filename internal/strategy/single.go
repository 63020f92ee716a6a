package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// Single supervises one primitive order to a terminal state.
type Single struct {
	core
	params domain.SingleParams

	clientID string
}

type singleState struct {
	ClientID string `json:"client_id,omitempty"`
}

func NewSingle(env Env, id, symbol string, p domain.SingleParams) (*Single, error) {
	o := orderFromSingle(id, symbol, p)
	if err := domain.ValidateOrder(o); err != nil {
		return nil, err
	}
	return &Single{core: newCore(env, id, symbol), params: p}, nil
}

func RestoreSingle(env Env, rec domain.StrategyRecord) (*Single, error) {
	s := &Single{}
	s.env = env
	s.restoreCore(rec)
	if err := json.Unmarshal(rec.Params, &s.params); err != nil {
		return nil, fmt.Errorf("%w: single params: %v", domain.ErrInternal, err)
	}
	var st singleState
	if len(rec.State) > 0 {
		if err := json.Unmarshal(rec.State, &st); err != nil {
			return nil, fmt.Errorf("%w: single state: %v", domain.ErrInternal, err)
		}
	}
	s.clientID = st.ClientID
	return s, nil
}

func orderFromSingle(id, symbol string, p domain.SingleParams) domain.Order {
	return domain.Order{
		StrategyID:       id,
		Symbol:           symbol,
		Side:             p.Side,
		Kind:             p.Kind,
		QtySats:          p.QtySats,
		LimitPriceMicros: p.LimitPriceMicros,
		StopPriceMicros:  p.StopPriceMicros,
		ReduceOnly:       p.ReduceOnly,
	}
}

func (s *Single) Record() domain.StrategyRecord {
	return s.record(domain.StrategySingle, s.params, singleState{ClientID: s.clientID})
}

func (s *Single) Start(ctx context.Context) error {
	id, err := s.env.Orders.Submit(ctx, orderFromSingle(s.id, s.symbol, s.params))
	if err != nil {
		return err
	}
	s.clientID = id
	return nil
}

func (s *Single) OnOrderUpdate(ctx context.Context, o domain.Order) {
	if o.ClientID != s.clientID || s.status.IsTerminal() {
		return
	}
	switch o.Status {
	case domain.StatusFilled:
		s.status = domain.StrategyCompleted
	case domain.StatusRejected:
		s.fail(fmt.Sprintf("order rejected: %s", o.RejectReason))
	case domain.StatusCanceled:
		s.status = domain.StrategyCanceled
	}
}

func (s *Single) OnCancelResult(ctx context.Context, ev event.CancelResultEvent) {
	if ev.Err != "" && s.status == domain.StrategyCompleting {
		s.fail(fmt.Sprintf("cancel failed: %s", ev.Err))
	}
}

func (s *Single) OnPriceTick(ctx context.Context, price quant.PriceMicros) {}

func (s *Single) OnTimer(ctx context.Context) {}

func (s *Single) Cancel(ctx context.Context) {
	if s.status.IsTerminal() {
		return
	}
	if s.clientID == "" {
		s.status = domain.StrategyCanceled
		return
	}
	s.status = domain.StrategyCompleting
	if err := s.env.Orders.Cancel(ctx, s.clientID); err != nil {
		s.env.Logger.Warn("cancel request failed",
			slog.String("strategy_id", s.id),
			slog.Any("error", err))
		s.status = domain.StrategyCanceled
	}
}
