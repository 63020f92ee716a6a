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

type ocoPhase string

const (
	ocoArmed     ocoPhase = "ARMED"
	ocoResolving ocoPhase = "RESOLVING"
)

// OCO links a take-profit limit leg with a stop-limit leg on the same
// side: the first leg to report a fill wins and the sibling is
// cancelled. Both client ids are generated up front.
type OCO struct {
	core
	params domain.OCOParams

	phase      ocoPhase
	tpID       string
	stopID     string
	tpStatus   domain.OrderStatus
	stopStatus domain.OrderStatus
	winner     string
}

type ocoState struct {
	Phase      ocoPhase           `json:"phase"`
	TPID       string             `json:"tp_id"`
	StopID     string             `json:"stop_id"`
	TPStatus   domain.OrderStatus `json:"tp_status"`
	StopStatus domain.OrderStatus `json:"stop_status"`
	Winner     string             `json:"winner,omitempty"`
}

func NewOCO(env Env, id, symbol string, p domain.OCOParams) (*OCO, error) {
	if p.TakeProfitMicros <= 0 || p.StopTriggerMicros <= 0 {
		return nil, fmt.Errorf("%w: take-profit and stop trigger prices are required", domain.ErrInvalidParameters)
	}
	o := &OCO{
		core:       newCore(env, id, symbol),
		params:     p,
		phase:      ocoArmed,
		tpID:       uuid.NewString(),
		stopID:     uuid.NewString(),
		tpStatus:   domain.StatusPending,
		stopStatus: domain.StatusPending,
	}
	if err := domain.ValidateOrder(o.tpOrder()); err != nil {
		return nil, err
	}
	if err := domain.ValidateOrder(o.stopOrder()); err != nil {
		return nil, err
	}
	return o, nil
}

func RestoreOCO(env Env, rec domain.StrategyRecord) (*OCO, error) {
	o := &OCO{}
	o.env = env
	o.restoreCore(rec)
	if err := json.Unmarshal(rec.Params, &o.params); err != nil {
		return nil, fmt.Errorf("%w: oco params: %v", domain.ErrInternal, err)
	}
	var st ocoState
	if err := json.Unmarshal(rec.State, &st); err != nil {
		return nil, fmt.Errorf("%w: oco state: %v", domain.ErrInternal, err)
	}
	o.phase = st.Phase
	o.tpID = st.TPID
	o.stopID = st.StopID
	o.tpStatus = st.TPStatus
	o.stopStatus = st.StopStatus
	o.winner = st.Winner
	return o, nil
}

func (o *OCO) tpOrder() domain.Order {
	return domain.Order{
		ClientID:         o.tpID,
		StrategyID:       o.id,
		Symbol:           o.symbol,
		Side:             o.params.Side,
		Kind:             domain.KindLimit,
		QtySats:          o.params.QtySats,
		LimitPriceMicros: o.params.TakeProfitMicros,
		ReduceOnly:       true,
	}
}

func (o *OCO) stopOrder() domain.Order {
	limit := o.params.StopLimitPriceMicros
	if limit == 0 {
		limit = o.params.StopTriggerMicros
	}
	return domain.Order{
		ClientID:         o.stopID,
		StrategyID:       o.id,
		Symbol:           o.symbol,
		Side:             o.params.Side,
		Kind:             domain.KindStopLimit,
		QtySats:          o.params.QtySats,
		LimitPriceMicros: limit,
		StopPriceMicros:  o.params.StopTriggerMicros,
		ReduceOnly:       true,
	}
}

func (o *OCO) Record() domain.StrategyRecord {
	return o.record(domain.StrategyOCO, o.params, ocoState{
		Phase:      o.phase,
		TPID:       o.tpID,
		StopID:     o.stopID,
		TPStatus:   o.tpStatus,
		StopStatus: o.stopStatus,
		Winner:     o.winner,
	})
}

func (o *OCO) Start(ctx context.Context) error {
	if _, err := o.env.Orders.Submit(ctx, o.tpOrder()); err != nil {
		return err
	}
	if _, err := o.env.Orders.Submit(ctx, o.stopOrder()); err != nil {
		// The take-profit leg is already in flight; tear it down so a
		// failed start never leaves a lone leg resting.
		if cerr := o.env.Orders.Cancel(ctx, o.tpID); cerr != nil {
			o.env.Logger.Error("failed to cancel orphaned take-profit leg",
				slog.String("strategy_id", o.id),
				slog.Any("error", cerr))
		}
		return err
	}
	return nil
}

func (o *OCO) sibling(clientID string) string {
	if clientID == o.tpID {
		return o.stopID
	}
	return o.tpID
}

func (o *OCO) OnOrderUpdate(ctx context.Context, ord domain.Order) {
	switch ord.ClientID {
	case o.tpID:
		o.tpStatus = ord.Status
	case o.stopID:
		o.stopStatus = ord.Status
	default:
		return
	}
	if o.status.IsTerminal() {
		return
	}

	filled := ord.Status == domain.StatusFilled || ord.Status == domain.StatusPartiallyFilled

	switch o.phase {
	case ocoArmed:
		switch {
		case filled:
			o.phase = ocoResolving
			o.winner = ord.ClientID
			o.env.Logger.Info("oco leg filled, cancelling sibling",
				slog.String("strategy_id", o.id),
				slog.String("winner", ord.ClientID))
			if err := o.env.Orders.Cancel(ctx, o.sibling(ord.ClientID)); err != nil {
				o.fail(fmt.Sprintf("sibling cancel request failed: %v", err))
			}
		case ord.Status == domain.StatusRejected:
			// One leg never made it on book; cancel the other and fail.
			o.phase = ocoResolving
			o.failCause = fmt.Sprintf("leg rejected: %s", ord.RejectReason)
			if err := o.env.Orders.Cancel(ctx, o.sibling(ord.ClientID)); err != nil {
				o.fail(o.failCause)
			}
		case ord.Status == domain.StatusCanceled:
			// Cancelled out from under us (manual intervention).
			o.phase = ocoResolving
			if err := o.env.Orders.Cancel(ctx, o.sibling(ord.ClientID)); err != nil {
				o.fail(fmt.Sprintf("sibling cancel request failed: %v", err))
			}
		}
	case ocoResolving:
		// Both legs filling is a race at the exchange: the second fill
		// is a legitimate execution and must not re-trigger anything.
		if ord.Status == domain.StatusFilled && ord.ClientID != o.winner {
			o.env.Logger.Warn("both oco legs filled",
				slog.String("strategy_id", o.id),
				slog.String("second_fill", ord.ClientID))
		}
		o.resolveIfDone()
	}
}

// resolveIfDone retires the instance once both legs are terminal.
func (o *OCO) resolveIfDone() {
	if !o.tpStatus.IsTerminal() || !o.stopStatus.IsTerminal() {
		return
	}
	switch {
	case o.failCause != "":
		o.status = domain.StrategyFailed
	case o.status == domain.StrategyCompleting:
		o.status = domain.StrategyCanceled
	case o.winner != "":
		o.status = domain.StrategyCompleted
	default:
		o.status = domain.StrategyCanceled
	}
}

func (o *OCO) OnCancelResult(ctx context.Context, ev event.CancelResultEvent) {
	if o.status.IsTerminal() {
		return
	}
	if ev.Err != "" {
		// Bounded retries exhausted with a leg possibly still resting.
		// Manual reconciliation is required; never pretend it resolved.
		o.fail(fmt.Sprintf("cancel of %s failed: %s", ev.ClientID, ev.Err))
		return
	}
	if ev.Outcome == domain.CancelNotFound {
		// Treat as terminal on the exchange side.
		switch ev.ClientID {
		case o.tpID:
			o.tpStatus = domain.StatusCanceled
		case o.stopID:
			o.stopStatus = domain.StatusCanceled
		}
		o.resolveIfDone()
	}
}

func (o *OCO) OnPriceTick(ctx context.Context, price quant.PriceMicros) {}

func (o *OCO) OnTimer(ctx context.Context) {}

func (o *OCO) Cancel(ctx context.Context) {
	if o.status.IsTerminal() || o.status == domain.StrategyCompleting {
		return
	}
	o.status = domain.StrategyCompleting
	for _, id := range []string{o.tpID, o.stopID} {
		if err := o.env.Orders.Cancel(ctx, id); err != nil {
			o.env.Logger.Warn("cancel request failed",
				slog.String("strategy_id", o.id),
				slog.String("client_id", id),
				slog.Any("error", err))
		}
	}
}
