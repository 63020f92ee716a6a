package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
	"github.com/makwana23-Harshil/binance-bot/pkg/safe"
)

// maxConsecutiveRejects bounds how many times in a row a slice may be
// rejected before the whole strategy fails.
const maxConsecutiveRejects = 3

// TWAP slices a total quantity into timed child orders. Each tick
// submits remaining/remainingSlices so later slices absorb variance
// from earlier partial fills instead of compounding error. A rejected
// slice is retried at the next tick without advancing the schedule.
type TWAP struct {
	core
	params domain.TWAPParams

	remaining       quant.QtySats
	remainingSlices int
	activeChild     string
	pendingSlice    bool
	consecRejects   int
	submissions     int
	rejections      int
}

type twapState struct {
	Remaining       quant.QtySats `json:"remaining"`
	RemainingSlices int           `json:"remaining_slices"`
	ActiveChild     string        `json:"active_child,omitempty"`
	ConsecRejects   int           `json:"consec_rejects,omitempty"`
	Submissions     int           `json:"submissions"`
	Rejections      int           `json:"rejections"`
}

func NewTWAP(env Env, id, symbol string, p domain.TWAPParams) (*TWAP, error) {
	if p.SliceCount <= 0 {
		return nil, fmt.Errorf("%w: slice count must be positive", domain.ErrInvalidParameters)
	}
	if p.IntervalMicros <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", domain.ErrInvalidParameters)
	}
	if p.ChildKind != domain.KindMarket && p.ChildKind != domain.KindLimit {
		return nil, fmt.Errorf("%w: child kind must be MARKET or LIMIT", domain.ErrInvalidParameters)
	}
	if p.ChildKind == domain.KindLimit && p.LimitPriceMicros <= 0 {
		return nil, fmt.Errorf("%w: limit children need a limit price", domain.ErrInvalidParameters)
	}
	if err := domain.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := domain.ValidateQty(symbol, p.TotalQtySats); err != nil {
		return nil, err
	}
	return &TWAP{
		core:            newCore(env, id, symbol),
		params:          p,
		remaining:       p.TotalQtySats,
		remainingSlices: p.SliceCount,
	}, nil
}

func RestoreTWAP(env Env, rec domain.StrategyRecord) (*TWAP, error) {
	t := &TWAP{}
	t.env = env
	t.restoreCore(rec)
	if err := json.Unmarshal(rec.Params, &t.params); err != nil {
		return nil, fmt.Errorf("%w: twap params: %v", domain.ErrInternal, err)
	}
	var st twapState
	if err := json.Unmarshal(rec.State, &st); err != nil {
		return nil, fmt.Errorf("%w: twap state: %v", domain.ErrInternal, err)
	}
	t.remaining = st.Remaining
	t.remainingSlices = st.RemainingSlices
	t.activeChild = st.ActiveChild
	t.consecRejects = st.ConsecRejects
	t.submissions = st.Submissions
	t.rejections = st.Rejections
	return t, nil
}

func (t *TWAP) Record() domain.StrategyRecord {
	return t.record(domain.StrategyTWAP, t.params, twapState{
		Remaining:       t.remaining,
		RemainingSlices: t.remainingSlices,
		ActiveChild:     t.activeChild,
		ConsecRejects:   t.consecRejects,
		Submissions:     t.submissions,
		Rejections:      t.rejections,
	})
}

func (t *TWAP) interval() time.Duration {
	return time.Duration(t.params.IntervalMicros) * time.Microsecond
}

func (t *TWAP) Start(ctx context.Context) error {
	t.placeSlice(ctx)
	if !t.status.IsTerminal() {
		t.env.Timer(t.id, t.interval())
	}
	return nil
}

// Resume re-arms the slice timer after a restart. The outstanding
// child, if any, is already tracked in state.
func (t *TWAP) Resume() {
	if !t.status.IsTerminal() {
		t.env.Timer(t.id, t.interval())
	}
}

// sliceQty computes the next slice so the final slice absorbs any
// rounding remainder and the shortfall from partial fills.
func (t *TWAP) sliceQty() quant.QtySats {
	if t.remainingSlices <= 1 {
		return t.remaining
	}
	return quant.QtySats(safe.SafeDiv(int64(t.remaining), int64(t.remainingSlices)))
}

func (t *TWAP) placeSlice(ctx context.Context) {
	qty := t.sliceQty()
	if qty <= 0 {
		t.complete()
		return
	}
	id, err := t.env.Orders.Submit(ctx, domain.Order{
		StrategyID:       t.id,
		Symbol:           t.symbol,
		Side:             t.params.Side,
		Kind:             t.params.ChildKind,
		QtySats:          qty,
		LimitPriceMicros: t.params.LimitPriceMicros,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidParameters) {
			t.fail(fmt.Sprintf("slice submission invalid: %v (%s unexecuted)", err, t.remaining.String()))
			return
		}
		t.recordRejection(fmt.Sprintf("slice submission failed: %v", err))
		return
	}
	t.submissions++
	t.activeChild = id
}

func (t *TWAP) recordRejection(cause string) {
	t.rejections++
	t.consecRejects++
	t.env.Logger.Warn("twap slice rejected",
		slog.String("strategy_id", t.id),
		slog.Int("consecutive", t.consecRejects),
		slog.String("cause", cause))
	if t.consecRejects >= maxConsecutiveRejects {
		t.fail(fmt.Sprintf("%d consecutive slice rejections, %s unexecuted: %s",
			t.consecRejects, t.remaining.String(), cause))
	}
}

func (t *TWAP) complete() {
	t.status = domain.StrategyCompleted
	if t.remaining > 0 {
		// Never silently drop an unfilled remainder.
		t.failCause = fmt.Sprintf("completed with %s unexecuted", t.remaining.String())
		t.env.Logger.Warn("twap completed with shortfall",
			slog.String("strategy_id", t.id),
			slog.String("shortfall", t.remaining.String()))
	}
}

func (t *TWAP) OnTimer(ctx context.Context) {
	if t.status.IsTerminal() || t.status == domain.StrategyCompleting {
		return
	}
	if t.activeChild != "" {
		// The previous limit child is still resting: reclaim it and
		// submit the next slice once its terminal fill count is known.
		t.pendingSlice = true
		if err := t.env.Orders.Cancel(ctx, t.activeChild); err != nil {
			t.env.Logger.Warn("failed to reclaim twap child",
				slog.String("strategy_id", t.id),
				slog.Any("error", err))
		}
	} else {
		t.placeSlice(ctx)
	}
	if !t.status.IsTerminal() {
		t.env.Timer(t.id, t.interval())
	}
}

func (t *TWAP) OnOrderUpdate(ctx context.Context, o domain.Order) {
	if o.ClientID != t.activeChild || t.status.IsTerminal() {
		return
	}
	switch o.Status {
	case domain.StatusFilled, domain.StatusCanceled:
		t.remaining -= o.FilledQtySats
		if t.remaining < 0 {
			t.remaining = 0
		}
		t.remainingSlices--
		t.consecRejects = 0
		t.activeChild = ""
	case domain.StatusRejected:
		t.activeChild = ""
		t.recordRejection(o.RejectReason)
	default:
		return
	}

	if t.status == domain.StrategyCompleting {
		t.status = domain.StrategyCanceled
		return
	}
	if t.status.IsTerminal() {
		return
	}
	if t.remaining <= 0 || t.remainingSlices <= 0 {
		t.complete()
		return
	}
	if t.pendingSlice {
		t.pendingSlice = false
		t.placeSlice(ctx)
	}
}

func (t *TWAP) OnCancelResult(ctx context.Context, ev event.CancelResultEvent) {
	if ev.Err != "" && t.status == domain.StrategyCompleting {
		t.fail(fmt.Sprintf("cancel failed: %s", ev.Err))
	}
}

func (t *TWAP) OnPriceTick(ctx context.Context, price quant.PriceMicros) {}

func (t *TWAP) Cancel(ctx context.Context) {
	if t.status.IsTerminal() || t.status == domain.StrategyCompleting {
		return
	}
	if t.activeChild == "" {
		t.status = domain.StrategyCanceled
		return
	}
	t.status = domain.StrategyCompleting
	if err := t.env.Orders.Cancel(ctx, t.activeChild); err != nil {
		t.status = domain.StrategyCanceled
	}
}
