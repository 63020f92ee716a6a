package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
	"github.com/makwana23-Harshil/binance-bot/pkg/safe"
)

// Grid maintains a ladder of resting limit orders across a price range.
// Levels below the seed price rest as buys, levels above as sells; a
// filled level is re-armed with the opposite side at the same price so
// each round trip realizes the level spread. At most one active order
// per level at any time.
type Grid struct {
	core
	params domain.GridParams

	levels []domain.GridLevel
	byID   map[string]int // active client id -> level index
}

type gridState struct {
	Levels []domain.GridLevel `json:"levels"`
}

func NewGrid(env Env, id, symbol string, p domain.GridParams) (*Grid, error) {
	if p.LevelCount < 2 {
		return nil, fmt.Errorf("%w: grid needs at least 2 levels", domain.ErrInvalidParameters)
	}
	if p.LowerMicros <= 0 || p.UpperMicros <= p.LowerMicros {
		return nil, fmt.Errorf("%w: grid bounds must satisfy 0 < lower < upper", domain.ErrInvalidParameters)
	}
	if p.SeedPriceMicro <= 0 {
		return nil, fmt.Errorf("%w: grid seed price is required", domain.ErrInvalidParameters)
	}
	if err := domain.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := domain.ValidateQty(symbol, p.QtyPerLevel); err != nil {
		return nil, err
	}
	if p.Spacing == "" {
		p.Spacing = domain.SpacingArithmetic
	}

	g := &Grid{
		core:   newCore(env, id, symbol),
		params: p,
		byID:   make(map[string]int),
	}
	for _, price := range computeLevels(symbol, p) {
		lv := domain.GridLevel{PriceMicros: price}
		switch {
		case price < p.SeedPriceMicro:
			lv.Side = domain.SideBuy
		case price > p.SeedPriceMicro:
			lv.Side = domain.SideSell
		default:
			// A level exactly at the seed price has no natural side.
			lv.Dormant = true
		}
		g.levels = append(g.levels, lv)
	}
	return g, nil
}

func RestoreGrid(env Env, rec domain.StrategyRecord) (*Grid, error) {
	g := &Grid{byID: make(map[string]int)}
	g.env = env
	g.restoreCore(rec)
	if err := json.Unmarshal(rec.Params, &g.params); err != nil {
		return nil, fmt.Errorf("%w: grid params: %v", domain.ErrInternal, err)
	}
	var st gridState
	if err := json.Unmarshal(rec.State, &st); err != nil {
		return nil, fmt.Errorf("%w: grid state: %v", domain.ErrInternal, err)
	}
	g.levels = st.Levels
	for i, lv := range g.levels {
		if lv.ActiveClientID != "" {
			g.byID[lv.ActiveClientID] = i
		}
	}
	return g, nil
}

// computeLevels spreads LevelCount prices across [lower, upper].
// Arithmetic spacing keeps a constant price step; geometric keeps a
// constant ratio, which matches percentage-based volatility better on
// wide ranges. Every level is snapped to the symbol's tick size so the
// resting orders pass price validation.
func computeLevels(symbol string, p domain.GridParams) []quant.PriceMicros {
	n := p.LevelCount
	prices := make([]quant.PriceMicros, 0, n)

	if p.Spacing == domain.SpacingGeometric {
		ratio := math.Pow(float64(p.UpperMicros)/float64(p.LowerMicros), 1/float64(n-1))
		price := float64(p.LowerMicros)
		for i := 0; i < n; i++ {
			if i == n-1 {
				prices = append(prices, domain.SnapPrice(symbol, p.UpperMicros))
				break
			}
			prices = append(prices, domain.SnapPrice(symbol, quant.PriceMicros(math.Round(price))))
			price *= ratio
		}
		return prices
	}

	step := safe.SafeDiv(safe.SafeSub(int64(p.UpperMicros), int64(p.LowerMicros)), int64(n-1))
	for i := 0; i < n; i++ {
		if i == n-1 {
			prices = append(prices, domain.SnapPrice(symbol, p.UpperMicros))
			break
		}
		level := safe.SafeAdd(int64(p.LowerMicros), safe.SafeMul(int64(i), step))
		prices = append(prices, domain.SnapPrice(symbol, quant.PriceMicros(level)))
	}
	return prices
}

func (g *Grid) Record() domain.StrategyRecord {
	return g.record(domain.StrategyGrid, g.params, gridState{Levels: g.levels})
}

func (g *Grid) Start(ctx context.Context) error {
	for i := range g.levels {
		if g.levels[i].Dormant {
			continue
		}
		if err := g.placeLevel(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

func (g *Grid) placeLevel(ctx context.Context, i int) error {
	lv := &g.levels[i]
	id, err := g.env.Orders.Submit(ctx, domain.Order{
		StrategyID:       g.id,
		Symbol:           g.symbol,
		Side:             lv.Side,
		Kind:             domain.KindLimit,
		QtySats:          g.params.QtyPerLevel,
		LimitPriceMicros: lv.PriceMicros,
	})
	if err != nil {
		return err
	}
	lv.ActiveClientID = id
	g.byID[id] = i
	return nil
}

func (g *Grid) OnOrderUpdate(ctx context.Context, o domain.Order) {
	i, ok := g.byID[o.ClientID]
	if !ok || g.status.IsTerminal() {
		return
	}
	lv := &g.levels[i]

	switch o.Status {
	case domain.StatusPartiallyFilled:
		// Replacement fires on full fill only.
	case domain.StatusFilled:
		delete(g.byID, o.ClientID)
		lv.ActiveClientID = ""
		lv.FilledCount++
		g.rearmLevel(ctx, i)
	case domain.StatusCanceled:
		delete(g.byID, o.ClientID)
		lv.ActiveClientID = ""
		if g.status == domain.StrategyCompleting {
			g.finishIfDrained()
			return
		}
		// Cancelled out from under us: restore the resting order so the
		// level keeps exactly one active order.
		if err := g.placeLevel(ctx, i); err != nil {
			g.env.Logger.Warn("failed to restore grid level",
				slog.String("strategy_id", g.id),
				slog.String("price", lv.PriceMicros.String()),
				slog.Any("error", err))
			lv.Dormant = true
		}
	case domain.StatusRejected:
		delete(g.byID, o.ClientID)
		lv.ActiveClientID = ""
		lv.Dormant = true
		g.env.Logger.Warn("grid level order rejected, level dormant",
			slog.String("strategy_id", g.id),
			slog.String("price", lv.PriceMicros.String()),
			slog.String("reason", o.RejectReason))
		if g.status == domain.StrategyCompleting {
			g.finishIfDrained()
		}
	}
}

// rearmLevel places the opposite-side order at the filled level's
// price.
func (g *Grid) rearmLevel(ctx context.Context, i int) {
	lv := &g.levels[i]
	lv.Side = lv.Side.Opposite()

	// The level price is inside the range by construction; the guard
	// covers restored state from older runs.
	if lv.PriceMicros < g.params.LowerMicros || lv.PriceMicros > g.params.UpperMicros {
		lv.Dormant = true
		g.env.Logger.Info("grid edge exhausted, level dormant",
			slog.String("strategy_id", g.id),
			slog.String("price", lv.PriceMicros.String()))
		g.env.Emit(event.GridEdgeEvent{
			BaseEvent:   g.env.Base(),
			StrategyID:  g.id,
			PriceMicros: lv.PriceMicros,
		})
		return
	}

	if err := g.placeLevel(ctx, i); err != nil {
		g.env.Logger.Warn("failed to re-arm grid level",
			slog.String("strategy_id", g.id),
			slog.String("price", lv.PriceMicros.String()),
			slog.Any("error", err))
		lv.Dormant = true
	}
}

// finishIfDrained retires a completing grid once no level has an
// active order left.
func (g *Grid) finishIfDrained() {
	if len(g.byID) == 0 {
		g.status = domain.StrategyCanceled
	}
}

func (g *Grid) OnCancelResult(ctx context.Context, ev event.CancelResultEvent) {
	if ev.Err != "" && g.status == domain.StrategyCompleting {
		g.fail(fmt.Sprintf("cancel of %s failed: %s", ev.ClientID, ev.Err))
	}
}

func (g *Grid) OnPriceTick(ctx context.Context, price quant.PriceMicros) {}

func (g *Grid) OnTimer(ctx context.Context) {}

func (g *Grid) Cancel(ctx context.Context) {
	if g.status.IsTerminal() || g.status == domain.StrategyCompleting {
		return
	}
	g.status = domain.StrategyCompleting
	if len(g.byID) == 0 {
		g.status = domain.StrategyCanceled
		return
	}
	for id := range g.byID {
		if err := g.env.Orders.Cancel(ctx, id); err != nil {
			g.env.Logger.Warn("cancel request failed",
				slog.String("strategy_id", g.id),
				slog.String("client_id", id),
				slog.Any("error", err))
		}
	}
}
