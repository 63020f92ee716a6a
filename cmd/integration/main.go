package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/engine"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/internal/gateway"
	"github.com/makwana23-Harshil/binance-bot/internal/infra"
	"github.com/makwana23-Harshil/binance-bot/internal/ledger"
	"github.com/makwana23-Harshil/binance-bot/internal/storage"
	"github.com/makwana23-Harshil/binance-bot/internal/strategy"
	"github.com/makwana23-Harshil/binance-bot/internal/supervisor"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// End-to-end smoke run against the paper gateway: synthetic ticks drive
// a stop trigger, a grid round trip, and a TWAP schedule through the
// full dispatcher loop. No network, no keys.
func main() {
	defer infra.Recover()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	slog.Info("🚀 Starting paper integration run...")

	dir, err := os.MkdirTemp("", "paper-integration-*")
	if err != nil {
		fatal("temp dir", err)
	}
	defer os.RemoveAll(dir)

	store, err := storage.NewStore(filepath.Join(dir, "orders.db"))
	if err != nil {
		fatal("store", err)
	}
	defer store.Close()

	var seq uint64
	inbox := make(chan event.Event, 256)
	paper := gateway.NewPaper(inbox, &seq)

	retry := infra.NewRetryPolicy(
		infra.NewRateLimiter(50, 100),
		infra.DefaultCircuitBreaker("paper"),
		3,
	)
	led := ledger.New(store, paper, retry, inbox, &seq, logger, 5*time.Second, 5*time.Second)

	var d *engine.Dispatcher
	env := strategy.Env{
		Orders: led,
		Timer:  func(id string, delay time.Duration) { d.Schedule(id, delay) },
		Emit:   func(ev event.Event) { d.Emit(ev) },
		Base:   func() event.BaseEvent { return d.Base() },
		Logger: logger,
	}
	sv := supervisor.New(env, store, led, logger)
	d = engine.New(inbox, led, sv, &seq, logger)
	d.SetTickListener(paper.UpdatePrice)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	tick := func(price float64) {
		ev := event.AcquirePriceTickEvent()
		ev.BaseEvent = d.Base()
		ev.Symbol = "BTCUSDT"
		ev.PriceMicros = quant.ToPriceMicros(price)
		inbox <- ev
		time.Sleep(50 * time.Millisecond)
	}

	// Seed a price so market orders have something to fill at.
	tick(65000)

	// 1. Single market buy: fills immediately at the last tick.
	singleID := create(ctx, sv, domain.StrategySingle, domain.SingleParams{
		Side:    domain.SideBuy,
		Kind:    domain.KindMarket,
		QtySats: quant.ToQtySats(0.01),
	})

	// 2. Stop sell: armed at 64,000, limit 63,900.
	stopID := create(ctx, sv, domain.StrategyStop, domain.StopParams{
		Side:             domain.SideSell,
		QtySats:          quant.ToQtySats(0.01),
		StopPriceMicros:  quant.ToPriceMicros(64000),
		LimitPriceMicros: quant.ToPriceMicros(63900),
		ReduceOnly:       true,
	})

	// 3. Grid across 63k-67k.
	gridID := create(ctx, sv, domain.StrategyGrid, domain.GridParams{
		LowerMicros:    quant.ToPriceMicros(63000),
		UpperMicros:    quant.ToPriceMicros(67000),
		LevelCount:     5,
		QtyPerLevel:    quant.ToQtySats(0.005),
		SeedPriceMicro: quant.ToPriceMicros(65000),
	})

	// 4. TWAP: 5 market slices, 200ms apart.
	twapID := create(ctx, sv, domain.StrategyTWAP, domain.TWAPParams{
		Side:           domain.SideBuy,
		TotalQtySats:   quant.ToQtySats(0.05),
		SliceCount:     5,
		IntervalMicros: (200 * time.Millisecond).Microseconds(),
		ChildKind:      domain.KindMarket,
	})

	// Walk the price down through the stop trigger and the lower grid
	// levels, then back up.
	for _, p := range []float64{64800, 64200, 63950, 63800, 64100, 65100, 66200} {
		tick(p)
	}

	// Give the TWAP schedule time to finish all slices.
	time.Sleep(1500 * time.Millisecond)

	for _, id := range []string{singleID, stopID, gridID, twapID} {
		snap, err := sv.Status(ctx, id)
		if err != nil {
			fatal("status", err)
		}
		fmt.Printf("  %-6s %-10s %s\n", snap.Kind, snap.Status, snap.ID)
		if snap.FailCause != "" {
			fmt.Printf("         cause: %s\n", snap.FailCause)
		}
	}

	if err := sv.CancelStrategy(ctx, gridID); err != nil {
		fatal("cancel grid", err)
	}
	time.Sleep(300 * time.Millisecond)

	snap, _ := sv.Status(ctx, gridID)
	fmt.Printf("  grid after cancel: %s\n", snap.Status)

	slog.Info("✅ Paper integration run complete")
}

func create[P any](ctx context.Context, sv *supervisor.Supervisor, kind domain.StrategyKind, params P) string {
	raw, err := json.Marshal(params)
	if err != nil {
		fatal("marshal params", err)
	}
	id, err := sv.Create(ctx, kind, "BTCUSDT", raw)
	if err != nil {
		fatal(fmt.Sprintf("create %s", kind), err)
	}
	slog.Info("strategy created", slog.String("kind", string(kind)), slog.String("id", id))
	return id
}

func fatal(what string, err error) {
	slog.Error("❌ "+what, slog.Any("error", err))
	os.Exit(1)
}
