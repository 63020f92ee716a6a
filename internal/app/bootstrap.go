package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/engine"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/internal/gateway"
	"github.com/makwana23-Harshil/binance-bot/internal/infra"
	"github.com/makwana23-Harshil/binance-bot/internal/infra/binance"
	"github.com/makwana23-Harshil/binance-bot/internal/ledger"
	"github.com/makwana23-Harshil/binance-bot/internal/storage"
	"github.com/makwana23-Harshil/binance-bot/internal/strategy"
	"github.com/makwana23-Harshil/binance-bot/internal/supervisor"
)

// Bootstrap assembles the full order-execution stack: store, gateway,
// ledger, supervisor, dispatcher, and market-data workers.
type Bootstrap struct {
	Config     *infra.Config
	Store      *storage.Store
	Gateway    gateway.Mode
	Ledger     *ledger.Ledger
	Supervisor *supervisor.Supervisor
	Dispatcher *engine.Dispatcher

	gw      domain.Gateway
	inbox   chan event.Event
	seq     uint64
	unlock  func()
	workers []worker
}

// worker is a long-lived stream consumer. Connect starts its internal
// reconnect loop; Disconnect tears the connection down.
type worker interface {
	Connect(ctx context.Context) error
	Disconnect()
}

func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs startup up to a runnable (but not yet running)
// system: after it returns, Resume and Run complete the sequence.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Binance Futures Order Bot...")

	event.Warmup()

	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	mode := strings.ToLower(cfg.Trading.Mode)
	workDir := infra.GetWorkspaceDir()
	dataDir := filepath.Join(workDir, "data", mode)
	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	// One process per data directory: concurrent writers would corrupt
	// the order index.
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	dbPath := filepath.Join(dataDir, "orders.db")
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("✅ Order store initialized (WAL-mode)",
		slog.String("path", dbPath),
		slog.String("mode", mode))

	b.inbox = make(chan event.Event, cfg.Engine.InboxSize)

	gw, err := gateway.New(cfg, b.inbox, &b.seq)
	if err != nil {
		return err
	}
	b.gw = gw
	b.Gateway = gateway.Mode(cfg.Trading.Mode)

	limiter := infra.NewRateLimiter(cfg.Engine.RateLimitBurst, cfg.Engine.RateLimitPerSecond)
	breaker := infra.DefaultCircuitBreaker("gateway")
	retry := infra.NewRetryPolicy(limiter, breaker, cfg.Engine.MaxSubmitAttempts)

	b.Ledger = ledger.New(store, gw, retry, b.inbox, &b.seq, logger,
		cfg.GatewayTimeout(), cfg.CancelBudget())

	// The dispatcher and supervisor reference each other through the
	// strategy Env, so wire the Env with late-bound closures.
	var d *engine.Dispatcher
	env := strategy.Env{
		Orders: b.Ledger,
		Timer:  func(id string, delay time.Duration) { d.Schedule(id, delay) },
		Emit:   func(ev event.Event) { d.Emit(ev) },
		Base:   func() event.BaseEvent { return d.Base() },
		Logger: logger,
	}
	b.Supervisor = supervisor.New(env, store, b.Ledger, logger)
	d = engine.New(b.inbox, b.Ledger, b.Supervisor, &b.seq, logger)
	b.Dispatcher = d

	if paper, ok := gw.(*gateway.Paper); ok {
		d.SetTickListener(paper.UpdatePrice)
	}

	b.buildWorkers(cfg)
	return nil
}

// buildWorkers wires the market-data streams for the configured mode.
// Paper mode still consumes the public mainnet mark-price stream; only
// the private user-data stream needs credentials.
func (b *Bootstrap) buildWorkers(cfg *infra.Config) {
	wsURL := cfg.API.Binance.WSURL
	if wsURL == "" {
		wsURL = binance.MainnetWSURL
	}
	b.workers = append(b.workers,
		binance.NewTickerWorker(wsURL, cfg.Trading.Symbols, b.inbox, &b.seq))

	if b.Gateway != gateway.ModePaper {
		signer := binance.NewSigner(cfg.API.Binance.AccessKey, cfg.API.Binance.SecretKey)
		restURL := cfg.API.Binance.RestURL
		if restURL == "" {
			restURL = binance.MainnetRestURL
		}
		client := binance.NewClient(restURL, signer)
		b.workers = append(b.workers,
			binance.NewUserWorker(wsURL, client, b.inbox, &b.seq))
	}
}

// Resume restores persisted state: hydrate the ledger, reconcile every
// open order against the exchange, then rebuild live strategies.
// Orders are never resubmitted.
func (b *Bootstrap) Resume(ctx context.Context) error {
	if err := b.Ledger.Hydrate(ctx); err != nil {
		return err
	}
	if err := b.Ledger.Reconcile(ctx); err != nil {
		return fmt.Errorf("startup reconciliation: %w", err)
	}
	return b.Supervisor.Resume(ctx)
}

// Run starts the workers and blocks in the dispatcher loop until ctx
// is cancelled.
func (b *Bootstrap) Run(ctx context.Context) error {
	for _, w := range b.workers {
		if err := w.Connect(ctx); err != nil {
			return err
		}
	}
	defer func() {
		for _, w := range b.workers {
			w.Disconnect()
		}
	}()
	return b.Dispatcher.Run(ctx)
}

// Shutdown releases resources in reverse order of acquisition.
func (b *Bootstrap) Shutdown() {
	if b.gw != nil {
		if err := b.gw.Close(); err != nil {
			slog.Warn("gateway close failed", slog.Any("error", err))
		}
	}
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			slog.Warn("store close failed", slog.Any("error", err))
		}
	}
	if b.unlock != nil {
		b.unlock()
	}
	slog.Info("👋 Shutdown complete")
}
