package gateway

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/internal/infra"
	"github.com/makwana23-Harshil/binance-bot/internal/infra/binance"
)

// Mode selects which gateway implementation handles orders.
type Mode string

const (
	ModePaper Mode = "PAPER"
	ModeDemo  Mode = "DEMO"
	ModeReal  Mode = "REAL"
)

// live wraps the REST client with key hygiene on shutdown.
type live struct {
	*binance.Client
	signer *binance.Signer
}

func (l *live) Close() error {
	l.signer.Wipe()
	return nil
}

// New builds the gateway for the configured trading mode. REAL mode
// refuses to start without the CONFIRM_REAL_MONEY environment latch.
func New(cfg *infra.Config, inbox chan<- event.Event, seq *uint64) (domain.Gateway, error) {
	mode := Mode(cfg.Trading.Mode)
	slog.Info("Initializing order gateway", slog.String("mode", string(mode)))

	switch mode {
	case ModePaper:
		return NewPaper(inbox, seq), nil

	case ModeDemo:
		slog.Info("🔒 Connecting to Binance DEMO (Testnet)")
		signer := binance.NewSigner(cfg.API.Binance.AccessKey, cfg.API.Binance.SecretKey)
		return &live{Client: binance.NewClient(binance.TestnetRestURL, signer), signer: signer}, nil

	case ModeReal:
		if os.Getenv("CONFIRM_REAL_MONEY") != "true" {
			return nil, fmt.Errorf("SAFETY_GUARD: real trading requires 'CONFIRM_REAL_MONEY=true' environment variable")
		}
		slog.Info("🚨🚨🚨 Connecting to Binance REAL (Mainnet) 🚨🚨🚨")
		signer := binance.NewSigner(cfg.API.Binance.AccessKey, cfg.API.Binance.SecretKey)
		baseURL := cfg.API.Binance.RestURL
		if baseURL == "" {
			baseURL = binance.MainnetRestURL
		}
		return &live{Client: binance.NewClient(baseURL, signer), signer: signer}, nil

	default:
		return nil, fmt.Errorf("%w: unknown trading mode %q", domain.ErrInvalidParameters, cfg.Trading.Mode)
	}
}
