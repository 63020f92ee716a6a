package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every application setting. Secrets may be overridden by
// environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode    string   `yaml:"mode"` // PAPER, DEMO, REAL
		Symbols []string `yaml:"symbols"`
	} `yaml:"trading"`

	API struct {
		Binance struct {
			RestURL   string `yaml:"rest_url"`
			WSURL     string `yaml:"ws_url"`
			AccessKey string `yaml:"access_key"`
			SecretKey string `yaml:"secret_key"`
		} `yaml:"binance"`
	} `yaml:"api"`

	Engine struct {
		InboxSize          int     `yaml:"inbox_size"`
		GatewayTimeoutMS   int     `yaml:"gateway_timeout_ms"`
		CancelBudgetMS     int     `yaml:"cancel_budget_ms"`
		MaxSubmitAttempts  int     `yaml:"max_submit_attempts"`
		RateLimitBurst     int     `yaml:"rate_limit_burst"`
		RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	} `yaml:"engine"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// GatewayTimeout is the per-call timeout for a single gateway request
// including retries.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Engine.GatewayTimeoutMS) * time.Millisecond
}

// CancelBudget caps the total retry duration of one cancellation request,
// so a strategy-level cancel completes (or fails) in bounded time.
func (c *Config) CancelBudget() time.Duration {
	return time.Duration(c.Engine.CancelBudgetMS) * time.Millisecond
}

// LoadConfig reads and parses the config file, applies environment
// overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; real deployments export the variables directly.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Trading.Mode == "" {
		c.Trading.Mode = "PAPER"
	}
	if c.Engine.InboxSize <= 0 {
		c.Engine.InboxSize = 1024
	}
	if c.Engine.GatewayTimeoutMS <= 0 {
		c.Engine.GatewayTimeoutMS = 10000
	}
	if c.Engine.CancelBudgetMS <= 0 {
		c.Engine.CancelBudgetMS = 15000
	}
	if c.Engine.MaxSubmitAttempts <= 0 {
		c.Engine.MaxSubmitAttempts = 5
	}
	if c.Engine.RateLimitBurst <= 0 {
		c.Engine.RateLimitBurst = 5
	}
	if c.Engine.RateLimitPerSecond <= 0 {
		c.Engine.RateLimitPerSecond = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration validity and normalizes the trading
// mode to its canonical uppercase form.
func (c *Config) Validate() error {
	c.Trading.Mode = strings.ToUpper(c.Trading.Mode)
	switch c.Trading.Mode {
	case "PAPER", "DEMO", "REAL":
	default:
		return fmt.Errorf("unknown trading mode: %s", c.Trading.Mode)
	}

	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("at least one trading symbol is required")
	}

	if c.Trading.Mode != "PAPER" {
		if c.API.Binance.RestURL == "" {
			return fmt.Errorf("binance rest_url is required in %s mode", c.Trading.Mode)
		}
		ws := c.API.Binance.WSURL
		if !strings.HasPrefix(ws, "ws://") && !strings.HasPrefix(ws, "wss://") {
			return fmt.Errorf("invalid Binance WS URL: %s", ws)
		}
	}

	return nil
}

// overrideWithEnv applies environment variables over file values.
// Environment wins: secrets should never live in the config file.
func overrideWithEnv(cfg *Config) {
	if cfg.API.Binance.SecretKey != "" {
		fmt.Println("SECURITY WARNING: API secret found in config file.")
		fmt.Println("  Prefer environment variables: BOT_BINANCE_KEY, BOT_BINANCE_SECRET")
	}

	if key := os.Getenv("BOT_BINANCE_KEY"); key != "" {
		cfg.API.Binance.AccessKey = key
	}
	if secret := os.Getenv("BOT_BINANCE_SECRET"); secret != "" {
		cfg.API.Binance.SecretKey = secret
	}
	if mode := os.Getenv("BOT_TRADING_MODE"); mode != "" {
		cfg.Trading.Mode = mode
	}
}
