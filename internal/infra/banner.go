package infra

import (
	"fmt"
	"strings"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintBanner displays the startup banner with mode-specific warnings.
func PrintBanner(cfg *Config) {
	mode := strings.ToUpper(cfg.Trading.Mode)

	color := ColorCyan
	modeDesc := "INTERNAL SIMULATION"

	switch mode {
	case "REAL":
		color = ColorRed
		modeDesc = "REAL MONEY TRADING"
	case "DEMO":
		color = ColorYellow
		modeDesc = "TESTNET (PLAY MONEY)"
	}

	fmt.Println()
	fmt.Printf("%s#########################################################%s\n", color, ColorReset)
	fmt.Printf("%s#  Binance Futures Order Bot                            #%s\n", color, ColorReset)
	fmt.Printf("%s#  MODE:    %-44s #%s\n", color, mode, ColorReset)
	fmt.Printf("%s#  TYPE:    %-44s #%s\n", color, modeDesc, ColorReset)
	fmt.Printf("%s#  VERSION: %-44s #%s\n", color, cfg.App.Version, ColorReset)

	if mode == "REAL" {
		fmt.Printf("%s#  WARNING: YOU ARE TRADING WITH REAL MONEY             #%s\n", ColorRed, ColorReset)
		fmt.Printf("%s#  VERIFY YOUR STRATEGY IN DEMO FIRST                   #%s\n", ColorRed, ColorReset)
	}

	fmt.Printf("%s#########################################################%s\n", color, ColorReset)
	fmt.Println()
}
