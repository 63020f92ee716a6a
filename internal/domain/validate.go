package domain

import (
	"fmt"
	"regexp"

	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// symbolPattern matches USDT-M futures pairs like BTCUSDT, ETHUSDT.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}(USDT|USDC|BUSD)$`)

// minQtySats holds exchange minimum order sizes per symbol.
// Unknown symbols fall back to the default.
var minQtySats = map[string]quant.QtySats{
	"BTCUSDT": quant.ToQtySats(0.001),
	"ETHUSDT": quant.ToQtySats(0.01),
	"BNBUSDT": quant.ToQtySats(0.1),
	"ADAUSDT": quant.ToQtySats(1),
	"XRPUSDT": quant.ToQtySats(1),
}

const defaultMinQtySats = quant.QtySats(100000) // 0.001

// priceStepMicros holds the price tick size per symbol.
var priceStepMicros = map[string]quant.PriceMicros{
	"BTCUSDT": quant.ToPriceMicros(0.01),
	"ETHUSDT": quant.ToPriceMicros(0.01),
	"BNBUSDT": quant.ToPriceMicros(0.001),
	"ADAUSDT": quant.ToPriceMicros(0.00001),
	"XRPUSDT": quant.ToPriceMicros(0.0001),
}

const defaultPriceStepMicros = quant.PriceMicros(10000) // 0.01

// ValidateSymbol rejects malformed trading pairs before any gateway call.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol is empty", ErrInvalidParameters)
	}
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("%w: invalid symbol format %q", ErrInvalidParameters, symbol)
	}
	return nil
}

// ValidateQty enforces positive quantity and the per-symbol exchange minimum.
func ValidateQty(symbol string, qty quant.QtySats) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidParameters)
	}
	min, ok := minQtySats[symbol]
	if !ok {
		min = defaultMinQtySats
	}
	if qty < min {
		return fmt.Errorf("%w: quantity %s below minimum %s for %s",
			ErrInvalidParameters, qty, min, symbol)
	}
	return nil
}

// SnapPrice rounds a price to the symbol's nearest tick so computed
// prices (grid levels, derived limits) pass ValidatePrice.
func SnapPrice(symbol string, price quant.PriceMicros) quant.PriceMicros {
	step, ok := priceStepMicros[symbol]
	if !ok {
		step = defaultPriceStepMicros
	}
	if price <= 0 {
		return price
	}
	return (price + step/2) / step * step
}

// ValidatePrice enforces positive price aligned to the symbol's tick size.
func ValidatePrice(symbol string, price quant.PriceMicros) error {
	if price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidParameters)
	}
	step, ok := priceStepMicros[symbol]
	if !ok {
		step = defaultPriceStepMicros
	}
	if price%step != 0 {
		return fmt.Errorf("%w: price %s not aligned to tick size %s for %s",
			ErrInvalidParameters, price, step, symbol)
	}
	return nil
}

// ValidateOrder checks a primitive order end to end.
func ValidateOrder(o Order) error {
	if err := ValidateSymbol(o.Symbol); err != nil {
		return err
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidParameters, o.Side)
	}
	if err := ValidateQty(o.Symbol, o.QtySats); err != nil {
		return err
	}
	switch o.Kind {
	case KindMarket:
	case KindLimit:
		if err := ValidatePrice(o.Symbol, o.LimitPriceMicros); err != nil {
			return err
		}
	case KindStopLimit:
		if err := ValidatePrice(o.Symbol, o.LimitPriceMicros); err != nil {
			return err
		}
		if err := ValidatePrice(o.Symbol, o.StopPriceMicros); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown order kind %q", ErrInvalidParameters, o.Kind)
	}
	return nil
}
