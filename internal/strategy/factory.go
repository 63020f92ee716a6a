package strategy

import (
	"encoding/json"
	"fmt"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
)

// New builds a fresh strategy of the given kind from raw parameters.
// Parameter problems surface as ErrInvalidParameters before any order
// is submitted.
func New(env Env, id string, kind domain.StrategyKind, symbol string, params json.RawMessage) (Strategy, error) {
	switch kind {
	case domain.StrategySingle:
		var p domain.SingleParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidParameters, err)
		}
		return NewSingle(env, id, symbol, p)
	case domain.StrategyStop:
		var p domain.StopParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidParameters, err)
		}
		return NewStop(env, id, symbol, p)
	case domain.StrategyOCO:
		var p domain.OCOParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidParameters, err)
		}
		return NewOCO(env, id, symbol, p)
	case domain.StrategyTWAP:
		var p domain.TWAPParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidParameters, err)
		}
		return NewTWAP(env, id, symbol, p)
	case domain.StrategyGrid:
		var p domain.GridParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidParameters, err)
		}
		return NewGrid(env, id, symbol, p)
	default:
		return nil, fmt.Errorf("%w: unknown strategy kind %q", domain.ErrInvalidParameters, kind)
	}
}

// Restore rebuilds a live strategy from its persisted record.
func Restore(env Env, rec domain.StrategyRecord) (Strategy, error) {
	switch rec.Kind {
	case domain.StrategySingle:
		return RestoreSingle(env, rec)
	case domain.StrategyStop:
		return RestoreStop(env, rec)
	case domain.StrategyOCO:
		return RestoreOCO(env, rec)
	case domain.StrategyTWAP:
		return RestoreTWAP(env, rec)
	case domain.StrategyGrid:
		return RestoreGrid(env, rec)
	default:
		return nil, fmt.Errorf("%w: unknown strategy kind %q", domain.ErrInternal, rec.Kind)
	}
}
