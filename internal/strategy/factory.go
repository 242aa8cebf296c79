package strategy

import (
	"fmt"

	"github.com/google/uuid"
)

// New constructs a strategy variant by type. An empty id gets a fresh UUID.
func New(typ Type, id, symbol string, cfg Config) (Strategy, error) {
	if id == "" {
		id = uuid.NewString()
	}
	switch typ {
	case TypeGrid:
		return NewGrid(id, symbol, cfg), nil
	case TypeMeanReversion:
		return NewMeanReversion(id, symbol, cfg), nil
	case TypeMomentum:
		return NewMomentum(id, symbol, cfg), nil
	default:
		return nil, fmt.Errorf("unknown strategy type %q", typ)
	}
}

// AvailableTypes lists the registered strategy variants.
func AvailableTypes() []Type {
	return []Type{TypeGrid, TypeMeanReversion, TypeMomentum}
}

// DefaultConfig returns the baseline parameter set for a strategy type,
// suitable as a starting point for user configuration.
func DefaultConfig(typ Type) Config {
	switch typ {
	case TypeGrid:
		return Config{
			"base_price":         0,
			"grid_spacing":       0,
			"num_levels":         10,
			"base_amount":        100,
			"max_position":       1000,
			"execution_interval": 60,
		}
	case TypeMeanReversion:
		return Config{
			"short_period":       20,
			"long_period":        50,
			"buy_threshold":      -0.02,
			"sell_threshold":     0.02,
			"base_amount":        100,
			"max_position":       1000,
			"execution_interval": 60,
		}
	case TypeMomentum:
		return Config{
			"rsi_period":         14,
			"macd_fast":          12,
			"macd_slow":          26,
			"macd_signal":        9,
			"rsi_oversold":       30,
			"rsi_overbought":     70,
			"base_amount":        100,
			"max_position":       1000,
			"execution_interval": 60,
		}
	default:
		return Config{}
	}
}
