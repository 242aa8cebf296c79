package strategy

import (
	"fmt"
	"log"
	"math"

	"autotrader/internal/indicators"
)

const meanReversionHistory = 200

// MeanReversion trades deviations of the current price from its long
// simple moving average, with hysteresis so the same signal does not
// repeat on consecutive ticks.
type MeanReversion struct {
	base

	priceHistory    []float64
	currentPosition float64
	lastSignal      Signal
	lastLongSMA     float64
}

// NewMeanReversion builds an uninitialized mean reversion strategy.
func NewMeanReversion(id, symbol string, cfg Config) *MeanReversion {
	return &MeanReversion{base: newBase(id, TypeMeanReversion, symbol, cfg)}
}

// Initialize clears rolling state.
func (m *MeanReversion) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceHistory = m.priceHistory[:0]
	m.lastSignal = SignalNone
	m.lastLongSMA = 0
	log.Printf("strategy %s: mean reversion initialized", m.id)
	return nil
}

// Execute appends the tick to the rolling window and signals when the
// relative deviation from the long SMA breaches a threshold.
func (m *MeanReversion) Execute(snap MarketSnapshot) Signal {
	if !m.Running() || snap.Price <= 0 {
		return SignalNone
	}
	cfg := m.config()
	longPeriod := int(cfg.Get("long_period", 50))

	m.mu.Lock()
	m.priceHistory = append(m.priceHistory, snap.Price)
	if len(m.priceHistory) > meanReversionHistory {
		m.priceHistory = m.priceHistory[len(m.priceHistory)-meanReversionHistory:]
	}
	if len(m.priceHistory) < longPeriod {
		m.mu.Unlock()
		return SignalNone
	}

	longSMA := indicators.SMA(m.priceHistory, longPeriod)
	m.lastLongSMA = longSMA
	deviation := (snap.Price - longSMA) / longSMA

	buyThreshold := cfg.Get("buy_threshold", -0.02)
	sellThreshold := cfg.Get("sell_threshold", 0.02)
	maxPosition := cfg.Get("max_position", 1000)

	var sig Signal
	switch {
	case deviation <= buyThreshold && m.currentPosition < maxPosition:
		if m.lastSignal != SignalBuy {
			sig = SignalBuy
			m.lastSignal = SignalBuy
		}
	case deviation >= sellThreshold && m.currentPosition > -maxPosition:
		if m.lastSignal != SignalSell {
			sig = SignalSell
			m.lastSignal = SignalSell
		}
	default:
		sig = SignalHold
		m.lastSignal = SignalNone
	}
	m.mu.Unlock()

	if sig == SignalBuy || sig == SignalSell {
		m.recordTrade(0)
	}
	return sig
}

// CalculatePositionSize scales base_amount/price by the configured
// deviation magnitude and clamps the position to ±max_position.
func (m *MeanReversion) CalculatePositionSize(sig Signal, snap MarketSnapshot) float64 {
	if snap.Price <= 0 {
		return 0
	}
	cfg := m.config()
	quantity := cfg.Get("base_amount", 100) / snap.Price

	deviation := math.Abs(cfg.Get("buy_threshold", -0.02))
	if deviation > 0.05 {
		quantity *= 1.5
	} else if deviation < 0.01 {
		quantity *= 0.5
	}

	maxPosition := cfg.Get("max_position", 1000)

	m.mu.Lock()
	defer m.mu.Unlock()
	if sig == SignalBuy {
		if m.currentPosition+quantity > maxPosition {
			quantity = maxPosition - m.currentPosition
		}
	} else {
		if m.currentPosition-quantity < -maxPosition {
			quantity = m.currentPosition + maxPosition
		}
	}
	if quantity < 0 {
		quantity = 0
	}
	switch sig {
	case SignalBuy:
		m.currentPosition += quantity
	case SignalSell:
		m.currentPosition -= quantity
	}
	return quantity
}

// ValidateConfig enforces period ordering and threshold signs/bounds.
func (m *MeanReversion) ValidateConfig() error {
	cfg := m.config()
	if err := requireFields(cfg, "short_period", "long_period", "buy_threshold", "sell_threshold", "base_amount"); err != nil {
		return err
	}
	shortPeriod := cfg["short_period"]
	longPeriod := cfg["long_period"]
	buyThreshold := cfg["buy_threshold"]
	sellThreshold := cfg["sell_threshold"]
	baseAmount := cfg["base_amount"]

	if shortPeriod <= 0 || longPeriod <= 0 {
		return fmt.Errorf("mean reversion: periods must be positive")
	}
	if shortPeriod >= longPeriod {
		return fmt.Errorf("mean reversion: short_period must be less than long_period")
	}
	if buyThreshold >= 0 || sellThreshold <= 0 {
		return fmt.Errorf("mean reversion: buy_threshold must be negative and sell_threshold positive")
	}
	if math.Abs(buyThreshold) > 0.5 || math.Abs(sellThreshold) > 0.5 {
		return fmt.Errorf("mean reversion: thresholds must be within ±50%%")
	}
	if baseAmount <= 0 {
		return fmt.Errorf("mean reversion: base_amount must be positive")
	}
	return nil
}

func (m *MeanReversion) UpdateConfig(cfg Config) error {
	return m.updateConfig(cfg, m.ValidateConfig)
}

func (m *MeanReversion) CurrentPosition() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentPosition
}

// Metrics reports annualized volatility, a Sharpe estimate, and the
// current deviation from the long SMA.
func (m *MeanReversion) Metrics() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]float64{
		"price_history_length": float64(len(m.priceHistory)),
		"current_position":     m.currentPosition,
	}
	if len(m.priceHistory) < 2 {
		return out
	}

	returns := make([]float64, 0, len(m.priceHistory)-1)
	for i := 1; i < len(m.priceHistory); i++ {
		returns = append(returns, (m.priceHistory[i]-m.priceHistory[i-1])/m.priceHistory[i-1])
	}
	mean, std := meanStd(returns)
	out["volatility"] = std * math.Sqrt(252)
	if std > 0 {
		out["sharpe_ratio"] = mean / std
	}
	if m.lastLongSMA > 0 {
		out["current_deviation"] = (m.priceHistory[len(m.priceHistory)-1] - m.lastLongSMA) / m.lastLongSMA
	}
	return out
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(values)))
	return mean, std
}
