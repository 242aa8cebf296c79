package strategy

import (
	"fmt"
	"log"

	"autotrader/internal/indicators"
)

const (
	momentumHistory = 100
	macdHistoryMax  = 50
	trendWindow     = 20
	slopeDeadBand   = 0.001
)

// Momentum follows trends using RSI, MACD, and a least-squares trend slope.
// All three must agree before a trade signal is emitted.
type Momentum struct {
	base

	priceHistory    []float64
	volumeHistory   []float64
	rsiHistory      []float64
	macdHistory     []float64
	currentPosition float64
	trend           string // "up", "down", or ""
}

// NewMomentum builds an uninitialized momentum strategy.
func NewMomentum(id, symbol string, cfg Config) *Momentum {
	return &Momentum{base: newBase(id, TypeMomentum, symbol, cfg)}
}

// Initialize clears rolling state.
func (m *Momentum) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceHistory = m.priceHistory[:0]
	m.volumeHistory = m.volumeHistory[:0]
	m.rsiHistory = m.rsiHistory[:0]
	m.macdHistory = m.macdHistory[:0]
	m.trend = ""
	log.Printf("strategy %s: momentum initialized", m.id)
	return nil
}

// Execute updates the indicator state and emits BUY or SELL only when RSI,
// MACD, and trend direction all line up.
func (m *Momentum) Execute(snap MarketSnapshot) Signal {
	if !m.Running() || snap.Price <= 0 {
		return SignalNone
	}
	cfg := m.config()
	rsiPeriod := int(cfg.Get("rsi_period", 14))
	macdFast := int(cfg.Get("macd_fast", 12))
	macdSlow := int(cfg.Get("macd_slow", 26))
	macdSignalPeriod := int(cfg.Get("macd_signal", 9))

	m.mu.Lock()
	m.priceHistory = appendBounded(m.priceHistory, snap.Price, momentumHistory)
	m.volumeHistory = appendBounded(m.volumeHistory, snap.Volume, momentumHistory)

	minPeriods := rsiPeriod
	if macdFast > minPeriods {
		minPeriods = macdFast
	}
	if macdSlow > minPeriods {
		minPeriods = macdSlow
	}
	if len(m.priceHistory) < minPeriods {
		m.mu.Unlock()
		return SignalNone
	}

	rsi := indicators.RSI(m.priceHistory, rsiPeriod)
	macdLine := indicators.MACD(m.priceHistory, macdFast, macdSlow)
	signalLine, haveSignal := indicators.SignalLine(append(m.macdHistory, macdLine), macdSignalPeriod)

	m.rsiHistory = appendBounded(m.rsiHistory, rsi, macdHistoryMax)
	m.macdHistory = appendBounded(m.macdHistory, macdLine, macdHistoryMax)

	if len(m.priceHistory) >= trendWindow {
		slope := indicators.Slope(m.priceHistory[len(m.priceHistory)-trendWindow:])
		switch {
		case slope > slopeDeadBand:
			m.trend = "up"
		case slope < -slopeDeadBand:
			m.trend = "down"
		default:
			m.trend = ""
		}
	}

	rsiOversold := cfg.Get("rsi_oversold", 30)
	rsiOverbought := cfg.Get("rsi_overbought", 70)
	maxPosition := cfg.Get("max_position", 1000)

	macdBullish := haveSignal && macdLine > signalLine
	macdBearish := haveSignal && macdLine < signalLine

	sig := SignalHold
	switch {
	case rsi < rsiOversold && macdBullish && m.trend == "up" && m.currentPosition < maxPosition:
		sig = SignalBuy
	case rsi > rsiOverbought && macdBearish && m.trend == "down" && m.currentPosition > -maxPosition:
		sig = SignalSell
	}
	m.mu.Unlock()

	if sig == SignalBuy || sig == SignalSell {
		m.recordTrade(0)
	}
	return sig
}

// CalculatePositionSize scales by RSI extremity and trend alignment, then
// clamps the position to ±max_position.
func (m *Momentum) CalculatePositionSize(sig Signal, snap MarketSnapshot) float64 {
	if snap.Price <= 0 {
		return 0
	}
	cfg := m.config()
	quantity := cfg.Get("base_amount", 100) / snap.Price
	maxPosition := cfg.Get("max_position", 1000)

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.rsiHistory) > 0 {
		rsi := m.rsiHistory[len(m.rsiHistory)-1]
		if rsi < 20 || rsi > 80 {
			quantity *= 1.5
		} else if rsi > 40 && rsi < 60 {
			quantity *= 0.7
		}
	}
	if (m.trend == "up" && sig == SignalBuy) || (m.trend == "down" && sig == SignalSell) {
		quantity *= 1.2
	}

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

// ValidateConfig enforces period ordering and RSI threshold bounds.
func (m *Momentum) ValidateConfig() error {
	cfg := m.config()
	if err := requireFields(cfg, "rsi_period", "macd_fast", "macd_slow", "macd_signal",
		"rsi_oversold", "rsi_overbought", "base_amount"); err != nil {
		return err
	}
	if cfg["rsi_period"] <= 0 || cfg["macd_fast"] <= 0 || cfg["macd_slow"] <= 0 || cfg["macd_signal"] <= 0 {
		return fmt.Errorf("momentum: all periods must be positive")
	}
	if cfg["macd_fast"] >= cfg["macd_slow"] {
		return fmt.Errorf("momentum: macd_fast must be less than macd_slow")
	}
	if cfg["rsi_oversold"] >= cfg["rsi_overbought"] {
		return fmt.Errorf("momentum: rsi_oversold must be less than rsi_overbought")
	}
	if cfg["rsi_oversold"] < 0 || cfg["rsi_overbought"] > 100 {
		return fmt.Errorf("momentum: RSI thresholds must be within [0,100]")
	}
	if cfg["base_amount"] <= 0 {
		return fmt.Errorf("momentum: base_amount must be positive")
	}
	return nil
}

func (m *Momentum) UpdateConfig(cfg Config) error {
	return m.updateConfig(cfg, m.ValidateConfig)
}

func (m *Momentum) CurrentPosition() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentPosition
}

// Metrics reports the latest indicator readings.
func (m *Momentum) Metrics() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]float64{
		"price_history_length": float64(len(m.priceHistory)),
		"current_position":     m.currentPosition,
	}
	if len(m.rsiHistory) > 0 {
		out["current_rsi"] = m.rsiHistory[len(m.rsiHistory)-1]
	}
	if len(m.macdHistory) > 0 {
		out["current_macd"] = m.macdHistory[len(m.macdHistory)-1]
	}
	switch m.trend {
	case "up":
		out["trend"] = 1
	case "down":
		out["trend"] = -1
	default:
		out["trend"] = 0
	}
	return out
}

func appendBounded(s []float64, v float64, max int) []float64 {
	s = append(s, v)
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}
