package strategy

import (
	"testing"
)

func momentumConfig() Config {
	return Config{
		"rsi_period":     14,
		"macd_fast":      12,
		"macd_slow":      26,
		"macd_signal":    9,
		"rsi_oversold":   30,
		"rsi_overbought": 70,
		"base_amount":    100,
		"max_position":   1000,
	}
}

func TestMomentumValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(Config)
		wantErr bool
	}{
		{"valid", func(Config) {}, false},
		{"fast >= slow", func(c Config) { c["macd_fast"] = 26 }, true},
		{"oversold >= overbought", func(c Config) { c["rsi_oversold"] = 70 }, true},
		{"overbought above 100", func(c Config) { c["rsi_overbought"] = 101 }, true},
		{"negative oversold", func(c Config) { c["rsi_oversold"] = -1 }, true},
		{"zero period", func(c Config) { c["rsi_period"] = 0 }, true},
		{"missing field", func(c Config) { delete(c, "macd_signal") }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := momentumConfig()
			tt.mutate(cfg)
			m := NewMomentum("mo", "BTCUSDT", cfg)
			err := m.ValidateConfig()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestMomentumRSIStaysBounded(t *testing.T) {
	m := NewMomentum("mo2", "BTCUSDT", momentumConfig())
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	m.SetState(StateActive)

	prices := []float64{
		100, 101, 99, 103, 98, 105, 97, 108, 96, 110,
		95, 112, 94, 115, 93, 118, 92, 120, 91, 123,
		90, 126, 89, 130, 88, 134, 87, 138, 86, 142,
	}
	for _, p := range prices {
		m.Execute(snapshot(p))
		if rsi, ok := m.Metrics()["current_rsi"]; ok && (rsi < 0 || rsi > 100) {
			t.Fatalf("RSI out of [0,100]: %v", rsi)
		}
	}
}

func TestMomentumHoldsUntilWarmedUp(t *testing.T) {
	m := NewMomentum("mo3", "BTCUSDT", momentumConfig())
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	m.SetState(StateActive)

	// below macd_slow samples: no decision yet
	for i := 0; i < 25; i++ {
		if sig := m.Execute(snapshot(100 + float64(i))); sig != SignalNone {
			t.Fatalf("tick %d: got %s before warm-up", i, sig)
		}
	}
	if sig := m.Execute(snapshot(126)); sig == SignalNone {
		t.Fatal("expected a decision once warmed up")
	}
}

func TestMomentumRequiresAlignment(t *testing.T) {
	m := NewMomentum("mo4", "BTCUSDT", momentumConfig())
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	m.SetState(StateActive)

	// a steady uptrend drives RSI high, which blocks BUY despite the trend
	for i := 0; i < 60; i++ {
		if sig := m.Execute(snapshot(100 + float64(i)*2)); sig == SignalBuy {
			t.Fatalf("tick %d: BUY emitted with overbought RSI", i)
		}
	}
}

func TestMomentumPositionBounds(t *testing.T) {
	cfg := momentumConfig()
	cfg["max_position"] = 2.0
	m := NewMomentum("mo5", "BTCUSDT", cfg)
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	m.SetState(StateActive)

	for i := 0; i < 200; i++ {
		m.CalculatePositionSize(SignalBuy, snapshot(100))
	}
	if pos := m.CurrentPosition(); pos > 2.0+1e-9 {
		t.Fatalf("position %v exceeds +max_position", pos)
	}
	for i := 0; i < 400; i++ {
		m.CalculatePositionSize(SignalSell, snapshot(100))
	}
	if pos := m.CurrentPosition(); pos < -2.0-1e-9 {
		t.Fatalf("position %v exceeds -max_position", pos)
	}
}
