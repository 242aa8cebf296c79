// Package strategy contains the trading strategy implementations and the
// shared lifecycle state they embed.
package strategy

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Type identifies a strategy variant.
type Type string

const (
	TypeGrid          Type = "grid"
	TypeMeanReversion Type = "mean_reversion"
	TypeMomentum      Type = "momentum"
)

// Signal is the strategy output for one tick. The zero value means no
// actionable decision this tick.
type Signal string

const (
	SignalNone Signal = ""
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// RuntimeState is the lifecycle state of a strategy instance.
type RuntimeState string

const (
	StateStopped RuntimeState = "stopped"
	StateActive  RuntimeState = "active"
	StatePaused  RuntimeState = "paused"
	StateError   RuntimeState = "error"
)

// MarketSnapshot is one tick of market data handed to Execute.
type MarketSnapshot struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds the numeric strategy parameters keyed by name.
type Config map[string]float64

// Clone returns an independent copy of the config.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Get returns the value for key, or fallback when absent.
func (c Config) Get(key string, fallback float64) float64 {
	if v, ok := c[key]; ok {
		return v
	}
	return fallback
}

// Status is the externally visible snapshot of a strategy instance.
type Status struct {
	ID            string       `json:"id"`
	Type          Type         `json:"type"`
	Symbol        string       `json:"symbol"`
	State         RuntimeState `json:"state"`
	Running       bool         `json:"running"`
	LastExecution time.Time    `json:"last_execution"`
	TotalTrades   int          `json:"total_trades"`
	TotalPnL      float64      `json:"total_pnl"`
	Config        Config       `json:"config"`
}

// Strategy is the contract every variant implements. Execute and
// CalculatePositionSize are called from a single engine goroutine per
// instance; status and metrics reads may come from anywhere.
type Strategy interface {
	ID() string
	Type() Type
	Symbol() string

	Initialize() error
	Execute(snap MarketSnapshot) Signal
	CalculatePositionSize(sig Signal, snap MarketSnapshot) float64
	ValidateConfig() error
	UpdateConfig(cfg Config) error

	Status() Status
	Metrics() map[string]float64
	CurrentPosition() float64

	Running() bool
	SetState(state RuntimeState)
	State() RuntimeState
}

var errMissingField = errors.New("missing required config field")

// base carries the lifecycle and bookkeeping state shared by all variants.
type base struct {
	mu            sync.Mutex
	id            string
	typ           Type
	symbol        string
	state         RuntimeState
	running       bool
	lastExecution time.Time
	totalTrades   int
	totalPnL      float64
	cfg           Config
}

func newBase(id string, typ Type, symbol string, cfg Config) base {
	return base{id: id, typ: typ, symbol: symbol, state: StateStopped, cfg: cfg.Clone()}
}

func (b *base) ID() string     { return b.id }
func (b *base) Type() Type     { return b.typ }
func (b *base) Symbol() string { return b.symbol }

func (b *base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *base) State() RuntimeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetState moves the instance into state and keeps the running flag
// consistent with it.
func (b *base) SetState(state RuntimeState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = state
	b.running = state == StateActive
}

func (b *base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		ID:            b.id,
		Type:          b.typ,
		Symbol:        b.symbol,
		State:         b.state,
		Running:       b.running,
		LastExecution: b.lastExecution,
		TotalTrades:   b.totalTrades,
		TotalPnL:      b.totalPnL,
		Config:        b.cfg.Clone(),
	}
}

func (b *base) config() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// recordTrade updates the trade counters after a signal fired.
func (b *base) recordTrade(pnl float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalTrades++
	b.totalPnL += pnl
	b.lastExecution = time.Now().UTC()
}

// updateConfig swaps in cfg all-or-nothing: if validate fails, the prior
// config is restored untouched.
func (b *base) updateConfig(cfg Config, validate func() error) error {
	b.mu.Lock()
	old := b.cfg
	merged := old.Clone()
	for k, v := range cfg {
		merged[k] = v
	}
	b.cfg = merged
	b.mu.Unlock()

	if err := validate(); err != nil {
		b.mu.Lock()
		b.cfg = old
		b.mu.Unlock()
		return fmt.Errorf("config rejected: %w", err)
	}
	return nil
}

func requireFields(cfg Config, fields ...string) error {
	for _, f := range fields {
		if _, ok := cfg[f]; !ok {
			return fmt.Errorf("%w: %s", errMissingField, f)
		}
	}
	return nil
}
