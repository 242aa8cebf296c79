package strategy

import (
	"fmt"
	"log"
	"math"
	"sort"
)

// GridLevel is one rung of the price ladder. A level fires at most once
// until the grid is reset.
type GridLevel struct {
	Price  float64 `json:"price"`
	Side   Signal  `json:"side"`
	Filled bool    `json:"filled"`
}

// Grid places buy levels below and sell levels above a base price and
// emits a signal when price crosses the nearest unfilled level.
type Grid struct {
	base

	levels          []GridLevel
	currentPosition float64
	basePrice       float64
	gridSpacing     float64
}

// NewGrid builds an uninitialized grid strategy.
func NewGrid(id, symbol string, cfg Config) *Grid {
	return &Grid{base: newBase(id, TypeGrid, symbol, cfg)}
}

// Initialize builds the level ladder from configuration. Levels whose
// price would be non-positive are skipped.
func (g *Grid) Initialize() error {
	cfg := g.config()
	basePrice := cfg.Get("base_price", 0)
	spacing := cfg.Get("grid_spacing", 0)
	numLevels := int(cfg.Get("num_levels", 10))

	if basePrice <= 0 || spacing <= 0 || numLevels <= 0 {
		return fmt.Errorf("grid: invalid parameters base_price=%v grid_spacing=%v num_levels=%d",
			basePrice, spacing, numLevels)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.basePrice = basePrice
	g.gridSpacing = spacing
	g.levels = g.levels[:0]
	for i := -numLevels; i <= numLevels; i++ {
		price := basePrice + float64(i)*spacing
		if price <= 0 {
			continue
		}
		side := SignalSell
		if i < 0 {
			side = SignalBuy
		}
		g.levels = append(g.levels, GridLevel{Price: price, Side: side})
	}
	sort.Slice(g.levels, func(i, j int) bool { return g.levels[i].Price < g.levels[j].Price })

	log.Printf("strategy %s: grid initialized with %d levels around %v", g.id, len(g.levels), basePrice)
	return nil
}

// Execute finds the closest unfilled level within trigger_threshold of the
// current price and fires its signal if price crossed it in the expected
// direction.
func (g *Grid) Execute(snap MarketSnapshot) Signal {
	if !g.Running() || snap.Price <= 0 {
		return SignalNone
	}
	cfg := g.config()

	g.mu.Lock()
	closest := -1
	minDist := math.Inf(1)
	for i := range g.levels {
		if g.levels[i].Filled {
			continue
		}
		if d := math.Abs(snap.Price - g.levels[i].Price); d < minDist {
			minDist = d
			closest = i
		}
	}

	threshold := cfg.Get("trigger_threshold", g.gridSpacing*0.1)
	if closest < 0 || minDist > threshold {
		g.mu.Unlock()
		return SignalNone
	}

	level := &g.levels[closest]
	var sig Signal
	switch {
	case level.Side == SignalBuy && snap.Price <= level.Price:
		sig = SignalBuy
	case level.Side == SignalSell && snap.Price >= level.Price:
		sig = SignalSell
	default:
		g.mu.Unlock()
		return SignalNone
	}
	level.Filled = true
	g.mu.Unlock()

	g.recordTrade(0)
	return sig
}

// CalculatePositionSize converts base_amount into a quantity at the current
// price and clamps the running position to max_position.
func (g *Grid) CalculatePositionSize(sig Signal, snap MarketSnapshot) float64 {
	if snap.Price <= 0 {
		return 0
	}
	cfg := g.config()
	quantity := cfg.Get("base_amount", 100) / snap.Price
	maxPosition := cfg.Get("max_position", 1000)

	g.mu.Lock()
	defer g.mu.Unlock()
	if sig == SignalBuy && g.currentPosition+quantity > maxPosition {
		quantity = maxPosition - g.currentPosition
	}
	if sig == SignalSell && g.currentPosition-quantity < -maxPosition {
		quantity = g.currentPosition + maxPosition
	}
	if quantity < 0 {
		quantity = 0
	}
	if sig == SignalBuy {
		g.currentPosition += quantity
	} else {
		g.currentPosition -= quantity
	}
	return quantity
}

// ValidateConfig rejects non-positive parameters and any ladder whose
// lowest level would be non-positive.
func (g *Grid) ValidateConfig() error {
	cfg := g.config()
	if err := requireFields(cfg, "base_price", "grid_spacing", "num_levels", "base_amount"); err != nil {
		return err
	}
	basePrice := cfg["base_price"]
	spacing := cfg["grid_spacing"]
	numLevels := cfg["num_levels"]
	baseAmount := cfg["base_amount"]

	if basePrice <= 0 {
		return fmt.Errorf("grid: base_price must be positive")
	}
	if spacing <= 0 {
		return fmt.Errorf("grid: grid_spacing must be positive")
	}
	if numLevels <= 0 || numLevels > 100 {
		return fmt.Errorf("grid: num_levels must be between 1 and 100")
	}
	if baseAmount <= 0 {
		return fmt.Errorf("grid: base_amount must be positive")
	}
	if basePrice-numLevels*spacing <= 0 {
		return fmt.Errorf("grid: lowest level would not be positive")
	}
	return nil
}

func (g *Grid) UpdateConfig(cfg Config) error {
	return g.updateConfig(cfg, g.ValidateConfig)
}

func (g *Grid) CurrentPosition() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentPosition
}

// Metrics reports ladder fill progress and position.
func (g *Grid) Metrics() map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	filled := 0
	for _, l := range g.levels {
		if l.Filled {
			filled++
		}
	}
	return map[string]float64{
		"total_levels":     float64(len(g.levels)),
		"filled_levels":    float64(filled),
		"current_position": g.currentPosition,
		"base_price":       g.basePrice,
		"grid_spacing":     g.gridSpacing,
	}
}

// Levels returns a copy of the ladder.
func (g *Grid) Levels() []GridLevel {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GridLevel, len(g.levels))
	copy(out, g.levels)
	return out
}

// Reset marks every level unfilled and zeroes the position.
func (g *Grid) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.levels {
		g.levels[i].Filled = false
	}
	g.currentPosition = 0
	log.Printf("strategy %s: grid levels reset", g.id)
}
