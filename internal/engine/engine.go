// Package engine schedules strategy instances, sizing their signals and
// routing approved orders to the exchange gateway through the risk gate.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"autotrader/internal/events"
	"autotrader/internal/risk"
	"autotrader/internal/strategy"
	"autotrader/pkg/exchanges/common"
)

var (
	ErrNotFound      = errors.New("engine: strategy not found")
	ErrAlreadyExists = errors.New("engine: strategy already registered")
)

// MarketSource supplies the latest market snapshot for a symbol. Real
// deployments back this with the gateway's price feed.
type MarketSource interface {
	Snapshot(ctx context.Context, symbol string) (strategy.MarketSnapshot, error)
}

// OrderPlacer accepts approved orders. The gateway manager satisfies this
// through an adapter lookup by key.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, gatewayKey, symbol string, side common.Side, orderType common.OrderType, quantity, price float64) (*common.Order, error)
}

// ProfileSource provides the caller's active risk profile.
type ProfileSource interface {
	ActiveProfile(ctx context.Context) (risk.Profile, error)
}

// StatsSource provides the live position and P&L snapshot for risk checks.
type StatsSource interface {
	AccountSnapshot(ctx context.Context) (risk.AccountSnapshot, error)
}

const defaultInterval = 60 * time.Second

// instance couples a running strategy with its execution goroutine.
type instance struct {
	strat      strategy.Strategy
	gatewayKey string
	stop       chan struct{}
	done       chan struct{}
}

// Engine owns the registry of strategy instances. All lifecycle
// operations are serialized through its mutex; each active instance runs
// one background goroutine.
type Engine struct {
	mu        sync.Mutex
	instances map[string]*instance

	market  MarketSource
	placer  OrderPlacer
	gate    *risk.Gate
	profile ProfileSource
	stats   StatsSource
	bus     *events.Bus
}

// Config holds the engine's collaborators.
type Config struct {
	Market  MarketSource
	Placer  OrderPlacer
	Gate    *risk.Gate
	Profile ProfileSource
	Stats   StatsSource
	Bus     *events.Bus
}

// New builds an engine with no running strategies.
func New(cfg Config) *Engine {
	return &Engine{
		instances: make(map[string]*instance),
		market:    cfg.Market,
		placer:    cfg.Placer,
		gate:      cfg.Gate,
		profile:   cfg.Profile,
		stats:     cfg.Stats,
		bus:       cfg.Bus,
	}
}

// Start validates, initializes, registers, and launches the strategy.
// A validation or initialization failure leaves it unregistered.
func (e *Engine) Start(ctx context.Context, strat strategy.Strategy, gatewayKey string) error {
	if err := strat.ValidateConfig(); err != nil {
		return fmt.Errorf("start %s: %w", strat.ID(), err)
	}
	if err := strat.Initialize(); err != nil {
		return fmt.Errorf("start %s: %w", strat.ID(), err)
	}

	e.mu.Lock()
	if _, ok := e.instances[strat.ID()]; ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyExists, strat.ID())
	}
	inst := &instance{
		strat:      strat,
		gatewayKey: gatewayKey,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	e.instances[strat.ID()] = inst
	e.mu.Unlock()

	strat.SetState(strategy.StateActive)
	e.publishState(strat, "started")
	go e.run(inst)

	log.Printf("engine: strategy %s (%s) started on %s", strat.ID(), strat.Type(), strat.Symbol())
	return nil
}

// Stop signals the instance's goroutine and removes it from the registry.
// The goroutine observes the signal at the top of its loop, so stop
// latency is bounded by one execution interval plus in-flight work.
func (e *Engine) Stop(id string) error {
	e.mu.Lock()
	inst, ok := e.instances[id]
	if ok {
		delete(e.instances, id)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	close(inst.stop)
	<-inst.done
	inst.strat.SetState(strategy.StateStopped)
	e.publishState(inst.strat, "stopped")
	log.Printf("engine: strategy %s stopped", id)
	return nil
}

// Pause suspends execution without tearing down accumulated state.
func (e *Engine) Pause(id string) error {
	inst, err := e.get(id)
	if err != nil {
		return err
	}
	if inst.strat.State() != strategy.StateActive {
		return fmt.Errorf("engine: strategy %s is not active", id)
	}
	inst.strat.SetState(strategy.StatePaused)
	e.publishState(inst.strat, "paused")
	return nil
}

// Resume reactivates a paused strategy.
func (e *Engine) Resume(id string) error {
	inst, err := e.get(id)
	if err != nil {
		return err
	}
	if inst.strat.State() != strategy.StatePaused {
		return fmt.Errorf("engine: strategy %s is not paused", id)
	}
	inst.strat.SetState(strategy.StateActive)
	e.publishState(inst.strat, "resumed")
	return nil
}

// UpdateConfig applies cfg all-or-nothing via the strategy's own
// validation.
func (e *Engine) UpdateConfig(id string, cfg strategy.Config) error {
	inst, err := e.get(id)
	if err != nil {
		return err
	}
	return inst.strat.UpdateConfig(cfg)
}

// Status returns the snapshot for one strategy.
func (e *Engine) Status(id string) (strategy.Status, error) {
	inst, err := e.get(id)
	if err != nil {
		return strategy.Status{}, err
	}
	return inst.strat.Status(), nil
}

// StatusAll returns snapshots for every registered strategy.
func (e *Engine) StatusAll() []strategy.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]strategy.Status, 0, len(e.instances))
	for _, inst := range e.instances {
		out = append(out, inst.strat.Status())
	}
	return out
}

// Metrics returns strategy-specific indicator readings.
func (e *Engine) Metrics(id string) (map[string]float64, error) {
	inst, err := e.get(id)
	if err != nil {
		return nil, err
	}
	return inst.strat.Metrics(), nil
}

// Get returns the registered strategy instance.
func (e *Engine) Get(id string) (strategy.Strategy, error) {
	inst, err := e.get(id)
	if err != nil {
		return nil, err
	}
	return inst.strat, nil
}

// Shutdown stops every strategy and waits for their goroutines.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	instances := e.instances
	e.instances = make(map[string]*instance)
	e.mu.Unlock()

	for _, inst := range instances {
		close(inst.stop)
	}
	for id, inst := range instances {
		<-inst.done
		inst.strat.SetState(strategy.StateStopped)
		log.Printf("engine: strategy %s stopped during shutdown", id)
	}
}

func (e *Engine) get(id string) (*instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return inst, nil
}

// run is the per-strategy execution loop. One iteration fetches a
// snapshot, executes the strategy, and routes any signal through the risk
// gate. Stop is observed at the top of each cycle.
func (e *Engine) run(inst *instance) {
	defer close(inst.done)
	for {
		interval := e.interval(inst.strat)
		select {
		case <-inst.stop:
			return
		case <-time.After(interval):
		}

		if !inst.strat.Running() {
			continue // paused; keep state intact
		}
		e.iterate(inst)
	}
}

func (e *Engine) iterate(inst *instance) {
	strat := inst.strat
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := e.market.Snapshot(ctx, strat.Symbol())
	if err != nil {
		log.Printf("engine: strategy %s market snapshot: %v", strat.ID(), err)
		strat.SetState(strategy.StateError)
		e.publishState(strat, err.Error())
		return
	}

	sig := strat.Execute(snap)
	if sig != strategy.SignalBuy && sig != strategy.SignalSell {
		return
	}

	quantity := strat.CalculatePositionSize(sig, snap)
	if quantity <= 0 {
		return
	}

	e.publishSignal(strat, sig, quantity, snap)
	e.placeTrade(ctx, inst, sig, quantity, snap)
}

// placeTrade runs the risk check and, if allowed, hands the order to the
// gateway. Rejection prevents placement; placement failures are reported
// but do not kill the strategy.
func (e *Engine) placeTrade(ctx context.Context, inst *instance, sig strategy.Signal, quantity float64, snap strategy.MarketSnapshot) {
	strat := inst.strat
	side := common.SideBuy
	if sig == strategy.SignalSell {
		side = common.SideSell
	}

	profile, err := e.profile.ActiveProfile(ctx)
	if err != nil {
		log.Printf("engine: strategy %s risk profile: %v", strat.ID(), err)
		return
	}
	acct, err := e.stats.AccountSnapshot(ctx)
	if err != nil {
		log.Printf("engine: strategy %s account snapshot: %v", strat.ID(), err)
		return
	}

	check := e.gate.CheckTrade(profile, risk.TradeRequest{
		Symbol:    strat.Symbol(),
		Side:      side,
		OrderType: common.OrderTypeMarket,
		Quantity:  quantity,
		Price:     snap.Price,
	}, acct)

	if !check.Allowed {
		log.Printf("engine: strategy %s trade blocked (score %.0f): %v", strat.ID(), check.RiskScore, check.Errors)
		if e.bus != nil {
			e.bus.Publish(events.EventRiskBlocked, events.OrderEvent{
				StrategyID: strat.ID(),
				Rejected:   true,
				Reasons:    check.Errors,
				Timestamp:  time.Now().UTC(),
			})
		}
		return
	}
	for _, w := range check.Warnings {
		log.Printf("engine: strategy %s risk warning: %s", strat.ID(), w)
	}

	order, err := e.placer.PlaceOrder(ctx, inst.gatewayKey, strat.Symbol(), side, common.OrderTypeMarket, quantity, 0)
	if err != nil {
		log.Printf("engine: strategy %s order placement: %v", strat.ID(), err)
		if e.bus != nil {
			e.bus.Publish(events.EventOrderRejected, events.OrderEvent{
				StrategyID: strat.ID(),
				Rejected:   true,
				Reasons:    []string{err.Error()},
				Timestamp:  time.Now().UTC(),
			})
		}
		return
	}
	if e.bus != nil {
		e.bus.Publish(events.EventOrderPlaced, events.OrderEvent{
			StrategyID: strat.ID(),
			Order:      order,
			Timestamp:  time.Now().UTC(),
		})
	}
	log.Printf("engine: strategy %s placed %s %v %s", strat.ID(), side, quantity, strat.Symbol())
}

func (e *Engine) interval(strat strategy.Strategy) time.Duration {
	secs := strat.Status().Config.Get("execution_interval", 0)
	if secs <= 0 {
		return defaultInterval
	}
	return time.Duration(secs * float64(time.Second))
}

func (e *Engine) publishSignal(strat strategy.Strategy, sig strategy.Signal, quantity float64, snap strategy.MarketSnapshot) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.EventStrategySignal, events.SignalEvent{
		StrategyID: strat.ID(),
		Type:       strat.Type(),
		Symbol:     strat.Symbol(),
		Signal:     sig,
		Quantity:   quantity,
		Price:      snap.Price,
		Timestamp:  time.Now().UTC(),
	})
}

func (e *Engine) publishState(strat strategy.Strategy, reason string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.EventStrategyState, events.StateEvent{
		StrategyID: strat.ID(),
		State:      strat.State(),
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
	})
}
