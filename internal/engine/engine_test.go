package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"autotrader/internal/risk"
	"autotrader/internal/strategy"
	"autotrader/pkg/exchanges/common"
)

// stubStrategy is a minimal Strategy that emits a fixed signal on every
// tick with a 10ms execution interval.
type stubStrategy struct {
	mu          sync.Mutex
	id          string
	signal      strategy.Signal
	quantity    float64
	state       strategy.RuntimeState
	executions  int
	validateErr error
	initErr     error
	lastConfig  strategy.Config
}

func newStub(id string, sig strategy.Signal, qty float64) *stubStrategy {
	return &stubStrategy{id: id, signal: sig, quantity: qty, state: strategy.StateStopped}
}

func (s *stubStrategy) ID() string            { return s.id }
func (s *stubStrategy) Type() strategy.Type   { return strategy.TypeGrid }
func (s *stubStrategy) Symbol() string        { return "BTCUSDT" }
func (s *stubStrategy) Initialize() error     { return s.initErr }
func (s *stubStrategy) ValidateConfig() error { return s.validateErr }

func (s *stubStrategy) Execute(strategy.MarketSnapshot) strategy.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions++
	return s.signal
}

func (s *stubStrategy) CalculatePositionSize(strategy.Signal, strategy.MarketSnapshot) float64 {
	return s.quantity
}

func (s *stubStrategy) UpdateConfig(cfg strategy.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastConfig = cfg
	return nil
}

func (s *stubStrategy) Status() strategy.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strategy.Status{
		ID:     s.id,
		State:  s.state,
		Config: strategy.Config{"execution_interval": 0.01},
	}
}

func (s *stubStrategy) Metrics() map[string]float64 { return map[string]float64{} }
func (s *stubStrategy) CurrentPosition() float64    { return 0 }

func (s *stubStrategy) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == strategy.StateActive
}

func (s *stubStrategy) SetState(state strategy.RuntimeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *stubStrategy) State() strategy.RuntimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubStrategy) executionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executions
}

type fakeMarket struct {
	mu  sync.Mutex
	err error
}

func (m *fakeMarket) Snapshot(_ context.Context, symbol string) (strategy.MarketSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return strategy.MarketSnapshot{}, m.err
	}
	return strategy.MarketSnapshot{Symbol: symbol, Price: 50000, Timestamp: time.Now().UTC()}, nil
}

type placedOrder struct {
	gatewayKey string
	symbol     string
	side       common.Side
	quantity   float64
}

type fakePlacer struct {
	mu     sync.Mutex
	err    error
	placed []placedOrder
}

func (p *fakePlacer) PlaceOrder(_ context.Context, gatewayKey, symbol string, side common.Side, _ common.OrderType, quantity, _ float64) (*common.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.placed = append(p.placed, placedOrder{gatewayKey, symbol, side, quantity})
	return &common.Order{Symbol: symbol, Side: side, Quantity: quantity}, nil
}

func (p *fakePlacer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.placed)
}

type fakeProfile struct{ profile risk.Profile }

func (f fakeProfile) ActiveProfile(context.Context) (risk.Profile, error) { return f.profile, nil }

type fakeStats struct{ snap risk.AccountSnapshot }

func (f fakeStats) AccountSnapshot(context.Context) (risk.AccountSnapshot, error) {
	return f.snap, nil
}

// Tuesday noon, inside default trading hours.
func weekdayClock() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) }

// Saturday noon.
func weekendClock() time.Time { return time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC) }

func newTestEngine(market MarketSource, placer OrderPlacer, clock func() time.Time) *Engine {
	return New(Config{
		Market:  market,
		Placer:  placer,
		Gate:    risk.NewGateAt(clock),
		Profile: fakeProfile{profile: risk.DefaultProfile("u1")},
		Stats:   fakeStats{},
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartStopLifecycle(t *testing.T) {
	stub := newStub("s1", strategy.SignalHold, 0)
	eng := newTestEngine(&fakeMarket{}, &fakePlacer{}, weekdayClock)

	if err := eng.Start(context.Background(), stub, "gw"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if stub.State() != strategy.StateActive {
		t.Fatalf("state after start = %s, want active", stub.State())
	}
	waitFor(t, "first execution", func() bool { return stub.executionCount() > 0 })

	if err := eng.Start(context.Background(), stub, "gw"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate start error = %v, want ErrAlreadyExists", err)
	}

	if err := eng.Stop("s1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stub.State() != strategy.StateStopped {
		t.Fatalf("state after stop = %s, want stopped", stub.State())
	}
	if err := eng.Stop("s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second stop error = %v, want ErrNotFound", err)
	}
}

func TestStartRejectsInvalidStrategy(t *testing.T) {
	stub := newStub("s1", strategy.SignalHold, 0)
	stub.validateErr = errors.New("bad config")
	eng := newTestEngine(&fakeMarket{}, &fakePlacer{}, weekdayClock)

	if err := eng.Start(context.Background(), stub, "gw"); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := eng.Status("s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("invalid strategy was registered: %v", err)
	}
}

func TestPauseResumeKeepsInstance(t *testing.T) {
	stub := newStub("s1", strategy.SignalHold, 0)
	eng := newTestEngine(&fakeMarket{}, &fakePlacer{}, weekdayClock)
	if err := eng.Start(context.Background(), stub, "gw"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Shutdown()

	waitFor(t, "first execution", func() bool { return stub.executionCount() > 0 })

	if err := eng.Pause("s1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := eng.Pause("s1"); err == nil {
		t.Fatal("pausing a paused strategy should fail")
	}

	// let any in-flight iteration drain, then confirm the loop idles
	time.Sleep(50 * time.Millisecond)
	before := stub.executionCount()
	time.Sleep(80 * time.Millisecond)
	if after := stub.executionCount(); after != before {
		t.Fatalf("executions advanced while paused: %d -> %d", before, after)
	}

	if err := eng.Resume("s1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitFor(t, "execution after resume", func() bool { return stub.executionCount() > before })

	if err := eng.Resume("s1"); err == nil {
		t.Fatal("resuming an active strategy should fail")
	}
}

func TestMarketErrorMovesStrategyToErrorState(t *testing.T) {
	stub := newStub("s1", strategy.SignalBuy, 1)
	market := &fakeMarket{err: errors.New("feed down")}
	placer := &fakePlacer{}
	eng := newTestEngine(market, placer, weekdayClock)
	if err := eng.Start(context.Background(), stub, "gw"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Shutdown()

	waitFor(t, "error state", func() bool { return stub.State() == strategy.StateError })
	if placer.count() != 0 {
		t.Fatalf("orders placed despite market failure: %d", placer.count())
	}
}

func TestSignalRoutedThroughGateToPlacer(t *testing.T) {
	stub := newStub("s1", strategy.SignalBuy, 0.01)
	placer := &fakePlacer{}
	eng := newTestEngine(&fakeMarket{}, placer, weekdayClock)
	if err := eng.Start(context.Background(), stub, "gw-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Shutdown()

	waitFor(t, "order placement", func() bool { return placer.count() > 0 })

	placer.mu.Lock()
	got := placer.placed[0]
	placer.mu.Unlock()
	if got.gatewayKey != "gw-1" || got.symbol != "BTCUSDT" || got.side != common.SideBuy || got.quantity != 0.01 {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestRiskBlockPreventsPlacement(t *testing.T) {
	stub := newStub("s1", strategy.SignalBuy, 0.01)
	placer := &fakePlacer{}
	// weekend clock with weekend trading disabled blocks every trade
	eng := newTestEngine(&fakeMarket{}, placer, weekendClock)
	if err := eng.Start(context.Background(), stub, "gw"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Shutdown()

	waitFor(t, "several executions", func() bool { return stub.executionCount() >= 3 })
	if placer.count() != 0 {
		t.Fatalf("blocked trades reached the placer: %d", placer.count())
	}
}

func TestPlacementFailureKeepsStrategyRunning(t *testing.T) {
	stub := newStub("s1", strategy.SignalBuy, 0.01)
	placer := &fakePlacer{err: errors.New("exchange unavailable")}
	eng := newTestEngine(&fakeMarket{}, placer, weekdayClock)
	if err := eng.Start(context.Background(), stub, "gw"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Shutdown()

	waitFor(t, "several executions", func() bool { return stub.executionCount() >= 3 })
	if stub.State() != strategy.StateActive {
		t.Fatalf("state after placement failures = %s, want active", stub.State())
	}
}

func TestUpdateConfigDelegates(t *testing.T) {
	stub := newStub("s1", strategy.SignalHold, 0)
	eng := newTestEngine(&fakeMarket{}, &fakePlacer{}, weekdayClock)
	if err := eng.Start(context.Background(), stub, "gw"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Shutdown()

	cfg := strategy.Config{"base_amount": 250}
	if err := eng.UpdateConfig("s1", cfg); err != nil {
		t.Fatalf("update config: %v", err)
	}
	stub.mu.Lock()
	got := stub.lastConfig
	stub.mu.Unlock()
	if got.Get("base_amount", 0) != 250 {
		t.Fatalf("config not delegated: %v", got)
	}

	if err := eng.UpdateConfig("missing", cfg); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update on unknown id = %v, want ErrNotFound", err)
	}
}

func TestShutdownStopsEverything(t *testing.T) {
	eng := newTestEngine(&fakeMarket{}, &fakePlacer{}, weekdayClock)
	stubs := []*stubStrategy{newStub("s1", strategy.SignalHold, 0), newStub("s2", strategy.SignalHold, 0)}
	for _, s := range stubs {
		if err := eng.Start(context.Background(), s, "gw"); err != nil {
			t.Fatalf("start %s: %v", s.id, err)
		}
	}

	eng.Shutdown()

	for _, s := range stubs {
		if s.State() != strategy.StateStopped {
			t.Fatalf("strategy %s state = %s, want stopped", s.id, s.State())
		}
	}
	if got := len(eng.StatusAll()); got != 0 {
		t.Fatalf("registry not empty after shutdown: %d", got)
	}
}
