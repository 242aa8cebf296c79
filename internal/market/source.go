// Package market caches live ticker data from the gateway's websocket
// feeds and serves snapshots to the strategy engine.
package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"autotrader/internal/events"
	"autotrader/internal/gateway"
	"autotrader/internal/strategy"
	"autotrader/pkg/exchanges/common"
)

// staleness bound before falling back to a REST fan-out
const maxTickAge = 30 * time.Second

// Source serves market snapshots from cached websocket ticks, falling
// back to REST price queries when a symbol has no fresh tick.
type Source struct {
	manager *gateway.Manager
	bus     *events.Bus

	mu    sync.RWMutex
	ticks map[string]common.PriceData
	subs  map[string]string // symbol -> gateway key feeding it
}

// NewSource builds a source over the gateway manager. bus may be nil.
func NewSource(manager *gateway.Manager, bus *events.Bus) *Source {
	return &Source{
		manager: manager,
		bus:     bus,
		ticks:   make(map[string]common.PriceData),
		subs:    make(map[string]string),
	}
}

// Watch subscribes the symbol's feed on the given gateway and caches
// every tick. Ticks are also republished on the event bus.
func (s *Source) Watch(ctx context.Context, gatewayKey, symbol string) error {
	s.mu.Lock()
	if _, ok := s.subs[symbol]; ok {
		s.mu.Unlock()
		return nil
	}
	s.subs[symbol] = gatewayKey
	s.mu.Unlock()

	err := s.manager.Subscribe(ctx, gatewayKey, symbol, func(pd common.PriceData) {
		s.mu.Lock()
		s.ticks[symbol] = pd
		s.mu.Unlock()
		if s.bus != nil {
			s.bus.Publish(events.EventPriceTick, pd)
		}
	})
	if err != nil {
		s.mu.Lock()
		delete(s.subs, symbol)
		s.mu.Unlock()
		return fmt.Errorf("watch %s: %w", symbol, err)
	}
	return nil
}

// Unwatch drops the symbol's feed subscription and cached tick.
func (s *Source) Unwatch(symbol string) error {
	s.mu.Lock()
	key, ok := s.subs[symbol]
	if ok {
		delete(s.subs, symbol)
		delete(s.ticks, symbol)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return s.manager.Unsubscribe(key, symbol)
}

// Snapshot returns the latest tick for symbol, querying the gateways
// directly when the cache is empty or stale.
func (s *Source) Snapshot(ctx context.Context, symbol string) (strategy.MarketSnapshot, error) {
	s.mu.RLock()
	tick, ok := s.ticks[symbol]
	s.mu.RUnlock()

	if ok && time.Since(tick.Timestamp) <= maxTickAge {
		return strategy.MarketSnapshot{
			Symbol:    symbol,
			Price:     tick.Price,
			Volume:    tick.Volume,
			Timestamp: tick.Timestamp,
		}, nil
	}

	prices := s.manager.GetPriceAll(ctx, symbol)
	for _, pd := range prices {
		if pd == nil {
			continue
		}
		s.mu.Lock()
		s.ticks[symbol] = *pd
		s.mu.Unlock()
		return strategy.MarketSnapshot{
			Symbol:    symbol,
			Price:     pd.Price,
			Volume:    pd.Volume,
			Timestamp: pd.Timestamp,
		}, nil
	}
	return strategy.MarketSnapshot{}, fmt.Errorf("no price available for %s", symbol)
}
