// Package gateway keeps the registry of live exchange adapters and fans
// operations out across them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"autotrader/pkg/exchanges/common"
)

// ErrNotFound is returned when no adapter is registered under a key.
var ErrNotFound = errors.New("gateway: adapter not found")

// AdapterInfo is the public summary of one registered adapter.
type AdapterInfo struct {
	Key      string              `json:"key"`
	Exchange common.ExchangeType `json:"exchange"`
	Testnet  bool                `json:"testnet"`
}

// Manager owns all connected exchange adapters, keyed by exchange type
// plus an API-key prefix so one account maps to one entry.
type Manager struct {
	mu       sync.RWMutex
	adapters map[string]common.Adapter

	// overridable for tests
	factory func(Credentials) (common.Adapter, error)
}

// NewManager builds an empty registry.
func NewManager() *Manager {
	return &Manager{
		adapters: make(map[string]common.Adapter),
		factory:  newAdapter,
	}
}

// Key derives the registry key for a credential set. The key is assigned
// at registration and stays stable for the adapter's lifetime, even if a
// later credential swap changes the API-key prefix; callers hold it as an
// opaque handle.
func Key(exchange common.ExchangeType, apiKey string) string {
	prefix := apiKey
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s_%s", exchange, prefix)
}

// CreateAndConnect builds an adapter, connects it, and registers it.
// Registering over an existing key replaces and disconnects the old adapter.
func (m *Manager) CreateAndConnect(ctx context.Context, creds Credentials) (string, error) {
	adapter, err := m.factory(creds)
	if err != nil {
		return "", err
	}
	if err := adapter.Connect(ctx); err != nil {
		return "", fmt.Errorf("connect %s: %w", creds.Exchange, err)
	}

	key := Key(creds.Exchange, creds.APIKey)

	m.mu.Lock()
	old := m.adapters[key]
	m.adapters[key] = adapter
	m.mu.Unlock()

	if old != nil {
		if err := old.Disconnect(); err != nil {
			log.Printf("gateway: disconnect replaced adapter %s: %v", key, err)
		}
	}
	log.Printf("gateway: registered adapter %s (testnet=%v)", key, creds.Testnet)
	return key, nil
}

// Get returns the adapter registered under key.
func (m *Manager) Get(key string) (common.Adapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	adapter, ok := m.adapters[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return adapter, nil
}

// Remove disconnects and unregisters the adapter under key.
func (m *Manager) Remove(key string) error {
	m.mu.Lock()
	adapter, ok := m.adapters[key]
	if ok {
		delete(m.adapters, key)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := adapter.Disconnect(); err != nil {
		return fmt.Errorf("disconnect %s: %w", key, err)
	}
	log.Printf("gateway: removed adapter %s", key)
	return nil
}

// ListAll summarises every registered adapter.
func (m *Manager) ListAll() []AdapterInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AdapterInfo, 0, len(m.adapters))
	for key, a := range m.adapters {
		out = append(out, AdapterInfo{Key: key, Exchange: a.ExchangeType(), Testnet: a.Testnet()})
	}
	return out
}

// HealthCheckAll probes every adapter and reports per-key health. A failing
// adapter does not affect the others.
func (m *Manager) HealthCheckAll(ctx context.Context) map[string]bool {
	m.mu.RLock()
	snapshot := make(map[string]common.Adapter, len(m.adapters))
	for k, a := range m.adapters {
		snapshot[k] = a
	}
	m.mu.RUnlock()

	out := make(map[string]bool, len(snapshot))
	for key, a := range snapshot {
		out[key] = a.HealthCheck(ctx)
	}
	return out
}

// GetPriceAll fetches the symbol's price from every adapter. Adapters that
// fail are skipped with a log line so one dead exchange never blanks the
// whole response.
func (m *Manager) GetPriceAll(ctx context.Context, symbol string) map[string]*common.PriceData {
	m.mu.RLock()
	snapshot := make(map[string]common.Adapter, len(m.adapters))
	for k, a := range m.adapters {
		snapshot[k] = a
	}
	m.mu.RUnlock()

	out := make(map[string]*common.PriceData, len(snapshot))
	for key, a := range snapshot {
		pd, err := a.GetPrice(ctx, symbol)
		if err != nil {
			log.Printf("gateway: price %s from %s: %v", symbol, key, err)
			continue
		}
		if pd != nil {
			out[key] = pd
		}
	}
	return out
}

// Subscribe attaches a price-feed callback on the adapter under key.
func (m *Manager) Subscribe(ctx context.Context, key, symbol string, cb common.PriceCallback) error {
	adapter, err := m.Get(key)
	if err != nil {
		return err
	}
	return adapter.SubscribePriceFeed(ctx, symbol, cb)
}

// Unsubscribe detaches the feed for symbol on the adapter under key.
func (m *Manager) Unsubscribe(key, symbol string) error {
	adapter, err := m.Get(key)
	if err != nil {
		return err
	}
	return adapter.UnsubscribePriceFeed(symbol)
}

// ReplaceCredentials swaps the adapter under key for one built from creds.
// The registry lock is held across the whole swap so no caller ever sees a
// half-replaced entry. If the new adapter fails to connect the old one stays
// registered and untouched. The entry keeps its original key regardless of
// the new API-key prefix, so handles held by strategies stay valid.
func (m *Manager) ReplaceCredentials(ctx context.Context, key string, creds Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.adapters[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	replacement, err := m.factory(creds)
	if err != nil {
		return err
	}
	if err := replacement.Connect(ctx); err != nil {
		return fmt.Errorf("connect replacement for %s: %w", key, err)
	}

	m.adapters[key] = replacement
	if err := old.Disconnect(); err != nil {
		log.Printf("gateway: disconnect old adapter %s: %v", key, err)
	}
	log.Printf("gateway: replaced credentials for %s", key)
	return nil
}

// Shutdown disconnects every adapter and empties the registry.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	adapters := m.adapters
	m.adapters = make(map[string]common.Adapter)
	m.mu.Unlock()

	for key, a := range adapters {
		if err := a.Disconnect(); err != nil {
			log.Printf("gateway: shutdown disconnect %s: %v", key, err)
		}
	}
	log.Printf("gateway: shutdown complete (%d adapters)", len(adapters))
}
