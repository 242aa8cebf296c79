package gateway

import (
	"context"
	"fmt"

	"autotrader/pkg/exchanges/common"
)

// PlaceOrder routes an order to the adapter registered under gatewayKey.
// A nil order with nil error means the adapter rejected the input before
// any network call.
func (m *Manager) PlaceOrder(ctx context.Context, gatewayKey, symbol string, side common.Side, orderType common.OrderType, quantity, price float64) (*common.Order, error) {
	adapter, err := m.Get(gatewayKey)
	if err != nil {
		return nil, err
	}
	order, err := adapter.PlaceOrder(ctx, symbol, side, orderType, quantity, price)
	if err != nil {
		return nil, fmt.Errorf("place order via %s: %w", gatewayKey, err)
	}
	if order == nil {
		return nil, fmt.Errorf("place order via %s: rejected by validation", gatewayKey)
	}
	return order, nil
}
