package events

import (
	"time"

	"autotrader/internal/strategy"
	"autotrader/pkg/exchanges/common"
)

// Event enumerates the broker topics.
type Event string

const (
	EventPriceTick      Event = "price_tick"
	EventStrategySignal Event = "strategy_signal"
	EventStrategyState  Event = "strategy_state"
	EventOrderPlaced    Event = "order.placed"
	EventOrderRejected  Event = "order.rejected"
	EventRiskBlocked    Event = "risk.blocked"
)

// SignalEvent is published whenever a strategy emits BUY or SELL.
type SignalEvent struct {
	StrategyID string          `json:"strategy_id"`
	Type       strategy.Type   `json:"type"`
	Symbol     string          `json:"symbol"`
	Signal     strategy.Signal `json:"signal"`
	Quantity   float64         `json:"quantity"`
	Price      float64         `json:"price"`
	Timestamp  time.Time       `json:"timestamp"`
}

// StateEvent is published on strategy lifecycle transitions.
type StateEvent struct {
	StrategyID string                `json:"strategy_id"`
	State      strategy.RuntimeState `json:"state"`
	Reason     string                `json:"reason,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

// OrderEvent is published when an order intent leaves the engine.
type OrderEvent struct {
	StrategyID string        `json:"strategy_id"`
	Order      *common.Order `json:"order,omitempty"`
	Rejected   bool          `json:"rejected"`
	Reasons    []string      `json:"reasons,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
