// Package common defines the exchange-agnostic types and the Adapter
// capability set every venue integration implements.
package common

import (
	"context"
	"time"
)

// ExchangeType identifies a supported venue.
type ExchangeType string

const (
	ExchangeBinance ExchangeType = "binance"
	ExchangeBybit   ExchangeType = "bybit"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopLoss   OrderType = "STOP_LOSS"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusFilled    OrderStatus = "FILLED"
	StatusPartial   OrderStatus = "PARTIALLY_FILLED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusUnknown   OrderStatus = "UNKNOWN"
)

// Order is the normalized view of an exchange order. Identity is immutable
// after placement; only status and fill quantities change on refresh.
type Order struct {
	ID              string
	Symbol          string
	Side            Side
	Type            OrderType
	Quantity        float64
	Price           float64 // zero for market orders
	Status          OrderStatus
	FilledQuantity  float64
	RemainingQty    float64 // always Quantity - FilledQuantity
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExchangeOrderID string
}

// Trade is an append-only execution record tied to an order.
type Trade struct {
	ID              string
	OrderID         string
	Symbol          string
	Side            Side
	Quantity        float64
	Price           float64
	Fee             float64
	FeeCurrency     string
	Timestamp       time.Time
	ExchangeTradeID string
}

// PriceData is a single normalized ticker observation.
type PriceData struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
	Exchange  ExchangeType
}

// Balance holds a single asset balance. Total is always Free + Locked.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
	Total  float64
}

// OrderBookLevel is one price rung of an order book side.
type OrderBookLevel struct {
	Price    float64
	Quantity float64
}

// OrderBook is a depth snapshot, best levels first.
type OrderBook struct {
	Symbol string
	Bids   []OrderBookLevel
	Asks   []OrderBookLevel
}

// AccountInfo carries the venue-agnostic subset of account state.
type AccountInfo struct {
	CanTrade   bool
	UpdateTime time.Time
	Balances   []Balance
}

// PriceCallback receives normalized ticker updates from a subscription.
type PriceCallback func(PriceData)

// Adapter is the uniform capability set over one exchange connection.
// Read operations return zero values instead of errors when the input
// fails validation; transport failures surface as errors and are expected
// to be absorbed at this boundary by callers that can tolerate them.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect() error
	ExchangeType() ExchangeType
	Testnet() bool

	GetAccountInfo(ctx context.Context) (*AccountInfo, error)
	GetBalances(ctx context.Context) ([]Balance, error)
	GetSymbols(ctx context.Context) ([]string, error)
	GetPrice(ctx context.Context, symbol string) (*PriceData, error)
	GetOrderBook(ctx context.Context, symbol string, limit int) (*OrderBook, error)

	PlaceOrder(ctx context.Context, symbol string, side Side, orderType OrderType, quantity, price float64) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)
	GetOrder(ctx context.Context, symbol, orderID string) (*Order, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	GetTrades(ctx context.Context, symbol string, limit int) ([]Trade, error)

	SubscribePriceFeed(ctx context.Context, symbol string, cb PriceCallback) error
	UnsubscribePriceFeed(symbol string) error

	// HealthCheck reports whether an authenticated account-info call succeeds.
	HealthCheck(ctx context.Context) bool
}

// ValidSymbol rejects obviously malformed trading pairs before any network call.
func ValidSymbol(symbol string) bool {
	return len(symbol) >= 3
}

// ValidQuantity rejects non-positive order quantities.
func ValidQuantity(qty float64) bool {
	return qty > 0
}

// ValidPrice rejects non-positive order prices.
func ValidPrice(price float64) bool {
	return price > 0
}
