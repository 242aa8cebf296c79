// Package binance implements the Adapter capability set against the
// Binance spot REST and websocket APIs.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"autotrader/pkg/exchanges/common"
)

// Config holds Binance credentials and connection options.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
}

// Client is a Binance adapter instance.
type Client struct {
	cfg        Config
	baseURL    string
	wsBase     string
	httpClient *http.Client
	timeSync   *common.TimeSync
	limiter    *common.RequestLimiter

	connected bool
	subs      map[string]*feedSub
	mu        sync.Mutex
}

// New builds a disconnected Binance client.
func New(cfg Config) *Client {
	base := "https://api.binance.com"
	wsBase := "wss://stream.binance.com:9443/ws/"
	if cfg.Testnet {
		base = "https://testnet.binance.vision"
		wsBase = "wss://testnet.binance.vision/ws/"
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		wsBase:     wsBase,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		subs:       make(map[string]*feedSub),
	}
	c.timeSync = common.NewTimeSync(func(ctx context.Context) (int64, error) {
		return c.getServerTime(ctx)
	})
	// 1200 weight/min for spot
	c.limiter = common.NewRequestLimiter(1200, time.Minute)
	return c
}

func (c *Client) ExchangeType() common.ExchangeType { return common.ExchangeBinance }
func (c *Client) Testnet() bool                     { return c.cfg.Testnet }

// Connect verifies API reachability and syncs the server clock.
func (c *Client) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/ping", nil)
	if err != nil {
		return err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("binance ping: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("binance ping status %d", res.StatusCode)
	}

	// A failed clock sync is not fatal; signed requests fall back to local time.
	if err := c.timeSync.Sync(ctx); err != nil {
		log.Printf("binance time sync: %v", err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

// Disconnect closes all price feeds and marks the client disconnected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	subs := make([]*feedSub, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subs = make(map[string]*feedSub)
	c.connected = false
	c.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	return nil
}

// HealthCheck reports true when an authenticated account call succeeds.
func (c *Client) HealthCheck(ctx context.Context) bool {
	_, err := c.GetAccountInfo(ctx)
	return err == nil
}

// GetAccountInfo fetches balances and trading permission.
func (c *Client) GetAccountInfo(ctx context.Context) (*common.AccountInfo, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return nil, err
	}

	var raw struct {
		CanTrade   bool  `json:"canTrade"`
		UpdateTime int64 `json:"updateTime"`
		Balances   []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode account info: %w", err)
	}

	info := &common.AccountInfo{
		CanTrade:   raw.CanTrade,
		UpdateTime: time.UnixMilli(raw.UpdateTime),
	}
	for _, b := range raw.Balances {
		free := parseFloat(b.Free)
		locked := parseFloat(b.Locked)
		info.Balances = append(info.Balances, common.Balance{
			Asset:  b.Asset,
			Free:   free,
			Locked: locked,
			Total:  free + locked,
		})
	}
	return info, nil
}

// GetBalances returns non-zero asset balances.
func (c *Client) GetBalances(ctx context.Context) ([]common.Balance, error) {
	info, err := c.GetAccountInfo(ctx)
	if err != nil {
		return nil, err
	}
	var out []common.Balance
	for _, b := range info.Balances {
		if b.Total > 0 {
			out = append(out, b)
		}
	}
	return out, nil
}

// GetSymbols lists symbols currently in TRADING status.
func (c *Client) GetSymbols(ctx context.Context) ([]string, error) {
	body, err := c.doPublic(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
			Status string `json:"status"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}
	var out []string
	for _, s := range raw.Symbols {
		if s.Status == "TRADING" {
			out = append(out, s.Symbol)
		}
	}
	return out, nil
}

// GetPrice fetches the 24h ticker for one symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (*common.PriceData, error) {
	if !common.ValidSymbol(symbol) {
		return nil, nil
	}
	body, err := c.doPublic(ctx, "/api/v3/ticker/24hr", url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}
	var raw struct {
		LastPrice string `json:"lastPrice"`
		Volume    string `json:"volume"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode ticker: %w", err)
	}
	return &common.PriceData{
		Symbol:    symbol,
		Price:     parseFloat(raw.LastPrice),
		Volume:    parseFloat(raw.Volume),
		Timestamp: time.Now().UTC(),
		Exchange:  common.ExchangeBinance,
	}, nil
}

// GetOrderBook fetches a depth snapshot, limit capped at 100.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, limit int) (*common.OrderBook, error) {
	if !common.ValidSymbol(symbol) {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	body, err := c.doPublic(ctx, "/api/v3/depth", url.Values{
		"symbol": {symbol},
		"limit":  {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}
	var raw struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode depth: %w", err)
	}
	book := &common.OrderBook{Symbol: symbol}
	for _, b := range raw.Bids {
		if len(b) >= 2 {
			book.Bids = append(book.Bids, common.OrderBookLevel{Price: parseFloat(b[0]), Quantity: parseFloat(b[1])})
		}
	}
	for _, a := range raw.Asks {
		if len(a) >= 2 {
			book.Asks = append(book.Asks, common.OrderBookLevel{Price: parseFloat(a[0]), Quantity: parseFloat(a[1])})
		}
	}
	return book, nil
}

// PlaceOrder submits a new order. Invalid input short-circuits with nil.
func (c *Client) PlaceOrder(ctx context.Context, symbol string, side common.Side, orderType common.OrderType, quantity, price float64) (*common.Order, error) {
	if !common.ValidSymbol(symbol) || !common.ValidQuantity(quantity) {
		return nil, nil
	}
	if orderType != common.OrderTypeMarket && !common.ValidPrice(price) {
		return nil, nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", toBinanceOrderType(orderType))
	params.Set("quantity", formatFloat(quantity))
	if orderType == common.OrderTypeLimit {
		params.Set("price", formatFloat(price))
		params.Set("timeInForce", "GTC")
	}
	if orderType == common.OrderTypeStopLoss || orderType == common.OrderTypeTakeProfit {
		params.Set("stopPrice", formatFloat(price))
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var raw struct {
		OrderID     int64  `json:"orderId"`
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}

	now := time.Now().UTC()
	filled := parseFloat(raw.ExecutedQty)
	return &common.Order{
		ID:              strconv.FormatInt(raw.OrderID, 10),
		Symbol:          symbol,
		Side:            side,
		Type:            orderType,
		Quantity:        quantity,
		Price:           price,
		Status:          mapStatus(raw.Status),
		FilledQuantity:  filled,
		RemainingQty:    quantity - filled,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExchangeOrderID: strconv.FormatInt(raw.OrderID, 10),
	}, nil
}

// CancelOrder cancels one open order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	if !common.ValidSymbol(symbol) || orderID == "" {
		return false, nil
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	_, err := c.doSigned(ctx, http.MethodDelete, "/api/v3/order", params)
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetOrder fetches a single order by exchange id.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (*common.Order, error) {
	if !common.ValidSymbol(symbol) || orderID == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}
	var raw binanceOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	o := raw.normalize()
	return &o, nil
}

// GetOpenOrders lists open orders; empty symbol means all symbols.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]common.Order, error) {
	params := url.Values{}
	if symbol != "" {
		if !common.ValidSymbol(symbol) {
			return nil, nil
		}
		params.Set("symbol", symbol)
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/openOrders", params)
	if err != nil {
		return nil, err
	}
	var raws []binanceOrder
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	out := make([]common.Order, 0, len(raws))
	for _, r := range raws {
		out = append(out, r.normalize())
	}
	return out, nil
}

// GetTrades lists recent account trades for a symbol.
func (c *Client) GetTrades(ctx context.Context, symbol string, limit int) ([]common.Trade, error) {
	if !common.ValidSymbol(symbol) {
		return nil, nil
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		if limit > 1000 {
			limit = 1000
		}
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/myTrades", params)
	if err != nil {
		return nil, err
	}
	var raws []struct {
		ID              int64  `json:"id"`
		OrderID         int64  `json:"orderId"`
		Price           string `json:"price"`
		Qty             string `json:"qty"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commissionAsset"`
		Time            int64  `json:"time"`
		IsBuyer         bool   `json:"isBuyer"`
	}
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}
	out := make([]common.Trade, 0, len(raws))
	for _, r := range raws {
		side := common.SideSell
		if r.IsBuyer {
			side = common.SideBuy
		}
		out = append(out, common.Trade{
			ID:              strconv.FormatInt(r.ID, 10),
			OrderID:         strconv.FormatInt(r.OrderID, 10),
			Symbol:          symbol,
			Side:            side,
			Quantity:        parseFloat(r.Qty),
			Price:           parseFloat(r.Price),
			Fee:             parseFloat(r.Commission),
			FeeCurrency:     r.CommissionAsset,
			Timestamp:       time.UnixMilli(r.Time),
			ExchangeTradeID: strconv.FormatInt(r.ID, 10),
		})
	}
	return out, nil
}

// --- plumbing ---

func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// doSigned appends timestamp and HMAC-SHA256 signature, then sends with the
// API key header. Binance expects the signature over the encoded query.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, errors.New("binance: API key/secret required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timestamp := time.Now().UnixMilli()
	if c.timeSync.Offset() != 0 {
		timestamp = c.timeSync.Now()
	}
	params.Set("timestamp", strconv.FormatInt(timestamp, 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	params.Set("signature", sign(params.Encode(), c.cfg.APISecret))

	var (
		req *http.Request
		err error
	)
	encoded := params.Encode()
	endpoint := c.baseURL + path
	switch method {
	case http.MethodPost:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	c.limiter.ObserveHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("binance %s %s status %d: %s", req.Method, req.URL.Path, res.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) getServerTime(ctx context.Context) (int64, error) {
	body, err := c.doPublic(ctx, "/api/v3/time", nil)
	if err != nil {
		return 0, err
	}
	var raw struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, err
	}
	return raw.ServerTime, nil
}

// binanceOrder is the raw order shape shared by the order endpoints.
type binanceOrder struct {
	Symbol      string `json:"symbol"`
	OrderID     int64  `json:"orderId"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	Price       string `json:"price"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
	Status      string `json:"status"`
	Time        int64  `json:"time"`
	UpdateTime  int64  `json:"updateTime"`
}

func (r binanceOrder) normalize() common.Order {
	qty := parseFloat(r.OrigQty)
	filled := parseFloat(r.ExecutedQty)
	return common.Order{
		ID:              strconv.FormatInt(r.OrderID, 10),
		Symbol:          r.Symbol,
		Side:            common.Side(r.Side),
		Type:            fromBinanceOrderType(r.Type),
		Quantity:        qty,
		Price:           parseFloat(r.Price),
		Status:          mapStatus(r.Status),
		FilledQuantity:  filled,
		RemainingQty:    qty - filled,
		CreatedAt:       time.UnixMilli(r.Time),
		UpdatedAt:       time.UnixMilli(r.UpdateTime),
		ExchangeOrderID: strconv.FormatInt(r.OrderID, 10),
	}
}

func mapStatus(s string) common.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW":
		return common.StatusPending
	case "PARTIALLY_FILLED":
		return common.StatusPartial
	case "FILLED":
		return common.StatusFilled
	case "CANCELED", "EXPIRED":
		return common.StatusCancelled
	case "REJECTED":
		return common.StatusRejected
	default:
		return common.StatusUnknown
	}
}

func toBinanceOrderType(t common.OrderType) string {
	switch t {
	case common.OrderTypeStopLoss:
		return "STOP_LOSS"
	case common.OrderTypeTakeProfit:
		return "TAKE_PROFIT"
	case common.OrderTypeMarket:
		return "MARKET"
	default:
		return "LIMIT"
	}
}

func fromBinanceOrderType(t string) common.OrderType {
	switch strings.ToUpper(t) {
	case "MARKET":
		return common.OrderTypeMarket
	case "STOP_LOSS", "STOP_LOSS_LIMIT":
		return common.OrderTypeStopLoss
	case "TAKE_PROFIT", "TAKE_PROFIT_LIMIT":
		return common.OrderTypeTakeProfit
	default:
		return common.OrderTypeLimit
	}
}

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
