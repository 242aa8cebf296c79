// Package bybit implements the Adapter capability set against the Bybit
// v5 REST and websocket APIs (linear category).
package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"autotrader/pkg/exchanges/common"
)

// Config holds Bybit credentials and connection options.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// Client is a Bybit adapter instance.
type Client struct {
	cfg        Config
	baseURL    string
	wsURL      string
	httpClient *http.Client
	limiter    *common.RequestLimiter

	connected bool
	subs      map[string]*feedSub
	mu        sync.Mutex
}

// New builds a disconnected Bybit client.
func New(cfg Config) *Client {
	base := "https://api.bybit.com"
	ws := "wss://stream.bybit.com/v5/public/linear"
	if cfg.Testnet {
		base = "https://api-testnet.bybit.com"
		ws = "wss://stream-testnet.bybit.com/v5/public/linear"
	}
	return &Client{
		cfg:        cfg,
		baseURL:    base,
		wsURL:      ws,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// 600 requests per 5s window on the shared v5 limit
		limiter: common.NewRequestLimiter(600, 5*time.Second),
		subs:    make(map[string]*feedSub),
	}
}

func (c *Client) ExchangeType() common.ExchangeType { return common.ExchangeBybit }
func (c *Client) Testnet() bool                     { return c.cfg.Testnet }

// Connect verifies API reachability via the server-time endpoint.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.doPublic(ctx, "/v5/market/time", nil)
	if err != nil {
		return fmt.Errorf("bybit connect: %w", err)
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

// HealthCheck reports true when the wallet-balance call succeeds.
func (c *Client) HealthCheck(ctx context.Context) bool {
	_, err := c.GetAccountInfo(ctx)
	return err == nil
}

// GetAccountInfo fetches the unified wallet balance.
func (c *Client) GetAccountInfo(ctx context.Context) (*common.AccountInfo, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/v5/account/wallet-balance",
		url.Values{"accountType": {"UNIFIED"}})
	if err != nil {
		return nil, err
	}

	var raw struct {
		Result struct {
			List []struct {
				Coin []struct {
					Coin                string `json:"coin"`
					WalletBalance       string `json:"walletBalance"`
					AvailableToWithdraw string `json:"availableToWithdraw"`
				} `json:"coin"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode wallet balance: %w", err)
	}

	info := &common.AccountInfo{CanTrade: true, UpdateTime: time.Now().UTC()}
	for _, acct := range raw.Result.List {
		for _, coin := range acct.Coin {
			total := parseFloat(coin.WalletBalance)
			free := parseFloat(coin.AvailableToWithdraw)
			info.Balances = append(info.Balances, common.Balance{
				Asset:  coin.Coin,
				Free:   free,
				Locked: total - free,
				Total:  total,
			})
		}
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

// GetSymbols lists instruments currently in Trading status.
func (c *Client) GetSymbols(ctx context.Context) ([]string, error) {
	body, err := c.doPublic(ctx, "/v5/market/instruments-info", url.Values{"category": {"linear"}})
	if err != nil {
		return nil, err
	}
	var raw struct {
		Result struct {
			List []struct {
				Symbol string `json:"symbol"`
				Status string `json:"status"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode instruments: %w", err)
	}
	var out []string
	for _, inst := range raw.Result.List {
		if inst.Status == "Trading" {
			out = append(out, inst.Symbol)
		}
	}
	return out, nil
}

// GetPrice fetches the latest ticker for one symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (*common.PriceData, error) {
	if !common.ValidSymbol(symbol) {
		return nil, nil
	}
	body, err := c.doPublic(ctx, "/v5/market/tickers", url.Values{
		"category": {"linear"},
		"symbol":   {symbol},
	})
	if err != nil {
		return nil, err
	}
	var raw struct {
		Result struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
				Volume24h string `json:"volume24h"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode tickers: %w", err)
	}
	if len(raw.Result.List) == 0 {
		return nil, nil
	}
	t := raw.Result.List[0]
	return &common.PriceData{
		Symbol:    symbol,
		Price:     parseFloat(t.LastPrice),
		Volume:    parseFloat(t.Volume24h),
		Timestamp: time.Now().UTC(),
		Exchange:  common.ExchangeBybit,
	}, nil
}

// GetOrderBook fetches a depth snapshot, limit capped at 200.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, limit int) (*common.OrderBook, error) {
	if !common.ValidSymbol(symbol) {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	body, err := c.doPublic(ctx, "/v5/market/orderbook", url.Values{
		"category": {"linear"},
		"symbol":   {symbol},
		"limit":    {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}
	var raw struct {
		Result struct {
			Bids [][]string `json:"b"`
			Asks [][]string `json:"a"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode orderbook: %w", err)
	}
	book := &common.OrderBook{Symbol: symbol}
	for _, b := range raw.Result.Bids {
		if len(b) >= 2 {
			book.Bids = append(book.Bids, common.OrderBookLevel{Price: parseFloat(b[0]), Quantity: parseFloat(b[1])})
		}
	}
	for _, a := range raw.Result.Asks {
		if len(a) >= 2 {
			book.Asks = append(book.Asks, common.OrderBookLevel{Price: parseFloat(a[0]), Quantity: parseFloat(a[1])})
		}
	}
	return book, nil
}

// PlaceOrder submits a new linear order. Invalid input short-circuits with nil.
func (c *Client) PlaceOrder(ctx context.Context, symbol string, side common.Side, orderType common.OrderType, quantity, price float64) (*common.Order, error) {
	if !common.ValidSymbol(symbol) || !common.ValidQuantity(quantity) {
		return nil, nil
	}
	if orderType != common.OrderTypeMarket && !common.ValidPrice(price) {
		return nil, nil
	}

	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)
	params.Set("side", toBybitSide(side))
	params.Set("orderType", toBybitOrderType(orderType))
	params.Set("qty", formatFloat(quantity))
	if orderType != common.OrderTypeMarket {
		params.Set("price", formatFloat(price))
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/v5/order/create", params)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Result struct {
			OrderID string `json:"orderId"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	if raw.Result.OrderID == "" {
		return nil, nil
	}

	now := time.Now().UTC()
	return &common.Order{
		ID:              raw.Result.OrderID,
		Symbol:          symbol,
		Side:            side,
		Type:            orderType,
		Quantity:        quantity,
		Price:           price,
		Status:          common.StatusPending,
		FilledQuantity:  0,
		RemainingQty:    quantity,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExchangeOrderID: raw.Result.OrderID,
	}, nil
}

// CancelOrder cancels one open order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	if !common.ValidSymbol(symbol) || orderID == "" {
		return false, nil
	}
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	body, err := c.doSigned(ctx, http.MethodPost, "/v5/order/cancel", params)
	if err != nil {
		return false, err
	}
	var raw struct {
		Result struct {
			OrderID string `json:"orderId"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return false, fmt.Errorf("decode cancel response: %w", err)
	}
	return raw.Result.OrderID != "", nil
}

// GetOrder fetches a single order by exchange id.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (*common.Order, error) {
	if !common.ValidSymbol(symbol) || orderID == "" {
		return nil, nil
	}
	orders, err := c.queryOrders(ctx, url.Values{
		"category": {"linear"},
		"symbol":   {symbol},
		"orderId":  {orderID},
	}, false)
	if err != nil || len(orders) == 0 {
		return nil, err
	}
	return &orders[0], nil
}

// GetOpenOrders lists open orders; empty symbol means all symbols.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]common.Order, error) {
	params := url.Values{"category": {"linear"}}
	if symbol != "" {
		if !common.ValidSymbol(symbol) {
			return nil, nil
		}
		params.Set("symbol", symbol)
	}
	return c.queryOrders(ctx, params, true)
}

func (c *Client) queryOrders(ctx context.Context, params url.Values, openOnly bool) ([]common.Order, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/v5/order/realtime", params)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Result struct {
			List []bybitOrder `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	out := make([]common.Order, 0, len(raw.Result.List))
	for _, r := range raw.Result.List {
		if openOnly && r.OrderStatus != "New" && r.OrderStatus != "PartiallyFilled" {
			continue
		}
		out = append(out, r.normalize())
	}
	return out, nil
}

// GetTrades lists recent executions for a symbol.
func (c *Client) GetTrades(ctx context.Context, symbol string, limit int) ([]common.Trade, error) {
	if !common.ValidSymbol(symbol) {
		return nil, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/v5/execution/list", url.Values{
		"category": {"linear"},
		"symbol":   {symbol},
		"limit":    {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}
	var raw struct {
		Result struct {
			List []struct {
				ExecID    string `json:"execId"`
				OrderID   string `json:"orderId"`
				Side      string `json:"side"`
				ExecQty   string `json:"execQty"`
				ExecPrice string `json:"execPrice"`
				ExecFee   string `json:"execFee"`
				FeeCoin   string `json:"feeCurrency"`
				ExecTime  string `json:"execTime"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode executions: %w", err)
	}
	out := make([]common.Trade, 0, len(raw.Result.List))
	for _, r := range raw.Result.List {
		ms, _ := strconv.ParseInt(r.ExecTime, 10, 64)
		out = append(out, common.Trade{
			ID:              r.ExecID,
			OrderID:         r.OrderID,
			Symbol:          symbol,
			Side:            fromBybitSide(r.Side),
			Quantity:        parseFloat(r.ExecQty),
			Price:           parseFloat(r.ExecPrice),
			Fee:             parseFloat(r.ExecFee),
			FeeCurrency:     r.FeeCoin,
			Timestamp:       time.UnixMilli(ms),
			ExchangeTradeID: r.ExecID,
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

// doSigned appends timestamp and an HMAC-SHA256 signature over the encoded
// query, then attaches the API key via X-BAPI-API-KEY. POST bodies carry the
// same parameters as JSON.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, errors.New("bybit: API key/secret required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("signature", sign(params.Encode(), c.cfg.APISecret))

	var (
		req *http.Request
		err error
	)
	endpoint := c.baseURL + path
	if method == http.MethodPost {
		payload := make(map[string]string, len(params))
		for k := range params {
			payload[k] = params.Get(k)
		}
		var body []byte
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-BAPI-API-KEY", c.cfg.APIKey)
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("bybit %s %s status %d: %s", req.Method, req.URL.Path, res.StatusCode, string(body))
	}
	return body, nil
}

// bybitOrder is the raw order shape from /v5/order/realtime.
type bybitOrder struct {
	OrderID     string `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price"`
	OrderStatus string `json:"orderStatus"`
	CumExecQty  string `json:"cumExecQty"`
	CreatedTime string `json:"createdTime"`
	UpdatedTime string `json:"updatedTime"`
}

func (r bybitOrder) normalize() common.Order {
	qty := parseFloat(r.Qty)
	filled := parseFloat(r.CumExecQty)
	created, _ := strconv.ParseInt(r.CreatedTime, 10, 64)
	updated, _ := strconv.ParseInt(r.UpdatedTime, 10, 64)
	return common.Order{
		ID:              r.OrderID,
		Symbol:          r.Symbol,
		Side:            fromBybitSide(r.Side),
		Type:            fromBybitOrderType(r.OrderType),
		Quantity:        qty,
		Price:           parseFloat(r.Price),
		Status:          mapStatus(r.OrderStatus),
		FilledQuantity:  filled,
		RemainingQty:    qty - filled,
		CreatedAt:       time.UnixMilli(created),
		UpdatedAt:       time.UnixMilli(updated),
		ExchangeOrderID: r.OrderID,
	}
}

func mapStatus(s string) common.OrderStatus {
	switch s {
	case "New", "Untriggered":
		return common.StatusPending
	case "PartiallyFilled":
		return common.StatusPartial
	case "Filled":
		return common.StatusFilled
	case "Cancelled", "Deactivated":
		return common.StatusCancelled
	case "Rejected":
		return common.StatusRejected
	default:
		return common.StatusUnknown
	}
}

// Bybit uses capitalized enum casing on the wire.
func toBybitSide(s common.Side) string {
	if s == common.SideSell {
		return "Sell"
	}
	return "Buy"
}

func fromBybitSide(s string) common.Side {
	if strings.EqualFold(s, "Sell") {
		return common.SideSell
	}
	return common.SideBuy
}

func toBybitOrderType(t common.OrderType) string {
	if t == common.OrderTypeMarket {
		return "Market"
	}
	return "Limit"
}

func fromBybitOrderType(t string) common.OrderType {
	if strings.EqualFold(t, "Market") {
		return common.OrderTypeMarket
	}
	return common.OrderTypeLimit
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
