package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"autotrader/pkg/exchanges/common"
)

// feedSub owns one websocket connection to the shared public stream,
// subscribed to a single ticker topic.
type feedSub struct {
	conn *websocket.Conn
	once sync.Once
	done chan struct{}
}

func (s *feedSub) stop() {
	s.once.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
	})
	<-s.done
}

// SubscribePriceFeed opens a public-stream connection and subscribes to
// tickers.<SYMBOL>, invoking cb for each update until unsubscribed.
func (c *Client) SubscribePriceFeed(ctx context.Context, symbol string, cb common.PriceCallback) error {
	if !common.ValidSymbol(symbol) {
		return fmt.Errorf("bybit: invalid symbol %q", symbol)
	}

	c.mu.Lock()
	if _, ok := c.subs[symbol]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("bybit ws dial: %w", err)
	}

	subMsg := map[string]any{
		"op":   "subscribe",
		"args": []string{"tickers." + symbol},
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		conn.Close()
		return fmt.Errorf("bybit ws subscribe: %w", err)
	}

	sub := &feedSub{conn: conn, done: make(chan struct{})}

	c.mu.Lock()
	if _, ok := c.subs[symbol]; ok {
		c.mu.Unlock()
		conn.Close()
		close(sub.done)
		return nil
	}
	c.subs[symbol] = sub
	c.mu.Unlock()

	go func() {
		defer close(sub.done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if pd, ok := parseTickerMessage(symbol, msg); ok {
				cb(pd)
			}
		}
	}()

	log.Printf("bybit: subscribed price feed %s", symbol)
	return nil
}

// UnsubscribePriceFeed stops the feed for symbol and waits for its reader.
func (c *Client) UnsubscribePriceFeed(symbol string) error {
	c.mu.Lock()
	sub, ok := c.subs[symbol]
	if ok {
		delete(c.subs, symbol)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	sub.stop()
	log.Printf("bybit: unsubscribed price feed %s", symbol)
	return nil
}

// parseTickerMessage extracts price and volume from a tickers.* push.
// Snapshot pushes carry data as an object, delta pushes may omit fields.
func parseTickerMessage(symbol string, msg []byte) (common.PriceData, bool) {
	var frame struct {
		Topic string          `json:"topic"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &frame); err != nil || frame.Topic == "" {
		return common.PriceData{}, false
	}

	type tick struct {
		LastPrice string `json:"lastPrice"`
		Volume24h string `json:"volume24h"`
	}
	var t tick
	if err := json.Unmarshal(frame.Data, &t); err != nil {
		// some streams wrap data in an array
		var list []tick
		if err := json.Unmarshal(frame.Data, &list); err != nil || len(list) == 0 {
			return common.PriceData{}, false
		}
		t = list[0]
	}
	if t.LastPrice == "" {
		return common.PriceData{}, false
	}

	return common.PriceData{
		Symbol:    symbol,
		Price:     parseFloat(t.LastPrice),
		Volume:    parseFloat(t.Volume24h),
		Timestamp: time.Now().UTC(),
		Exchange:  common.ExchangeBybit,
	}, true
}
