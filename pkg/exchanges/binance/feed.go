package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"autotrader/pkg/exchanges/common"
)

// feedSub owns one websocket connection for one symbol's ticker stream.
type feedSub struct {
	conn *websocket.Conn
	once sync.Once
	done chan struct{}
}

// stop closes the socket and waits for the reader goroutine to exit so no
// listener leaks past unsubscribe.
func (s *feedSub) stop() {
	s.once.Do(func() {
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
	})
	<-s.done
}

// SubscribePriceFeed opens a per-symbol ticker stream and delivers
// normalized prices to cb until unsubscribed or ctx is done.
func (c *Client) SubscribePriceFeed(ctx context.Context, symbol string, cb common.PriceCallback) error {
	if !common.ValidSymbol(symbol) {
		return fmt.Errorf("binance: invalid symbol %q", symbol)
	}

	c.mu.Lock()
	if _, ok := c.subs[symbol]; ok {
		c.mu.Unlock()
		log.Printf("binance: already subscribed to %s", symbol)
		return nil
	}
	c.mu.Unlock()

	// Binance uses a per-symbol stream path with a lowercase symbol.
	endpoint := c.wsBase + strings.ToLower(symbol) + "@ticker"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial binance ws: %w", err)
	}

	sub := &feedSub{conn: conn, done: make(chan struct{})}
	c.mu.Lock()
	if _, ok := c.subs[symbol]; ok {
		// a concurrent subscribe won the race while we were dialing
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
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("binance ws read error for %s: %v", symbol, err)
				return
			}

			tick, ok := parseTickerMessage(symbol, msg)
			if !ok {
				continue
			}
			cb(tick)
		}
	}()

	log.Printf("binance: subscribed to price feed for %s", symbol)
	return nil
}

// UnsubscribePriceFeed closes the symbol's stream and joins its reader.
func (c *Client) UnsubscribePriceFeed(symbol string) error {
	c.mu.Lock()
	sub, ok := c.subs[symbol]
	if ok {
		delete(c.subs, symbol)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("binance: not subscribed to %s", symbol)
	}
	sub.stop()
	log.Printf("binance: unsubscribed from price feed for %s", symbol)
	return nil
}

// parseTickerMessage extracts close price (c) and 24h volume (v) from an
// unsolicited ticker frame.
func parseTickerMessage(symbol string, msg []byte) (common.PriceData, bool) {
	var raw struct {
		Close  string `json:"c"`
		Volume string `json:"v"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil || raw.Close == "" {
		return common.PriceData{}, false
	}
	return common.PriceData{
		Symbol:    symbol,
		Price:     parseFloat(raw.Close),
		Volume:    parseFloat(raw.Volume),
		Timestamp: time.Now().UTC(),
		Exchange:  common.ExchangeBinance,
	}, true
}
