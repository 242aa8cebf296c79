package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"autotrader/pkg/exchanges/common"
)

// wsTestServer upgrades every request and counts accepted connections.
// Connections stay open until the client closes them.
type wsTestServer struct {
	*httptest.Server
	accepted atomic.Int32
}

func newWSTestServer(t *testing.T, onConn func(*websocket.Conn)) *wsTestServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := &wsTestServer{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		srv.accepted.Add(1)
		if onConn != nil {
			onConn(conn)
		}
		// drain until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (s *wsTestServer) wsBase() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/"
}

func TestSubscribePriceFeedDeliversTicks(t *testing.T) {
	srv := newWSTestServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"e":"24hrTicker","s":"BTCUSDT","c":"50100.5","v":"42"}`))
	})

	c := New(Config{})
	c.wsBase = srv.wsBase()

	ticks := make(chan float64, 1)
	err := c.SubscribePriceFeed(context.Background(), "BTCUSDT", func(pd common.PriceData) {
		select {
		case ticks <- pd.Price:
		default:
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer c.UnsubscribePriceFeed("BTCUSDT")

	select {
	case price := <-ticks:
		if price != 50100.5 {
			t.Fatalf("tick price = %v, want 50100.5", price)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick delivered")
	}
}

// Concurrent subscribes for one symbol must end with exactly one
// registered feed; the losers' connections close instead of leaking
// readers that unsubscribe can never reach.
func TestSubscribePriceFeedConcurrentSameSymbol(t *testing.T) {
	srv := newWSTestServer(t, nil)

	c := New(Config{})
	c.wsBase = srv.wsBase()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.SubscribePriceFeed(context.Background(), "BTCUSDT", func(common.PriceData) {}); err != nil {
				t.Errorf("subscribe: %v", err)
			}
		}()
	}
	wg.Wait()

	c.mu.Lock()
	registered := len(c.subs)
	c.mu.Unlock()
	if registered != 1 {
		t.Fatalf("registered feeds = %d, want 1", registered)
	}
	if srv.accepted.Load() < 1 {
		t.Fatal("server saw no connections")
	}

	if err := c.UnsubscribePriceFeed("BTCUSDT"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	c.mu.Lock()
	registered = len(c.subs)
	c.mu.Unlock()
	if registered != 0 {
		t.Fatalf("feeds after unsubscribe = %d, want 0", registered)
	}
}

func TestUnsubscribeJoinsReader(t *testing.T) {
	srv := newWSTestServer(t, nil)

	c := New(Config{})
	c.wsBase = srv.wsBase()

	if err := c.SubscribePriceFeed(context.Background(), "ETHUSDT", func(common.PriceData) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	c.mu.Lock()
	sub := c.subs["ETHUSDT"]
	c.mu.Unlock()

	if err := c.UnsubscribePriceFeed("ETHUSDT"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	select {
	case <-sub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader goroutine still running after unsubscribe")
	}

	// a second unsubscribe is an error, not a hang
	if err := c.UnsubscribePriceFeed("ETHUSDT"); err == nil {
		t.Fatal("second unsubscribe succeeded")
	}
}
