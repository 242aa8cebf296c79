package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"autotrader/internal/events"
)

func newStreamServer(t *testing.T) (*events.Bus, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bus := events.NewBus()
	s := NewServer(Config{Bus: bus, JWTSecret: "test-secret", RateLimit: 100, RateBurst: 100})
	srv := httptest.NewServer(s.Router)
	t.Cleanup(srv.Close)
	return bus, srv
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", endpoint, err)
	}
	return conn
}

// waitSubscribers polls until the tick topic has the wanted subscriber
// count; the handler registers asynchronously after the dial returns.
func waitSubscribers(t *testing.T, bus *events.Bus, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bus.Subscribers(events.EventPriceTick) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscriber count never reached %d, have %d",
		want, bus.Subscribers(events.EventPriceTick))
}

func TestWebsocketStreamsBusEvents(t *testing.T) {
	bus, srv := newStreamServer(t)
	conn := dialStream(t, srv)
	defer conn.Close()

	waitSubscribers(t, bus, 1)
	bus.Publish(events.EventPriceTick, map[string]any{"symbol": "BTCUSDT", "price": 50000.0})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg events.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Topic != events.EventPriceTick {
		t.Fatalf("topic = %q, want %q", msg.Topic, events.EventPriceTick)
	}
}

func TestWebsocketUnsubscribesOnClientDisconnect(t *testing.T) {
	bus, srv := newStreamServer(t)
	conn := dialStream(t, srv)
	waitSubscribers(t, bus, 1)

	conn.Close()

	// nothing is published here; the handler has to notice the closed
	// connection on its own and drop its subscription
	waitSubscribers(t, bus, 0)
}
