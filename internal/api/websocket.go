package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"autotrader/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamTopics are the bus topics forwarded to websocket clients.
var streamTopics = []events.Event{
	events.EventPriceTick,
	events.EventStrategySignal,
	events.EventOrderPlaced,
	events.EventRiskBlocked,
}

// websocket streams price ticks, strategy signals, and order outcomes to
// the client until the connection drops.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	msgs, unsub := s.Bus.Subscribe(100, streamTopics...)
	defer unsub()

	// Read loop exists only to notice the client going away. Clients never
	// send application frames, so any read ending means disconnect.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}
}
