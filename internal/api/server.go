// Package api exposes the trading platform over HTTP and websocket,
// built on gin with JWT auth and per-IP rate limiting.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autotrader/internal/engine"
	"autotrader/internal/events"
	"autotrader/internal/gateway"
	"autotrader/internal/market"
	"autotrader/internal/risk"
	"autotrader/internal/store"
)

// Server wires the HTTP endpoints around the platform services.
type Server struct {
	Router  *gin.Engine
	Bus     *events.Bus
	DB      *store.Database
	Gateway *gateway.Manager
	Engine  *engine.Engine
	Gate    *risk.Gate
	Market  *market.Source
	Stats   store.StatsSource

	JWTSecret string
}

// Config holds server construction options.
type Config struct {
	Bus       *events.Bus
	DB        *store.Database
	Gateway   *gateway.Manager
	Engine    *engine.Engine
	Gate      *risk.Gate
	Market    *market.Source
	Stats     store.StatsSource
	JWTSecret string
	RateLimit float64
	RateBurst int
}

// NewServer builds the router and registers all routes.
func NewServer(cfg Config) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware(newIPLimiters(cfg.RateLimit, cfg.RateBurst)))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       cfg.Bus,
		DB:        cfg.DB,
		Gateway:   cfg.Gateway,
		Engine:    cfg.Engine,
		Gate:      cfg.Gate,
		Market:    cfg.Market,
		Stats:     cfg.Stats,
		JWTSecret: cfg.JWTSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	protected := api.Group("")
	protected.Use(AuthMiddleware(s.JWTSecret))
	{
		// Exchange gateway
		protected.GET("/exchanges", s.listExchanges)
		protected.POST("/exchanges", s.connectExchange)
		protected.DELETE("/exchanges/:key", s.removeExchange)
		protected.PUT("/exchanges/:key/credentials", s.replaceCredentials)
		protected.GET("/exchanges/health", s.exchangeHealth)
		protected.GET("/exchanges/:key/balances", s.getBalances)
		protected.GET("/exchanges/:key/symbols", s.getSymbols)
		protected.GET("/exchanges/:key/orderbook/:symbol", s.getOrderBook)
		protected.GET("/prices/:symbol", s.getPrices)

		// Market feed subscriptions
		protected.POST("/market/watch", s.watchSymbol)
		protected.DELETE("/market/watch/:symbol", s.unwatchSymbol)

		// Strategy engine
		protected.GET("/strategies", s.listStrategies)
		protected.POST("/strategies", s.startStrategy)
		protected.GET("/strategies/:id", s.getStrategy)
		protected.GET("/strategies/:id/metrics", s.getStrategyMetrics)
		protected.POST("/strategies/:id/stop", s.stopStrategy)
		protected.POST("/strategies/:id/pause", s.pauseStrategy)
		protected.POST("/strategies/:id/resume", s.resumeStrategy)
		protected.POST("/strategies/:id/reset", s.resetStrategy)
		protected.PUT("/strategies/:id/config", s.updateStrategyConfig)

		// Risk gate
		protected.POST("/risk/check", s.checkTrade)
		protected.GET("/risk/profile", s.getRiskProfile)
		protected.PUT("/risk/profile", s.putRiskProfile)
		protected.GET("/risk/metrics", s.getRiskMetrics)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start serves on addr, blocking until the listener fails.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
