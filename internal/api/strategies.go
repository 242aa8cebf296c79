package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"autotrader/internal/engine"
	"autotrader/internal/strategy"
)

type startStrategyRequest struct {
	Type       strategy.Type      `json:"type" binding:"required"`
	Symbol     string             `json:"symbol" binding:"required"`
	GatewayKey string             `json:"gateway_key" binding:"required"`
	Config     map[string]float64 `json:"config"`
}

// startStrategy builds a strategy from the payload and launches it.
// Parameters are merged over the defaults for the type.
func (s *Server) startStrategy(c *gin.Context) {
	var req startStrategyRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	cfg := strategy.DefaultConfig(req.Type)
	for k, v := range req.Config {
		cfg[k] = v
	}

	strat, err := strategy.New(req.Type, "", req.Symbol, cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Engine.Start(c.Request.Context(), strat, req.GatewayKey); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, strat.Status())
}

func (s *Server) listStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.Engine.StatusAll()})
}

func (s *Server) getStrategy(c *gin.Context) {
	status, err := s.Engine.Status(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) getStrategyMetrics(c *gin.Context) {
	metrics, err := s.Engine.Metrics(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": metrics})
}

func (s *Server) stopStrategy(c *gin.Context) {
	if err := s.Engine.Stop(c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": c.Param("id")})
}

func (s *Server) pauseStrategy(c *gin.Context) {
	if err := s.Engine.Pause(c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": c.Param("id")})
}

func (s *Server) resumeStrategy(c *gin.Context) {
	if err := s.Engine.Resume(c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resumed": c.Param("id")})
}

// resetStrategy clears grid fill state; only grid strategies support it.
func (s *Server) resetStrategy(c *gin.Context) {
	strat, err := s.Engine.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	grid, ok := strat.(*strategy.Grid)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "strategy does not support reset"})
		return
	}
	grid.Reset()
	c.JSON(http.StatusOK, gin.H{"reset": c.Param("id")})
}

// updateStrategyConfig applies a partial config update all-or-nothing.
func (s *Server) updateStrategyConfig(c *gin.Context) {
	var cfg map[string]float64
	if err := c.BindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := s.Engine.UpdateConfig(c.Param("id"), strategy.Config(cfg)); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	status, _ := s.Engine.Status(c.Param("id"))
	c.JSON(http.StatusOK, status)
}

func statusFor(err error) int {
	if errors.Is(err, engine.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusUnprocessableEntity
}
