package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"autotrader/internal/risk"
	"autotrader/internal/store"
	"autotrader/pkg/exchanges/common"
)

type checkTradeRequest struct {
	Symbol    string  `json:"symbol" binding:"required"`
	Side      string  `json:"side" binding:"required"`
	OrderType string  `json:"order_type"`
	Quantity  float64 `json:"quantity" binding:"required"`
	Price     float64 `json:"price"`
}

// checkTrade runs the proposed trade through the risk gate and returns
// the structured verdict without placing anything.
func (s *Server) checkTrade(c *gin.Context) {
	var req checkTradeRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	profile, err := s.activeProfile(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	snap, err := s.Stats.AccountSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	orderType := common.OrderTypeMarket
	if req.OrderType != "" {
		orderType = common.OrderType(req.OrderType)
	}
	result := s.Gate.CheckTrade(profile, risk.TradeRequest{
		Symbol:    req.Symbol,
		Side:      common.Side(req.Side),
		OrderType: orderType,
		Quantity:  req.Quantity,
		Price:     req.Price,
	}, snap)
	c.JSON(http.StatusOK, result)
}

func (s *Server) getRiskProfile(c *gin.Context) {
	profile, err := s.activeProfile(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, profile)
}

// putRiskProfile validates and stores a new active profile, deactivating
// the previous one.
func (s *Server) putRiskProfile(c *gin.Context) {
	var profile risk.Profile
	if err := c.BindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	profile.UserID = CurrentUserID(c)
	profile.Active = true

	if err := s.DB.SaveRiskProfile(c.Request.Context(), &profile); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) getRiskMetrics(c *gin.Context) {
	profile, err := s.activeProfile(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	snap, err := s.Stats.AccountSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, risk.BuildMetrics(profile, snap, snap.PositionValue))
}

func (s *Server) activeProfile(c *gin.Context) (risk.Profile, error) {
	p, err := s.DB.GetActiveRiskProfile(c.Request.Context(), CurrentUserID(c))
	if errors.Is(err, store.ErrNotFound) {
		return risk.DefaultProfile(CurrentUserID(c)), nil
	}
	if err != nil {
		return risk.Profile{}, err
	}
	return *p, nil
}
