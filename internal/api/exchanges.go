package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"autotrader/internal/gateway"
	"autotrader/internal/store"
	"autotrader/pkg/exchanges/common"
)

type connectExchangeRequest struct {
	Exchange  common.ExchangeType `json:"exchange" binding:"required"`
	Name      string              `json:"name"`
	APIKey    string              `json:"api_key" binding:"required"`
	APISecret string              `json:"api_secret" binding:"required"`
	Testnet   bool                `json:"testnet"`
}

// connectExchange stores the credential and registers a live adapter.
func (s *Server) connectExchange(c *gin.Context) {
	var req connectExchangeRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	key, err := s.Gateway.CreateAndConnect(c.Request.Context(), gateway.Credentials{
		Exchange:  req.Exchange,
		APIKey:    req.APIKey,
		APISecret: req.APISecret,
		Testnet:   req.Testnet,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	cred := &store.Credential{
		UserID:       CurrentUserID(c),
		ExchangeType: req.Exchange,
		Name:         req.Name,
		APIKey:       req.APIKey,
		APISecret:    req.APISecret,
		Testnet:      req.Testnet,
	}
	if err := s.DB.SaveCredential(c.Request.Context(), cred); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"key": key, "credential_id": cred.ID})
}

func (s *Server) listExchanges(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"exchanges": s.Gateway.ListAll()})
}

func (s *Server) removeExchange(c *gin.Context) {
	if err := s.Gateway.Remove(c.Param("key")); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, gateway.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": c.Param("key")})
}

type replaceCredentialsRequest struct {
	Exchange  common.ExchangeType `json:"exchange" binding:"required"`
	APIKey    string              `json:"api_key" binding:"required"`
	APISecret string              `json:"api_secret" binding:"required"`
	Testnet   bool                `json:"testnet"`
}

// replaceCredentials swaps the adapter under a key for one built from new
// credentials. The old adapter stays live if the new one fails to connect.
func (s *Server) replaceCredentials(c *gin.Context) {
	var req replaceCredentialsRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	err := s.Gateway.ReplaceCredentials(c.Request.Context(), c.Param("key"), gateway.Credentials{
		Exchange:  req.Exchange,
		APIKey:    req.APIKey,
		APISecret: req.APISecret,
		Testnet:   req.Testnet,
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, gateway.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"replaced": c.Param("key")})
}

func (s *Server) exchangeHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"health": s.Gateway.HealthCheckAll(c.Request.Context())})
}

func (s *Server) getBalances(c *gin.Context) {
	adapter, err := s.Gateway.Get(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	balances, err := adapter.GetBalances(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

func (s *Server) getSymbols(c *gin.Context) {
	adapter, err := s.Gateway.Get(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	symbols, err := adapter.GetSymbols(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}

func (s *Server) getOrderBook(c *gin.Context) {
	adapter, err := s.Gateway.Get(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	book, err := adapter.GetOrderBook(c.Request.Context(), c.Param("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if book == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid symbol"})
		return
	}
	c.JSON(http.StatusOK, book)
}

// getPrices fans the price query out across every registered adapter.
func (s *Server) getPrices(c *gin.Context) {
	prices := s.Gateway.GetPriceAll(c.Request.Context(), c.Param("symbol"))
	c.JSON(http.StatusOK, gin.H{"prices": prices})
}

type watchRequest struct {
	GatewayKey string `json:"gateway_key" binding:"required"`
	Symbol     string `json:"symbol" binding:"required"`
}

func (s *Server) watchSymbol(c *gin.Context) {
	var req watchRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := s.Market.Watch(c.Request.Context(), req.GatewayKey, req.Symbol); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"watching": req.Symbol})
}

func (s *Server) unwatchSymbol(c *gin.Context) {
	if err := s.Market.Unwatch(c.Param("symbol")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unwatched": c.Param("symbol")})
}
