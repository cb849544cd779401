package portfolio

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/bitfleet/bitfleet/internal/types"
	"github.com/bitfleet/bitfleet/pkg/response"
)

// GinHandlers contains HTTP handlers for portfolio endpoints.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates the portfolio endpoint handlers.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// CreatePortfolioHandler handles POST requests creating a portfolio with
// its fleet.
func (h *GinHandlers) CreatePortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name                string   `json:"name" binding:"required"`
			CopiedTrader        string   `json:"copied_trader"`
			CopyStrategy        string   `json:"copy_strategy" binding:"required"`
			InitialValuationWei string   `json:"initial_valuation_wei" binding:"required"`
			StopLossPercent     int      `json:"stop_loss_percent" binding:"required"`
			WalletAddresses     []string `json:"wallet_addresses" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		p, err := h.service.Create(CreateRequest{
			Name:                req.Name,
			CopiedTrader:        req.CopiedTrader,
			CopyStrategy:        req.CopyStrategy,
			InitialValuationWei: req.InitialValuationWei,
			StopLossPercent:     req.StopLossPercent,
			WalletAddresses:     req.WalletAddresses,
		})
		switch {
		case errors.Is(err, types.ErrValidation):
			response.ValidationFailed(c, err.Error())
		case errors.Is(err, ErrWalletTaken), errors.Is(err, ErrPortfolioExists):
			response.Conflict(c, err.Error())
		default:
			response.Handle(c, p, err)
		}
	}
}

// GetPortfolioHandler handles GET requests for a portfolio by name.
// URL parameter: name
func (h *GinHandlers) GetPortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := h.service.GetByName(c.Param("name"))
		response.Handle(c, p, err)
	}
}
