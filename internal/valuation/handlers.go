package valuation

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bitfleet/bitfleet/internal/portfolio"
	"github.com/bitfleet/bitfleet/pkg/response"
)

// GinHandlers contains HTTP handlers for P&L reporting.
type GinHandlers struct {
	engine     *Engine
	portfolios *portfolio.Service
}

// NewGinHandlers creates the reporting handlers.
func NewGinHandlers(engine *Engine, portfolios *portfolio.Service) *GinHandlers {
	return &GinHandlers{engine: engine, portfolios: portfolios}
}

// PandLReportHandler handles GET requests for a P&L report.
// Query parameters: start_block (optional), portfolio (optional fleet
// scope).
func (h *GinHandlers) PandLReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var startBlock uint64
		if raw := c.Query("start_block"); raw != "" {
			parsed, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				response.BadRequest(c, "start_block must be a non-negative integer")
				return
			}
			startBlock = parsed
		}

		var holders []string
		if name := c.Query("portfolio"); name != "" {
			// Resolve the portfolio first so an unknown name is a 404, not
			// an unfiltered fleet-wide report.
			if _, err := h.portfolios.GetByName(name); err != nil {
				response.Handle(c, nil, err)
				return
			}
			wallets, err := h.portfolios.Wallets(name)
			if err != nil {
				response.Handle(c, nil, err)
				return
			}
			holders = wallets
		}

		report, err := h.engine.ComputePandL(c.Request.Context(), startBlock, holders...)
		response.Handle(c, report, err)
	}
}
