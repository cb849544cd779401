package rules

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/bitfleet/bitfleet/internal/gofer"
	"github.com/bitfleet/bitfleet/internal/types"
	"github.com/bitfleet/bitfleet/pkg/response"
)

// GinHandlers contains HTTP handlers for manual trigger endpoints. The
// rule set is loaded once at process start, matching the engine's
// load-per-process contract.
type GinHandlers struct {
	engine *Engine
	set    []Rule
}

// NewGinHandlers creates trigger handlers over a preloaded rule set.
func NewGinHandlers(engine *Engine, set []Rule) *GinHandlers {
	return &GinHandlers{engine: engine, set: set}
}

type triggerRequest struct {
	InvokedBy     string `json:"invoked_by" binding:"required"`
	Gamer         string `json:"gamer" binding:"required"`
	Holder        string `json:"holder"`
	Quantity      int64  `json:"quantity"`
	PortfolioName string `json:"portfolio_name"`
}

func (h *GinHandlers) trigger(c *gin.Context, buy bool) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ictx := types.Context{
		InvokedBy:     req.InvokedBy,
		Gamer:         req.Gamer,
		Holder:        req.Holder,
		Quantity:      req.Quantity,
		PortfolioName: req.PortfolioName,
	}

	var err error
	if buy {
		err = h.engine.EvaluateAndInvokeBuy(c.Request.Context(), ictx, h.set)
	} else {
		err = h.engine.EvaluateAndInvokeSell(c.Request.Context(), ictx, h.set)
	}

	switch {
	case errors.Is(err, types.ErrValidation):
		response.ValidationFailed(c, err.Error())
	case errors.Is(err, gofer.ErrDuplicateProposal):
		response.Conflict(c, err.Error())
	default:
		response.Handle(c, gin.H{"evaluated": true}, err)
	}
}

// TriggerBuyHandler handles POST requests firing the buy trigger path.
func (h *GinHandlers) TriggerBuyHandler() gin.HandlerFunc {
	return func(c *gin.Context) { h.trigger(c, true) }
}

// TriggerSellHandler handles POST requests firing the sell trigger path.
func (h *GinHandlers) TriggerSellHandler() gin.HandlerFunc {
	return func(c *gin.Context) { h.trigger(c, false) }
}
