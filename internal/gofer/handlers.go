package gofer

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfleet/bitfleet/pkg/response"
)

// GinHandlers contains HTTP handlers for proposal queue endpoints.
type GinHandlers struct {
	queue *Queue
}

// NewGinHandlers creates the operator-facing queue handlers.
func NewGinHandlers(queue *Queue) *GinHandlers {
	return &GinHandlers{queue: queue}
}

// ListProposalsHandler handles GET requests for queued proposals.
// Optional query parameter: status (PENDING, RESOLVED, FAILED).
func (h *GinHandlers) ListProposalsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		proposals, err := h.queue.ListProposals(c.Query("status"))
		response.Handle(c, proposals, err)
	}
}

// GetProposalHandler handles GET requests for a single proposal.
// URL parameter: proposal_id
func (h *GinHandlers) GetProposalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		proposal, err := h.queue.GetProposal(c.Param("proposal_id"))
		if err == nil && proposal == nil {
			response.NotFound(c, "Proposal not found")
			return
		}
		response.Handle(c, proposal, err)
	}
}
