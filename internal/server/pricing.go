package server

import (
	"github.com/gin-gonic/gin"
	pricingdomain "github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
)

// ComputePricing is the synchronous pricing path for interactive quoting.
// Large batches go through the pricing-batch job instead.
func (s *Server) ComputePricing(c *gin.Context) {
	var req pricingdomain.ComputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.OrgID = orgIDFromContext(c).String()

	matrix, err := s.pricingSvc.ComputeMatrix(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, matrix)
}
