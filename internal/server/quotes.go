package server

import (
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	quotedomain "github.com/quoteforgelabs/quoteforge/internal/quote/domain"
)

type createQuoteRequest struct {
	Currency string `json:"currency"`
}

func (s *Server) CreateQuote(c *gin.Context) {
	var req createQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	quote := &quotedomain.Quote{
		ID:       s.genID.Generate(),
		OrgID:    orgIDFromContext(c),
		Currency: currency,
	}
	if err := s.quoteRepo.Insert(c.Request.Context(), s.db, quote); err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, quote)
}

func (s *Server) GetQuote(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	quote, err := s.quoteRepo.FindByID(c.Request.Context(), s.db, orgIDFromContext(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, quote)
}
