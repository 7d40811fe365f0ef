package server

import (
	"errors"
	"io"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/quoteforgelabs/quoteforge/pkg/db/pagination"
)

func (s *Server) ListRevisions(c *gin.Context) {
	quoteID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	revisions, pageInfo, err := s.revisionSvc.List(c.Request.Context(), orgIDFromContext(c), quoteID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, revisions, pageInfo)
}

func (s *Server) GetRevision(c *gin.Context) {
	quoteID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	revisionID, err := pathID(c, "revision_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rev, err := s.revisionSvc.Get(c.Request.Context(), orgIDFromContext(c), revisionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if rev.QuoteID != quoteID {
		AbortWithError(c, ErrNotFound)
		return
	}

	respondData(c, rev)
}

func (s *Server) CompareRevisions(c *gin.Context) {
	quoteID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	aID, err := snowflake.ParseString(strings.TrimSpace(c.Query("a")))
	if err != nil {
		AbortWithError(c, newValidationError("a", "invalid_id", "invalid id"))
		return
	}
	bID, err := snowflake.ParseString(strings.TrimSpace(c.Query("b")))
	if err != nil {
		AbortWithError(c, newValidationError("b", "invalid_id", "invalid id"))
		return
	}

	cmp, err := s.revisionSvc.Compare(c.Request.Context(), orgIDFromContext(c), quoteID, aID, bID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, cmp)
}

type restoreRevisionRequest struct {
	UserID string `json:"user_id"`
	Note   string `json:"note"`
}

func (s *Server) RestoreRevision(c *gin.Context) {
	quoteID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	revisionID, err := pathID(c, "revision_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Body is optional; restore with no note is the common case.
	var req restoreRevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	var userID *snowflake.ID
	if raw := strings.TrimSpace(req.UserID); raw != "" {
		uid, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("user_id", "invalid_id", "invalid id"))
			return
		}
		userID = &uid
	}

	rev, err := s.revisionSvc.Restore(c.Request.Context(), orgIDFromContext(c), quoteID, revisionID, userID, req.Note)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, rev)
}
