package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
)

type submitJobRequest struct {
	Type           string `json:"type" binding:"required"`
	Payload        any    `json:"payload"`
	IdempotencyKey string `json:"idempotency_key"`
	TraceID        string `json:"trace_id"`
}

var submittableJobTypes = map[string]struct{}{
	jobdomain.TypeUploadParse:          {},
	jobdomain.TypeMeshDecimate:         {},
	jobdomain.TypePricingBatch:         {},
	jobdomain.TypePricingRationale:     {},
	jobdomain.TypeAdminPricingRevision: {},
}

func (s *Server) SubmitJob(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	jobType := strings.TrimSpace(req.Type)
	if _, ok := submittableJobTypes[jobType]; !ok {
		AbortWithError(c, newValidationError("type", "unknown_job_type", "unknown job type"))
		return
	}

	res, err := s.queue.Enqueue(c.Request.Context(), jobdomain.EnqueueRequest{
		OrgID:          orgIDFromContext(c),
		Type:           jobType,
		Payload:        req.Payload,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		TraceID:        strings.TrimSpace(req.TraceID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, res)
}

func (s *Server) GetJob(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	job, err := s.queue.Get(c.Request.Context(), orgIDFromContext(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, job)
}

func (s *Server) CancelJob(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.queue.Cancel(c.Request.Context(), orgIDFromContext(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, gin.H{"cancelled": true})
}
