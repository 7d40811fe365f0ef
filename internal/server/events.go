package server

import (
	"crypto/subtle"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quoteforgelabs/quoteforge/internal/progress"
)

// StreamJobEvents streams progress events for one job over SSE. A late
// subscriber gets no replay; clients fetch current job state first and use
// the stream for updates from that point on.
func (s *Server) StreamJobEvents(c *gin.Context) {
	jobID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	orgID := orgIDFromContext(c)

	events, unsubscribe, err := s.relay.Subscribe(c.Request.Context(), orgID.String(), jobID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer unsubscribe()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-done:
			return false
		case payload, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("job-event", payload)
			return payload.Status != progress.StatusCompleted &&
				payload.Status != progress.StatusFailed &&
				payload.Status != progress.StatusCancelled
		}
	})
}

type publishJobEventRequest struct {
	OrgID    string         `json:"org_id"`
	JobID    string         `json:"job_id"`
	Status   string         `json:"status"`
	Progress *int           `json:"progress"`
	Message  string         `json:"message"`
	Meta     map[string]any `json:"meta"`
	TraceID  string         `json:"trace_id"`
	Error    string         `json:"error"`
	Result   any            `json:"result"`
}

// PublishJobEvent is the callback for out-of-process workers. They push
// lifecycle events here and the server republishes them into the job's room.
func (s *Server) PublishJobEvent(c *gin.Context) {
	secret := strings.TrimSpace(c.GetHeader("x-worker-secret"))
	if s.cfg.WorkerSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.WorkerSecret)) != 1 {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req publishJobEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.OrgID) == "" {
		AbortWithError(c, newValidationError("org_id", "required", "org_id is required"))
		return
	}
	if strings.TrimSpace(req.JobID) == "" {
		AbortWithError(c, newValidationError("job_id", "required", "job_id is required"))
		return
	}

	payload := progress.Payload{
		JobID:    req.JobID,
		Status:   req.Status,
		Progress: req.Progress,
		Message:  req.Message,
		Meta:     req.Meta,
		TraceID:  req.TraceID,
		Error:    req.Error,
		Result:   req.Result,
	}
	if payload.Status == "" {
		payload.Status = progress.StatusProgress
	}

	if err := s.publisher.Publish(c.Request.Context(), req.OrgID, payload); err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, gin.H{"ok": true})
}
