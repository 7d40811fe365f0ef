package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// EnqueueRequest describes one job submission.
type EnqueueRequest struct {
	OrgID   snowflake.ID
	Type    string
	Payload any
	// IdempotencyKey, when set, dedupes concurrent submissions of the
	// same logical work.
	IdempotencyKey string
	// MaxAttempts of 0 uses the configured default.
	MaxAttempts int
	TraceID     string
}

// EnqueueResult reports the bound job. Deduped means an earlier submission
// already claimed the idempotency key.
type EnqueueResult struct {
	JobID   snowflake.ID `json:"job_id"`
	Deduped bool         `json:"deduped,omitempty"`
}

type Queue interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error)
	Get(ctx context.Context, orgID, id snowflake.ID) (*Job, error)
	// Cancel stops a job. Queued jobs cancel immediately; active jobs get
	// a signal honored at the worker's next checkpoint.
	Cancel(ctx context.Context, orgID, id snowflake.ID) error
}

// Reporter lets a processor surface progress and observe cancellation.
type Reporter interface {
	// Progress reports a stage boundary. Values are clamped to be
	// monotonically non-decreasing within one attempt.
	Progress(ctx context.Context, pct int, message string, meta map[string]any)
	// Checkpoint returns ErrCancelled (or the context error) when the job
	// should stop. Processors call it between expensive stages.
	Checkpoint(ctx context.Context) error
}

// Processor implements one job type.
type Processor interface {
	Type() string
	Process(ctx context.Context, job *Job, rep Reporter) (any, error)
}
