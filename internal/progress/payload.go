// Package progress fans job lifecycle events out to subscribers. Events are
// best-effort and at-most-once: a late subscriber re-fetches current job
// state instead of replaying history.
package progress

import "fmt"

// Statuses carried on progress events. Mirrors the job state machine plus
// the intermediate "progress" marker emitted between state transitions.
const (
	StatusQueued    = "queued"
	StatusActive    = "active"
	StatusProgress  = "progress"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusStalled   = "stalled"
	StatusRetrying  = "retrying"
	StatusCancelled = "cancelled"
)

// Payload is the wire shape of one progress event.
type Payload struct {
	JobID    string         `json:"job_id"`
	Status   string         `json:"status"`
	Progress *int           `json:"progress,omitempty"`
	Message  string         `json:"message,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	TraceID  string         `json:"trace_id,omitempty"`
	Error    string         `json:"error,omitempty"`
	Result   any            `json:"result,omitempty"`
}

// Room returns the pub/sub channel for one org's job.
func Room(orgID, jobID string) string {
	return fmt.Sprintf("jobs:%s:%s", orgID, jobID)
}

// Pct is a convenience for the optional progress field.
func Pct(v int) *int { return &v }
