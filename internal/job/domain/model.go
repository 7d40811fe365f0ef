// Package domain defines the durable job record, its state machine, and
// the queue/worker contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Job types processed by the worker pool.
const (
	TypeUploadParse          = "upload-parse"
	TypeMeshDecimate         = "mesh-decimate"
	TypePricingBatch         = "pricing-batch"
	TypePricingRationale     = "pricing-rationale"
	TypeAdminPricingRevision = "admin-pricing-revision"
)

// Job statuses. queued -> active -> {completed | failed | stalled};
// failed attempts below max_attempts go through retrying back to active;
// queued or active jobs may move to cancelled on an external signal.
const (
	StatusQueued    = "queued"
	StatusActive    = "active"
	StatusRetrying  = "retrying"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusStalled   = "stalled"
	StatusCancelled = "cancelled"
)

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// Job is the durable record of one unit of asynchronous work. Redis holds
// only scheduling state (ready list, delayed set, heartbeats); this row is
// the source of truth.
type Job struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID snowflake.ID `gorm:"not null;index" json:"org_id"`

	Type   string `gorm:"type:text;not null;index" json:"type"`
	Status string `gorm:"type:text;not null;index" json:"status"`

	Payload datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	Result  datatypes.JSON `gorm:"type:jsonb" json:"result,omitempty"`

	Progress    int `gorm:"not null;default:0" json:"progress"`
	Attempts    int `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int `gorm:"not null;default:3" json:"max_attempts"`

	IdempotencyKey string `gorm:"type:text;index" json:"idempotency_key,omitempty"`
	TraceID        string `gorm:"type:text" json:"trace_id,omitempty"`

	ErrorKind    string `gorm:"type:text" json:"error_kind,omitempty"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	// ScheduledAt is the earliest next run for a retrying job.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Job) TableName() string { return "jobs" }
