package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *Job) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Job, error)
	// Find looks a job up without an org scope. Worker internals only.
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)

	// MarkActive claims a queued or retrying job for processing,
	// incrementing attempts. Returns false when another worker won or the
	// job left the runnable states.
	MarkActive(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, result []byte, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, kind ErrorKind, message string, now time.Time) error
	MarkRetrying(ctx context.Context, db *gorm.DB, id snowflake.ID, kind ErrorKind, message string, runAt time.Time) error
	// MarkCancelled succeeds only from non-terminal states.
	MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	UpdateProgress(ctx context.Context, db *gorm.DB, id snowflake.ID, progress int) error

	// ListActive returns jobs currently marked active, for stall detection.
	ListActive(ctx context.Context, db *gorm.DB) ([]*Job, error)
}
