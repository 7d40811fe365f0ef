package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() jobdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *jobdomain.Job) error {
	return db.WithContext(ctx).Create(job).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*jobdomain.Job, error) {
	var job jobdomain.Job
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, jobdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*jobdomain.Job, error) {
	var job jobdomain.Job
	err := db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, jobdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repo) MarkActive(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&jobdomain.Job{}).
		Where("id = ? AND status IN ?", id, []string{jobdomain.StatusQueued, jobdomain.StatusRetrying}).
		Updates(map[string]any{
			"status":     jobdomain.StatusActive,
			"attempts":   gorm.Expr("attempts + 1"),
			"started_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, result []byte, now time.Time) error {
	return db.WithContext(ctx).
		Model(&jobdomain.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      jobdomain.StatusCompleted,
			"result":      result,
			"progress":    100,
			"finished_at": now,
			"updated_at":  now,
		}).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, kind jobdomain.ErrorKind, message string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&jobdomain.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        jobdomain.StatusFailed,
			"error_kind":    string(kind),
			"error_message": message,
			"finished_at":   now,
			"updated_at":    now,
		}).Error
}

func (r *repo) MarkRetrying(ctx context.Context, db *gorm.DB, id snowflake.ID, kind jobdomain.ErrorKind, message string, runAt time.Time) error {
	return db.WithContext(ctx).
		Model(&jobdomain.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        jobdomain.StatusRetrying,
			"error_kind":    string(kind),
			"error_message": message,
			"scheduled_at":  runAt,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *repo) MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&jobdomain.Job{}).
		Where("id = ? AND status NOT IN ?", id, []string{
			jobdomain.StatusCompleted, jobdomain.StatusFailed, jobdomain.StatusCancelled,
		}).
		Updates(map[string]any{
			"status":      jobdomain.StatusCancelled,
			"finished_at": now,
			"updated_at":  now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) UpdateProgress(ctx context.Context, db *gorm.DB, id snowflake.ID, progress int) error {
	return db.WithContext(ctx).
		Model(&jobdomain.Job{}).
		Where("id = ?", id).
		Update("progress", progress).Error
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]*jobdomain.Job, error) {
	var jobs []*jobdomain.Job
	err := db.WithContext(ctx).
		Where("status = ?", jobdomain.StatusActive).
		Find(&jobs).Error
	return jobs, err
}
