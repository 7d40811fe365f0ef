// Package scheduler runs periodic maintenance against the database. The
// queue's janitor handles stalled jobs in near real time; this package
// handles the slower housekeeping.
package scheduler

import (
	"context"
	"time"

	"github.com/quoteforgelabs/quoteforge/internal/clock"
	"github.com/quoteforgelabs/quoteforge/internal/config"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const retentionBatchSize = 1000

// Retention deletes terminal jobs past the configured retention window.
// Quote revisions are never swept; they are the audit trail.
type Retention struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	cfg   config.Config

	stop chan struct{}
	done chan struct{}
}

type RetentionParams struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Config config.Config
}

func NewRetention(p RetentionParams) *Retention {
	return &Retention{
		db:    p.DB,
		log:   p.Log.Named("scheduler.retention"),
		clock: p.Clock,
		cfg:   p.Config,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// RunOnce performs a single retention sweep and reports the number of
// deleted jobs. Deletes happen in bounded batches so a long backlog never
// holds a transaction open for minutes.
func (r *Retention) RunOnce(ctx context.Context) (int, error) {
	retentionDays := r.cfg.Worker.RetentionDays
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := r.clock.Now().AddDate(0, 0, -retentionDays)
	total := 0
	for {
		ids, err := r.expiredJobIDs(ctx, cutoff)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			break
		}

		result := r.db.WithContext(ctx).Delete(&jobdomain.Job{}, "id IN ?", ids)
		if result.Error != nil {
			return total, result.Error
		}
		total += int(result.RowsAffected)
		if len(ids) < retentionBatchSize {
			break
		}
	}

	if total > 0 {
		r.log.Info("swept expired jobs",
			zap.Int("deleted", total),
			zap.Time("cutoff", cutoff))
	}
	return total, nil
}

func (r *Retention) expiredJobIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&jobdomain.Job{}).
		Where("status IN ?", []string{
			jobdomain.StatusCompleted,
			jobdomain.StatusFailed,
			jobdomain.StatusCancelled,
		}).
		Where("finished_at IS NOT NULL AND finished_at < ?", cutoff).
		Limit(retentionBatchSize).
		Pluck("id", &ids).Error
	return ids, err
}

// Start launches the periodic sweep loop.
func (r *Retention) Start() {
	go r.loop()
}

// Stop waits for the loop to exit.
func (r *Retention) Stop(ctx context.Context) error {
	close(r.stop)
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Retention) loop() {
	defer close(r.done)

	interval := r.cfg.Worker.RetentionInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if _, err := r.RunOnce(context.Background()); err != nil {
				r.log.Warn("retention sweep failed", zap.Error(err))
			}
		}
	}
}
