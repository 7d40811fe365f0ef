package queue

import (
	"context"
	"strconv"
	"time"

	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	"github.com/quoteforgelabs/quoteforge/internal/progress"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Janitor keeps the queue healthy in near real time: it promotes due
// retries and recovers stalled jobs. Deleting old terminal rows belongs to
// the retention sweep in the scheduler package.
type Janitor struct {
	svc *Service
	log *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewJanitor(svc *Service) *Janitor {
	return &Janitor{svc: svc, log: svc.log.Named("janitor")}
}

// Start runs the janitor loop at the configured interval.
func (j *Janitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})

	interval := j.svc.cfg.JanitorInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
					j.log.Warn("janitor pass failed", zap.Error(err))
				}
			}
		}
	}()
	j.log.Info("janitor started", zap.Duration("interval", interval))
}

func (j *Janitor) Stop(ctx context.Context) error {
	if j.cancel != nil {
		j.cancel()
	}
	if j.done != nil {
		select {
		case <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// RunOnce executes one maintenance pass.
func (j *Janitor) RunOnce(ctx context.Context) error {
	if err := j.promoteDueRetries(ctx); err != nil {
		return err
	}
	return j.recoverStalled(ctx)
}

// promoteDueRetries moves jobs whose backoff elapsed from the delayed set
// to the ready list.
func (j *Janitor) promoteDueRetries(ctx context.Context) error {
	s := j.svc
	now := strconv.FormatInt(s.clock.Now().UnixMilli(), 10)

	ids, err := s.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		removed, err := s.rdb.ZRem(ctx, delayedKey, id).Result()
		if err != nil {
			return err
		}
		// Another janitor instance may have promoted it first.
		if removed == 0 {
			continue
		}
		if err := s.rdb.LPush(ctx, readyKey, id).Err(); err != nil {
			return err
		}
		j.log.Debug("promoted retry", zap.String("job_id", id))
	}
	return nil
}

// recoverStalled finds active jobs without a live heartbeat. Attempts left
// mean the job goes back to the ready list as retrying; otherwise it fails
// terminally.
func (j *Janitor) recoverStalled(ctx context.Context) error {
	s := j.svc

	active, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return err
	}
	for _, job := range active {
		n, err := s.rdb.Exists(ctx, heartbeatKey(job.ID)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if err := j.handleStalled(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

func (j *Janitor) handleStalled(ctx context.Context, job *jobdomain.Job) error {
	s := j.svc
	if s.metrics != nil {
		s.metrics.IncStalled(job.Type)
	}
	s.publish(ctx, job, progress.Payload{
		JobID:  job.ID.String(),
		Status: progress.StatusStalled,
	})

	if job.Attempts < job.MaxAttempts {
		j.log.Warn("requeueing stalled job",
			zap.String("job_id", job.ID.String()),
			zap.String("type", job.Type),
			zap.Int("attempts", job.Attempts))
		if err := s.repo.MarkRetrying(ctx, s.db, job.ID, jobdomain.KindTransient, "worker heartbeat expired", s.clock.Now()); err != nil {
			return err
		}
		return s.rdb.LPush(ctx, readyKey, job.ID.String()).Err()
	}

	j.log.Error("stalled job exhausted attempts",
		zap.String("job_id", job.ID.String()),
		zap.String("type", job.Type))
	if err := s.repo.MarkFailed(ctx, s.db, job.ID, jobdomain.KindTransient, "worker heartbeat expired", s.clock.Now()); err != nil {
		return err
	}
	s.releaseClaim(ctx, job)
	s.publish(ctx, job, progress.Payload{
		JobID:  job.ID.String(),
		Status: progress.StatusFailed,
		Error:  "worker heartbeat expired",
	})
	return nil
}
