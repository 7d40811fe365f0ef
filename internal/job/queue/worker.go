package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	"github.com/quoteforgelabs/quoteforge/internal/progress"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Pool pops ready jobs and runs their processors across a bounded set of
// workers. Each active job keeps a heartbeat key alive in redis; a missing
// heartbeat is how the janitor detects a stalled job.
type Pool struct {
	svc        *Service
	processors map[string]jobdomain.Processor

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewPool(svc *Service) *Pool {
	return &Pool{
		svc:        svc,
		processors: map[string]jobdomain.Processor{},
	}
}

func (p *Pool) Register(proc jobdomain.Processor) {
	p.processors[proc.Type()] = proc
}

// Start launches the configured number of workers.
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	concurrency := p.svc.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.svc.log.Info("worker pool started",
		zap.Int("concurrency", concurrency),
		zap.Int("processors", len(p.processors)))
}

// Stop drains active jobs, waiting up to the configured drain timeout.
func (p *Pool) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timeout := p.svc.cfg.DrainTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		p.svc.log.Info("worker pool drained")
		return nil
	case <-time.After(timeout):
		p.svc.log.Warn("worker pool drain timed out")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) run(ctx context.Context, worker int) {
	defer p.wg.Done()
	log := p.svc.log.With(zap.Int("worker", worker))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.svc.rdb.BRPop(ctx, 2*time.Second, readyKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("ready list pop failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		id, err := snowflake.ParseString(res[1])
		if err != nil {
			log.Warn("dropping malformed job id", zap.String("raw", res[1]))
			continue
		}
		p.handle(ctx, log, id)
	}
}

func (p *Pool) handle(ctx context.Context, log *zap.Logger, id snowflake.ID) {
	s := p.svc

	job, err := s.repo.Find(ctx, s.db, id)
	if errors.Is(err, jobdomain.ErrNotFound) {
		return
	}
	if err != nil {
		log.Warn("job lookup failed", zap.String("job_id", id.String()), zap.Error(err))
		return
	}

	proc, ok := p.processors[job.Type]
	if !ok {
		log.Error("no processor registered for job type", zap.String("type", job.Type))
		_ = s.repo.MarkFailed(ctx, s.db, id, jobdomain.KindValidation, "unknown job type", s.clock.Now())
		return
	}

	if p.cancelRequested(ctx, id) {
		p.finishCancelled(ctx, job)
		return
	}

	claimed, err := s.repo.MarkActive(ctx, s.db, id, s.clock.Now())
	if err != nil || !claimed {
		return
	}
	job.Attempts++

	s.publish(ctx, job, progress.Payload{
		JobID:  id.String(),
		Status: progress.StatusActive,
	})

	procCtx, cancelProc := context.WithCancel(ctx)
	stopHeartbeat := p.startHeartbeat(id, cancelProc)

	start := time.Now()
	result, procErr := proc.Process(procCtx, job, &reporter{pool: p, job: job})
	stopHeartbeat()
	cancelProc()
	s.rdb.Del(context.WithoutCancel(ctx), heartbeatKey(id))

	// Shutdown interrupted the attempt; leave the job active for the
	// janitor to requeue once the heartbeat expires.
	if ctx.Err() != nil && procErr != nil {
		log.Info("attempt interrupted by shutdown", zap.String("job_id", id.String()))
		return
	}

	finishCtx := context.WithoutCancel(ctx)
	if p.cancelRequested(finishCtx, id) || errors.Is(procErr, jobdomain.ErrCancelled) {
		p.finishCancelled(finishCtx, job)
		return
	}
	if procErr != nil {
		p.finishFailed(finishCtx, log, job, procErr)
		return
	}
	p.finishCompleted(finishCtx, log, job, result, time.Since(start))
}

func (p *Pool) startHeartbeat(id snowflake.ID, cancelProc context.CancelFunc) func() {
	s := p.svc
	ttl := s.cfg.HeartbeatTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	ctx, stop := context.WithCancel(context.Background())
	s.rdb.Set(ctx, heartbeatKey(id), "1", ttl)

	go func() {
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rdb.Set(ctx, heartbeatKey(id), "1", ttl)
				if p.cancelRequested(ctx, id) {
					cancelProc()
				}
			}
		}
	}()
	return stop
}

func (p *Pool) cancelRequested(ctx context.Context, id snowflake.ID) bool {
	n, err := p.svc.rdb.Exists(ctx, cancelKey(id)).Result()
	return err == nil && n > 0
}

func (p *Pool) finishCancelled(ctx context.Context, job *jobdomain.Job) {
	s := p.svc
	ok, err := s.repo.MarkCancelled(ctx, s.db, job.ID, s.clock.Now())
	if err != nil {
		s.log.Warn("failed to mark job cancelled", zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	s.rdb.Del(ctx, cancelKey(job.ID))
	if !ok {
		return
	}
	s.releaseClaim(ctx, job)
	s.publish(ctx, job, progress.Payload{
		JobID:  job.ID.String(),
		Status: progress.StatusCancelled,
	})
}

func (p *Pool) finishFailed(ctx context.Context, log *zap.Logger, job *jobdomain.Job, procErr error) {
	s := p.svc
	kind := jobdomain.Classify(procErr)

	if kind.Retryable() && job.Attempts < job.MaxAttempts {
		delay := jobdomain.PolicyFor(job.Type).Delay(job.Attempts)
		runAt := s.clock.Now().Add(delay)
		if err := s.repo.MarkRetrying(ctx, s.db, job.ID, kind, procErr.Error(), runAt); err != nil {
			log.Error("failed to schedule retry", zap.String("job_id", job.ID.String()), zap.Error(err))
			return
		}
		s.rdb.ZAdd(ctx, delayedKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID.String()})
		if s.metrics != nil {
			s.metrics.IncRetried(job.Type)
		}
		log.Warn("job attempt failed, retrying",
			zap.String("job_id", job.ID.String()),
			zap.String("error_kind", string(kind)),
			zap.Int("attempt", job.Attempts),
			zap.Duration("delay", delay),
			zap.Error(procErr))
		s.publish(ctx, job, progress.Payload{
			JobID:  job.ID.String(),
			Status: progress.StatusRetrying,
			Error:  procErr.Error(),
		})
		return
	}

	if err := s.repo.MarkFailed(ctx, s.db, job.ID, kind, procErr.Error(), s.clock.Now()); err != nil {
		log.Error("failed to mark job failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.IncFailed(job.Type)
	}
	log.Error("job failed terminally",
		zap.String("job_id", job.ID.String()),
		zap.String("type", job.Type),
		zap.String("error_kind", string(kind)),
		zap.Int("attempts", job.Attempts),
		zap.Error(procErr))

	// Terminal failure side effects: free the idempotency claim so the
	// work can be resubmitted, then tell subscribers.
	s.releaseClaim(ctx, job)
	s.publish(ctx, job, progress.Payload{
		JobID:  job.ID.String(),
		Status: progress.StatusFailed,
		Error:  procErr.Error(),
	})
}

func (p *Pool) finishCompleted(ctx context.Context, log *zap.Logger, job *jobdomain.Job, result any, took time.Duration) {
	s := p.svc

	raw, err := json.Marshal(result)
	if err != nil {
		p.finishFailed(ctx, log, job, jobdomain.WrapError(jobdomain.KindInternal, "marshal result", err))
		return
	}
	if err := s.repo.MarkCompleted(ctx, s.db, job.ID, raw, s.clock.Now()); err != nil {
		log.Error("failed to mark job completed", zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.IncCompleted(job.Type)
		s.metrics.ObserveDuration(job.Type, took)
	}
	log.Info("job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("type", job.Type),
		zap.Duration("took", took))
	s.publish(ctx, job, progress.Payload{
		JobID:    job.ID.String(),
		Status:   progress.StatusCompleted,
		Progress: progress.Pct(100),
		Result:   json.RawMessage(raw),
	})
}

// reporter implements jobdomain.Reporter for one attempt.
type reporter struct {
	pool    *Pool
	job     *jobdomain.Job
	mu      sync.Mutex
	lastPct int
}

func (r *reporter) Progress(ctx context.Context, pct int, message string, meta map[string]any) {
	r.mu.Lock()
	if pct < r.lastPct {
		pct = r.lastPct
	}
	if pct > 100 {
		pct = 100
	}
	r.lastPct = pct
	r.mu.Unlock()

	s := r.pool.svc
	if err := s.repo.UpdateProgress(ctx, s.db, r.job.ID, pct); err != nil {
		s.log.Warn("failed to persist progress",
			zap.String("job_id", r.job.ID.String()), zap.Error(err))
	}
	s.publish(ctx, r.job, progress.Payload{
		JobID:    r.job.ID.String(),
		Status:   progress.StatusProgress,
		Progress: progress.Pct(pct),
		Message:  message,
		Meta:     meta,
	})
}

func (r *reporter) Checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if r.pool.cancelRequested(context.WithoutCancel(ctx), r.job.ID) {
			return jobdomain.ErrCancelled
		}
		return err
	}
	if r.pool.cancelRequested(ctx, r.job.ID) {
		return jobdomain.ErrCancelled
	}
	return nil
}
