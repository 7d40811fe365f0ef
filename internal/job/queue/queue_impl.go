package queue

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/quoteforgelabs/quoteforge/internal/clock"
	"github.com/quoteforgelabs/quoteforge/internal/config"
	"github.com/quoteforgelabs/quoteforge/internal/idempotency"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	"github.com/quoteforgelabs/quoteforge/internal/observability/metrics"
	"github.com/quoteforgelabs/quoteforge/internal/progress"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Redis     *redis.Client
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Repo      jobdomain.Repository
	Idem      idempotency.Store
	Publisher progress.Publisher
	Metrics   *metrics.JobMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	rdb       *redis.Client
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.WorkerConfig
	repo      jobdomain.Repository
	idem      idempotency.Store
	publisher progress.Publisher
	metrics   *metrics.JobMetrics
}

func New(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("job.queue"),
		rdb:       p.Redis,
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Config.Worker,
		repo:      p.Repo,
		idem:      p.Idem,
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

// ProvideQueue exposes the service under its domain interface.
func ProvideQueue(s *Service) jobdomain.Queue { return s }

func (s *Service) Enqueue(ctx context.Context, req jobdomain.EnqueueRequest) (*jobdomain.EnqueueResult, error) {
	jobID := s.genID.Generate()
	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}

	if req.IdempotencyKey != "" {
		claim, err := s.idem.Claim(ctx, req.IdempotencyKey, jobID.String(), s.cfg.IdempotencyTTL)
		if err != nil {
			return nil, err
		}
		// An empty ExistingJobID means the prior claim vanished before it
		// could be read back; treat the submission as fresh.
		if !claim.IsNew && claim.ExistingJobID != "" {
			existing, err := snowflake.ParseString(claim.ExistingJobID)
			if err != nil {
				return nil, err
			}
			if s.metrics != nil {
				s.metrics.IncDeduped(req.Type)
			}
			s.log.Info("job submission deduped",
				zap.String("type", req.Type),
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("existing_job_id", existing.String()))
			return &jobdomain.EnqueueResult{JobID: existing, Deduped: true}, nil
		}
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, err
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = jobdomain.PolicyFor(req.Type).MaxAttempts
	}
	if s.cfg.MaxAttempts > 0 && maxAttempts > s.cfg.MaxAttempts {
		maxAttempts = s.cfg.MaxAttempts
	}

	now := s.clock.Now()
	job := &jobdomain.Job{
		ID:             jobID,
		OrgID:          req.OrgID,
		Type:           req.Type,
		Status:         jobdomain.StatusQueued,
		Payload:        payload,
		MaxAttempts:    maxAttempts,
		IdempotencyKey: req.IdempotencyKey,
		TraceID:        req.TraceID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, job); err != nil {
		if req.IdempotencyKey != "" {
			if relErr := s.idem.Release(ctx, req.IdempotencyKey); relErr != nil {
				s.log.Warn("failed to release idempotency claim after insert error",
					zap.String("idempotency_key", req.IdempotencyKey), zap.Error(relErr))
			}
		}
		return nil, err
	}

	if err := s.rdb.LPush(ctx, readyKey, jobID.String()).Err(); err != nil {
		// Row exists; the janitor will requeue it.
		s.log.Warn("failed to push job to ready list",
			zap.String("job_id", jobID.String()), zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.IncEnqueued(req.Type)
	}
	s.publish(ctx, job, progress.Payload{
		JobID:   jobID.String(),
		Status:  progress.StatusQueued,
		TraceID: req.TraceID,
	})
	return &jobdomain.EnqueueResult{JobID: jobID}, nil
}

func (s *Service) Get(ctx context.Context, orgID, id snowflake.ID) (*jobdomain.Job, error) {
	return s.repo.FindByID(ctx, s.db, orgID, id)
}

func (s *Service) Cancel(ctx context.Context, orgID, id snowflake.ID) error {
	job, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return err
	}
	if jobdomain.IsTerminal(job.Status) {
		return jobdomain.ErrNotCancellable
	}

	// Signal first so an active worker stops at its next checkpoint even
	// if the direct transition below loses the race.
	if err := s.rdb.Set(ctx, cancelKey(id), "1", s.cfg.JobTTL).Err(); err != nil {
		return err
	}

	if job.Status == jobdomain.StatusActive {
		return nil
	}

	ok, err := s.repo.MarkCancelled(ctx, s.db, id, s.clock.Now())
	if err != nil {
		return err
	}
	if ok {
		s.releaseClaim(ctx, job)
		s.publish(ctx, job, progress.Payload{
			JobID:  id.String(),
			Status: progress.StatusCancelled,
		})
	}
	return nil
}

func (s *Service) publish(ctx context.Context, job *jobdomain.Job, payload progress.Payload) {
	if s.publisher == nil {
		return
	}
	if payload.TraceID == "" {
		payload.TraceID = job.TraceID
	}
	_ = s.publisher.Publish(ctx, job.OrgID.String(), payload)
}

// releaseClaim frees the idempotency key after a terminal failure or
// cancellation so the work can be legitimately resubmitted.
func (s *Service) releaseClaim(ctx context.Context, job *jobdomain.Job) {
	if job.IdempotencyKey == "" {
		return
	}
	if err := s.idem.Release(ctx, job.IdempotencyKey); err != nil {
		s.log.Warn("failed to release idempotency claim",
			zap.String("job_id", job.ID.String()),
			zap.String("idempotency_key", job.IdempotencyKey),
			zap.Error(err))
	}
}
