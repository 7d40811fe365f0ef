package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/quoteforgelabs/quoteforge/internal/clock"
	"github.com/quoteforgelabs/quoteforge/internal/config"
	"github.com/quoteforgelabs/quoteforge/internal/idempotency"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	"github.com/quoteforgelabs/quoteforge/internal/job/queue"
	"github.com/quoteforgelabs/quoteforge/internal/job/repository"
	"github.com/quoteforgelabs/quoteforge/internal/progress"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []progress.Payload
}

func (c *capturePublisher) Publish(_ context.Context, _ string, p progress.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, p)
	return nil
}

func (c *capturePublisher) statuses(jobID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, evt := range c.events {
		if evt.JobID == jobID {
			out = append(out, evt.Status)
		}
	}
	return out
}

type stubProcessor struct {
	typ string
	fn  func(ctx context.Context, job *jobdomain.Job, rep jobdomain.Reporter) (any, error)
}

func (p *stubProcessor) Type() string { return p.typ }
func (p *stubProcessor) Process(ctx context.Context, job *jobdomain.Job, rep jobdomain.Reporter) (any, error) {
	return p.fn(ctx, job, rep)
}

type fixture struct {
	svc     *queue.Service
	pool    *queue.Pool
	janitor *queue.Janitor
	db      *gorm.DB
	rdb     *redis.Client
	repo    jobdomain.Repository
	idem    idempotency.Store
	clk     *clock.FakeClock
	pub     *capturePublisher
	node    *snowflake.Node
	orgID   snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&jobdomain.Job{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		db:    db,
		rdb:   rdb,
		repo:  repository.Provide(),
		idem:  idempotency.NewRedisStore(rdb, zap.NewNop()),
		clk:   clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)),
		pub:   &capturePublisher{},
		node:  node,
		orgID: node.Generate(),
	}

	cfg := config.Config{Worker: config.WorkerConfig{
		Concurrency:    2,
		MaxAttempts:    3,
		JobTTL:         time.Hour,
		IdempotencyTTL: time.Hour,
		HeartbeatTTL:   3 * time.Second,
		DrainTimeout:   5 * time.Second,
	}}
	f.svc = queue.New(queue.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Redis:     rdb,
		GenID:     node,
		Clock:     f.clk,
		Config:    cfg,
		Repo:      f.repo,
		Idem:      f.idem,
		Publisher: f.pub,
	})
	f.pool = queue.NewPool(f.svc)
	f.janitor = queue.NewJanitor(f.svc)
	return f
}

func (f *fixture) startPool(t *testing.T) {
	t.Helper()
	f.pool.Start()
	t.Cleanup(func() { _ = f.pool.Stop(context.Background()) })
}

func (f *fixture) waitForStatus(t *testing.T, id snowflake.ID, status string) *jobdomain.Job {
	t.Helper()
	var job *jobdomain.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = f.repo.Find(context.Background(), f.db, id)
		return err == nil && job.Status == status
	}, 5*time.Second, 25*time.Millisecond, "job never reached status %s", status)
	return job
}

func TestEnqueueCreatesQueuedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Enqueue(ctx, jobdomain.EnqueueRequest{
		OrgID:   f.orgID,
		Type:    jobdomain.TypePricingBatch,
		Payload: map[string]any{"quote_id": "q1"},
	})
	require.NoError(t, err)
	assert.False(t, res.Deduped)

	job, err := f.svc.Get(ctx, f.orgID, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusQueued, job.Status)
	assert.Equal(t, 3, job.MaxAttempts)

	ready, err := f.rdb.LRange(ctx, "jobs:ready", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{res.JobID.String()}, ready)
}

func TestEnqueueDedupesOnIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Enqueue(ctx, jobdomain.EnqueueRequest{
		OrgID:          f.orgID,
		Type:           jobdomain.TypeUploadParse,
		Payload:        map[string]any{"file_hash": "abc"},
		IdempotencyKey: idempotency.UploadParseKey(f.orgID.String(), "abc"),
	})
	require.NoError(t, err)
	require.False(t, first.Deduped)

	second, err := f.svc.Enqueue(ctx, jobdomain.EnqueueRequest{
		OrgID:          f.orgID,
		Type:           jobdomain.TypeUploadParse,
		Payload:        map[string]any{"file_hash": "abc"},
		IdempotencyKey: idempotency.UploadParseKey(f.orgID.String(), "abc"),
	})
	require.NoError(t, err)
	assert.True(t, second.Deduped)
	assert.Equal(t, first.JobID, second.JobID)

	var count int64
	require.NoError(t, f.db.Model(&jobdomain.Job{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

// vanishedClaimStore reports a lost claim with no owning job on the first
// call, the way a store behaves when the claim expires before read-back.
type vanishedClaimStore struct {
	idempotency.Store
	tripped bool
}

func (s *vanishedClaimStore) Claim(ctx context.Context, key, jobID string, ttl time.Duration) (idempotency.ClaimResult, error) {
	if !s.tripped {
		s.tripped = true
		return idempotency.ClaimResult{IsNew: false}, nil
	}
	return s.Store.Claim(ctx, key, jobID, ttl)
}

func TestEnqueueTreatsVanishedClaimAsFresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg := config.Config{Worker: config.WorkerConfig{
		Concurrency:    2,
		MaxAttempts:    3,
		JobTTL:         time.Hour,
		IdempotencyTTL: time.Hour,
		HeartbeatTTL:   3 * time.Second,
		DrainTimeout:   5 * time.Second,
	}}
	svc := queue.New(queue.Params{
		DB:        f.db,
		Log:       zap.NewNop(),
		Redis:     f.rdb,
		GenID:     f.node,
		Clock:     f.clk,
		Config:    cfg,
		Repo:      f.repo,
		Idem:      &vanishedClaimStore{Store: f.idem},
		Publisher: f.pub,
	})

	res, err := svc.Enqueue(ctx, jobdomain.EnqueueRequest{
		OrgID:          f.orgID,
		Type:           jobdomain.TypeUploadParse,
		Payload:        map[string]any{"file_hash": "abc"},
		IdempotencyKey: idempotency.UploadParseKey(f.orgID.String(), "abc"),
	})
	require.NoError(t, err)
	assert.False(t, res.Deduped)

	job, err := svc.Get(ctx, f.orgID, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusQueued, job.Status)
}

func TestWorkerCompletesJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.pool.Register(&stubProcessor{
		typ: jobdomain.TypePricingBatch,
		fn: func(ctx context.Context, job *jobdomain.Job, rep jobdomain.Reporter) (any, error) {
			rep.Progress(ctx, 30, "computing", nil)
			rep.Progress(ctx, 70, "storing", nil)
			return map[string]any{"ok": true}, nil
		},
	})

	res, err := f.svc.Enqueue(ctx, jobdomain.EnqueueRequest{
		OrgID:   f.orgID,
		Type:    jobdomain.TypePricingBatch,
		Payload: map[string]any{},
	})
	require.NoError(t, err)
	f.startPool(t)

	job := f.waitForStatus(t, res.JobID, jobdomain.StatusCompleted)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 1, job.Attempts)
	assert.JSONEq(t, `{"ok":true}`, string(job.Result))

	statuses := f.pub.statuses(res.JobID.String())
	assert.Equal(t, []string{"queued", "active", "progress", "progress", "completed"}, statuses)
}

func TestValidationErrorIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.pool.Register(&stubProcessor{
		typ: jobdomain.TypePricingBatch,
		fn: func(context.Context, *jobdomain.Job, jobdomain.Reporter) (any, error) {
			return nil, jobdomain.NewError(jobdomain.KindValidation, "malformed payload")
		},
	})
	f.startPool(t)

	key := idempotency.PriceBatchKey(f.orgID.String(), "deadbeef")
	res, err := f.svc.Enqueue(ctx, jobdomain.EnqueueRequest{
		OrgID:          f.orgID,
		Type:           jobdomain.TypePricingBatch,
		Payload:        map[string]any{},
		IdempotencyKey: key,
	})
	require.NoError(t, err)

	job := f.waitForStatus(t, res.JobID, jobdomain.StatusFailed)
	assert.Equal(t, 1, job.Attempts, "validation errors must not retry")
	assert.Equal(t, string(jobdomain.KindValidation), job.ErrorKind)

	// Terminal failure frees the idempotency claim for resubmission.
	require.Eventually(t, func() bool {
		held, err := f.idem.Get(ctx, key)
		return err == nil && held == ""
	}, 2*time.Second, 25*time.Millisecond)
}

func TestTransientErrorRetriesAndSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	f.pool.Register(&stubProcessor{
		typ: jobdomain.TypeMeshDecimate,
		fn: func(context.Context, *jobdomain.Job, jobdomain.Reporter) (any, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				return nil, jobdomain.NewError(jobdomain.KindTransient, "cad service unreachable")
			}
			return map[string]any{"attempt": n}, nil
		},
	})
	f.startPool(t)

	res, err := f.svc.Enqueue(ctx, jobdomain.EnqueueRequest{
		OrgID:   f.orgID,
		Type:    jobdomain.TypeMeshDecimate,
		Payload: map[string]any{},
	})
	require.NoError(t, err)

	f.waitForStatus(t, res.JobID, jobdomain.StatusRetrying)

	// Backoff elapsed; the janitor promotes the retry.
	f.clk.Advance(10 * time.Second)
	require.NoError(t, f.janitor.RunOnce(ctx))

	job := f.waitForStatus(t, res.JobID, jobdomain.StatusCompleted)
	assert.Equal(t, 2, job.Attempts)
}

func TestCancelQueuedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Enqueue(ctx, jobdomain.EnqueueRequest{
		OrgID:   f.orgID,
		Type:    jobdomain.TypePricingBatch,
		Payload: map[string]any{},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, f.orgID, res.JobID))

	job, err := f.svc.Get(ctx, f.orgID, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusCancelled, job.Status)

	assert.ErrorIs(t, f.svc.Cancel(ctx, f.orgID, res.JobID), jobdomain.ErrNotCancellable)
}

func TestCancelActiveJobStopsAtCheckpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started := make(chan struct{})
	var once sync.Once
	f.pool.Register(&stubProcessor{
		typ: jobdomain.TypeUploadParse,
		fn: func(ctx context.Context, job *jobdomain.Job, rep jobdomain.Reporter) (any, error) {
			once.Do(func() { close(started) })
			for {
				if err := rep.Checkpoint(ctx); err != nil {
					return nil, err
				}
				time.Sleep(20 * time.Millisecond)
			}
		},
	})
	f.startPool(t)

	res, err := f.svc.Enqueue(ctx, jobdomain.EnqueueRequest{
		OrgID:   f.orgID,
		Type:    jobdomain.TypeUploadParse,
		Payload: map[string]any{},
	})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never started the job")
	}

	require.NoError(t, f.svc.Cancel(ctx, f.orgID, res.JobID))
	f.waitForStatus(t, res.JobID, jobdomain.StatusCancelled)
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := jobdomain.PolicyFor(jobdomain.TypePricingBatch)
	assert.Equal(t, 5*time.Second, policy.Delay(0))
	assert.Equal(t, 10*time.Second, policy.Delay(1))
	assert.Equal(t, 20*time.Second, policy.Delay(2))
	assert.Equal(t, 80*time.Second, policy.Delay(4))
	assert.Equal(t, 120*time.Second, policy.Delay(5))
	assert.Equal(t, 120*time.Second, policy.Delay(50))

	assert.Equal(t, 5, jobdomain.PolicyFor(jobdomain.TypeUploadParse).MaxAttempts)
	assert.Equal(t, 3, jobdomain.PolicyFor("unknown-type").MaxAttempts)
}

func TestJanitorRecoversStalledJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stalled := &jobdomain.Job{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		Type:        jobdomain.TypePricingBatch,
		Status:      jobdomain.StatusActive,
		Payload:     []byte(`{}`),
		Attempts:    1,
		MaxAttempts: 3,
		CreatedAt:   f.clk.Now(),
		UpdatedAt:   f.clk.Now(),
	}
	require.NoError(t, f.repo.Insert(ctx, f.db, stalled))

	require.NoError(t, f.janitor.RunOnce(ctx))

	job, err := f.repo.Find(ctx, f.db, stalled.ID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusRetrying, job.Status)

	ready, err := f.rdb.LRange(ctx, "jobs:ready", 0, -1).Result()
	require.NoError(t, err)
	assert.Contains(t, ready, stalled.ID.String())
}

func TestJanitorFailsExhaustedStalledJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	exhausted := &jobdomain.Job{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		Type:        jobdomain.TypePricingBatch,
		Status:      jobdomain.StatusActive,
		Payload:     []byte(`{}`),
		Attempts:    3,
		MaxAttempts: 3,
		CreatedAt:   f.clk.Now(),
		UpdatedAt:   f.clk.Now(),
	}
	require.NoError(t, f.repo.Insert(ctx, f.db, exhausted))

	require.NoError(t, f.janitor.RunOnce(ctx))

	job, err := f.repo.Find(ctx, f.db, exhausted.ID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusFailed, job.Status)
}

// Terminal rows stay in place through janitor passes; the retention sweep
// in the scheduler package is their single owner.
func TestJanitorLeavesTerminalJobsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := f.clk.Now().Add(-2 * time.Hour)
	done := &jobdomain.Job{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		Type:        jobdomain.TypePricingBatch,
		Status:      jobdomain.StatusCompleted,
		Payload:     []byte(`{}`),
		MaxAttempts: 3,
		FinishedAt:  &old,
		CreatedAt:   old,
		UpdatedAt:   old,
	}
	require.NoError(t, f.repo.Insert(ctx, f.db, done))

	require.NoError(t, f.janitor.RunOnce(ctx))

	job, err := f.repo.Find(ctx, f.db, done.ID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusCompleted, job.Status)
}
