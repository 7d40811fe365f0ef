package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/quoteforgelabs/quoteforge/internal/clock"
	"github.com/quoteforgelabs/quoteforge/internal/config"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	"github.com/quoteforgelabs/quoteforge/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newRetentionFixture(t *testing.T, retentionDays int) (*scheduler.Retention, *gorm.DB, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&jobdomain.Job{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	r := scheduler.NewRetention(scheduler.RetentionParams{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clk,
		Config: config.Config{Worker: config.WorkerConfig{
			RetentionDays: retentionDays,
		}},
	})
	return r, db, clk, node
}

func insertJob(t *testing.T, db *gorm.DB, node *snowflake.Node, status string, finishedAt *time.Time) snowflake.ID {
	t.Helper()
	job := &jobdomain.Job{
		ID:         node.Generate(),
		OrgID:      node.Generate(),
		Type:       jobdomain.TypePricingBatch,
		Status:     status,
		FinishedAt: finishedAt,
	}
	require.NoError(t, db.Create(job).Error)
	return job.ID
}

func TestRetentionSweepsOldTerminalJobs(t *testing.T) {
	r, db, clk, node := newRetentionFixture(t, 30)

	old := clk.Now().AddDate(0, 0, -45)
	recent := clk.Now().AddDate(0, 0, -5)

	expired := insertJob(t, db, node, jobdomain.StatusCompleted, &old)
	expiredFailed := insertJob(t, db, node, jobdomain.StatusFailed, &old)
	fresh := insertJob(t, db, node, jobdomain.StatusCompleted, &recent)
	running := insertJob(t, db, node, jobdomain.StatusActive, nil)

	deleted, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	var remaining []jobdomain.Job
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 2)
	ids := []snowflake.ID{remaining[0].ID, remaining[1].ID}
	assert.Contains(t, ids, fresh)
	assert.Contains(t, ids, running)
	assert.NotContains(t, ids, expired)
	assert.NotContains(t, ids, expiredFailed)
}

func TestRetentionDisabledKeepsEverything(t *testing.T) {
	r, db, clk, node := newRetentionFixture(t, 0)

	old := clk.Now().AddDate(0, 0, -400)
	insertJob(t, db, node, jobdomain.StatusCompleted, &old)

	deleted, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)

	var count int64
	require.NoError(t, db.Model(&jobdomain.Job{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
