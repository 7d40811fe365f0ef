package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/quoteforgelabs/quoteforge/internal/clock"
	"github.com/quoteforgelabs/quoteforge/internal/config"
	"github.com/quoteforgelabs/quoteforge/internal/idempotency"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	"github.com/quoteforgelabs/quoteforge/internal/job/queue"
	jobrepo "github.com/quoteforgelabs/quoteforge/internal/job/repository"
	pricingdomain "github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
	pricingservice "github.com/quoteforgelabs/quoteforge/internal/pricing/service"
	"github.com/quoteforgelabs/quoteforge/internal/progress"
	quotedomain "github.com/quoteforgelabs/quoteforge/internal/quote/domain"
	quoterepo "github.com/quoteforgelabs/quoteforge/internal/quote/repository"
	revisiondomain "github.com/quoteforgelabs/quoteforge/internal/revision/domain"
	revisionrepo "github.com/quoteforgelabs/quoteforge/internal/revision/repository"
	revisionservice "github.com/quoteforgelabs/quoteforge/internal/revision/service"
	"github.com/quoteforgelabs/quoteforge/internal/server"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testWorkerSecret = "cb-secret"

type apiFixture struct {
	engine    *gin.Engine
	db        *gorm.DB
	node      *snowflake.Node
	queue     jobdomain.Queue
	quoteRepo quotedomain.Repository
	revisions revisiondomain.Writer
	relay     *progress.Relay
	orgID     snowflake.ID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&jobdomain.Job{}, &quotedomain.Quote{}, &revisiondomain.QuoteRevision{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	cfg := config.Config{
		HTTPAddr:     ":0",
		WorkerSecret: testWorkerSecret,
		Worker: config.WorkerConfig{
			Concurrency:    1,
			MaxAttempts:    3,
			JobTTL:         time.Hour,
			IdempotencyTTL: time.Hour,
			HeartbeatTTL:   3 * time.Second,
			DrainTimeout:   5 * time.Second,
		},
	}

	catalog := pricingdomain.DefaultCatalog()
	quoteRepo := quoterepo.Provide()
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	pricing := pricingservice.NewService(pricingservice.ServiceParam{
		Redis:   rdb,
		Log:     zap.NewNop(),
		Catalog: catalog,
	})
	revisions := revisionservice.New(revisionservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      revisionrepo.Provide(),
		QuoteRepo: quoteRepo,
		Catalog:   catalog,
	})
	q := queue.New(queue.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Redis:     rdb,
		GenID:     node,
		Clock:     clk,
		Config:    cfg,
		Repo:      jobrepo.Provide(),
		Idem:      idempotency.NewRedisStore(rdb, zap.NewNop()),
		Publisher: progress.NewRedisPublisher(rdb, zap.NewNop()),
	})

	relay := progress.NewRelay(rdb, zap.NewNop())
	t.Cleanup(func() { _ = relay.Close() })

	engine := server.NewEngine(zap.NewNop())
	server.NewServer(server.ServerParams{
		Gin:         engine,
		Cfg:         cfg,
		DB:          db,
		GenID:       node,
		Queue:       q,
		PricingSvc:  pricing,
		QuoteRepo:   quoteRepo,
		RevisionSvc: revisions,
		Publisher:   progress.NewRedisPublisher(rdb, zap.NewNop()),
		Relay:       relay,
	})

	return &apiFixture{
		engine:    engine,
		db:        db,
		node:      node,
		queue:     q,
		quoteRepo: quoteRepo,
		revisions: revisions,
		relay:     relay,
		orgID:     node.Generate(),
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Org-Id", f.orgID.String())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out struct {
		Error map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotNil(t, out.Error)
	return out.Error
}

func computeBody() map[string]any {
	return map[string]any{
		"process":    "cnc",
		"material":   "al6061",
		"quantities": []int{1, 10, 50},
		"geometry": map[string]any{
			"volume_cc":        120.0,
			"surface_area_cm2": 340.0,
			"features":         map[string]int{"holes": 8, "pockets": 2},
		},
		"tolerance_class": "standard",
		"region":          "us-east",
	}
}

func TestSubmitJobReturnsJobID(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"type":    jobdomain.TypePricingRationale,
		"payload": map[string]any{"request": computeBody()},
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	assert.NotEmpty(t, data["job_id"])
	assert.Nil(t, data["deduped"])
}

func TestSubmitJobDedupesOnIdempotencyKey(t *testing.T) {
	f := newAPIFixture(t)

	body := map[string]any{
		"type":            jobdomain.TypePricingRationale,
		"payload":         map[string]any{"request": computeBody()},
		"idempotency_key": "rationale-once",
	}

	first := f.do(t, http.MethodPost, "/api/jobs", body, nil)
	require.Equal(t, http.StatusOK, first.Code)
	second := f.do(t, http.MethodPost, "/api/jobs", body, nil)
	require.Equal(t, http.StatusOK, second.Code)

	firstData := decodeData(t, first)
	secondData := decodeData(t, second)
	assert.Equal(t, firstData["job_id"], secondData["job_id"])
	assert.Equal(t, true, secondData["deduped"])
}

func TestSubmitJobRejectsUnknownType(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/jobs", map[string]any{"type": "mystery"}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decodeError(t, rec)
	assert.Equal(t, "validation_error", errBody["type"])
}

func TestMissingOrgHeaderIsUnauthorized(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/quotes", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec)["type"])
}

func TestComputePricingSync(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/pricing/compute", computeBody(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Data pricingdomain.PriceMatrix `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Data, 3)
	assert.GreaterOrEqual(t, out.Data[0].UnitPrice, out.Data[1].UnitPrice)
	assert.GreaterOrEqual(t, out.Data[1].UnitPrice, out.Data[2].UnitPrice)
}

func TestComputePricingUnknownMaterial(t *testing.T) {
	f := newAPIFixture(t)

	body := computeBody()
	body["material"] = "unobtainium"
	rec := f.do(t, http.MethodPost, "/api/pricing/compute", body, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_configuration", decodeError(t, rec)["type"])
}

func TestGetJobNotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/jobs/%s", f.node.Generate()), nil, nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec)["type"])
}

func TestCancelJobTwiceConflicts(t *testing.T) {
	f := newAPIFixture(t)

	res, err := f.queue.Enqueue(context.Background(), jobdomain.EnqueueRequest{
		OrgID:   f.orgID,
		Type:    jobdomain.TypePricingRationale,
		Payload: map[string]any{"request": computeBody()},
	})
	require.NoError(t, err)

	first := f.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%s/cancel", res.JobID), nil, nil)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, true, decodeData(t, first)["cancelled"])

	second := f.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%s/cancel", res.JobID), nil, nil)
	require.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, "conflict", decodeError(t, second)["type"])
}

func TestCreateAndGetQuote(t *testing.T) {
	f := newAPIFixture(t)

	created := f.do(t, http.MethodPost, "/api/quotes", map[string]any{"currency": "usd"}, nil)
	require.Equal(t, http.StatusOK, created.Code, created.Body.String())
	data := decodeData(t, created)
	assert.Equal(t, "USD", data["currency"])
	quoteID, _ := data["id"].(string)
	require.NotEmpty(t, quoteID)

	got := f.do(t, http.MethodGet, "/api/quotes/"+quoteID, nil, nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, quoteID, decodeData(t, got)["id"])

	otherOrg := f.node.Generate()
	cross := f.do(t, http.MethodGet, "/api/quotes/"+quoteID, nil, map[string]string{
		"X-Org-Id": otherOrg.String(),
	})
	require.Equal(t, http.StatusNotFound, cross.Code)
}

func (f *apiFixture) insertQuote(t *testing.T) *quotedomain.Quote {
	t.Helper()
	q := &quotedomain.Quote{
		ID:       f.node.Generate(),
		OrgID:    f.orgID,
		Currency: "USD",
	}
	require.NoError(t, f.quoteRepo.Insert(context.Background(), f.db, q))
	return q
}

func (f *apiFixture) writeRevision(t *testing.T, quoteID snowflake.ID, unitPrice float64) *revisiondomain.QuoteRevision {
	t.Helper()
	rev, err := f.revisions.CreateRevisionIfChanged(context.Background(), revisiondomain.CreateRevisionInput{
		OrgID:     f.orgID,
		QuoteID:   quoteID,
		EventType: revisiondomain.EventSystemReprice,
		Snapshot: quotedomain.Snapshot{
			SchemaVersion: 1,
			Header:        quotedomain.SnapshotHeader{Currency: "USD"},
			Lines: []quotedomain.SnapshotLine{
				{
					LineID: "line-1",
					Inputs: map[string]any{"process": "cnc", "material": "al6061", "selected_quantity": 10},
					Outputs: map[string]any{
						"unit_price":  unitPrice,
						"total_price": unitPrice * 10,
					},
				},
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, rev)
	return rev
}

func TestRevisionListCompareAndRestore(t *testing.T) {
	f := newAPIFixture(t)
	quote := f.insertQuote(t)

	rev1 := f.writeRevision(t, quote.ID, 42.50)
	rev2 := f.writeRevision(t, quote.ID, 39.75)
	require.Equal(t, rev1.Version+1, rev2.Version)

	list := f.do(t, http.MethodGet, fmt.Sprintf("/api/quotes/%s/revisions", quote.ID), nil, nil)
	require.Equal(t, http.StatusOK, list.Code, list.Body.String())
	var listOut struct {
		Data     []json.RawMessage `json:"data"`
		PageInfo map[string]any    `json:"page_info"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &listOut))
	assert.Len(t, listOut.Data, 2)

	cmp := f.do(t, http.MethodGet,
		fmt.Sprintf("/api/quotes/%s/revisions/compare?a=%s&b=%s", quote.ID, rev1.ID, rev2.ID), nil, nil)
	require.Equal(t, http.StatusOK, cmp.Code, cmp.Body.String())
	cmpData := decodeData(t, cmp)
	assert.Contains(t, cmpData, "diff_json")

	restored := f.do(t, http.MethodPost,
		fmt.Sprintf("/api/quotes/%s/revisions/%s/restore", quote.ID, rev1.ID),
		map[string]any{"note": "back to the first pass"}, nil)
	require.Equal(t, http.StatusOK, restored.Code, restored.Body.String())
	restoredData := decodeData(t, restored)
	assert.Equal(t, float64(rev2.Version+1), restoredData["version"])
	assert.Equal(t, revisiondomain.EventRestore, restoredData["event_type"])
}

func TestGetRevisionFromWrongQuoteIs404(t *testing.T) {
	f := newAPIFixture(t)
	quoteA := f.insertQuote(t)
	quoteB := f.insertQuote(t)
	rev := f.writeRevision(t, quoteA.ID, 18.20)

	rec := f.do(t, http.MethodGet,
		fmt.Sprintf("/api/quotes/%s/revisions/%s", quoteB.ID, rev.ID), nil, nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkerCallbackRequiresSecret(t *testing.T) {
	f := newAPIFixture(t)

	body := map[string]any{"org_id": f.orgID.String(), "job_id": "1", "status": "progress"}

	missing := f.do(t, http.MethodPost, "/ws/job-events", body, nil)
	require.Equal(t, http.StatusUnauthorized, missing.Code)

	wrong := f.do(t, http.MethodPost, "/ws/job-events", body, map[string]string{
		"x-worker-secret": "nope",
	})
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
}

func TestWorkerCallbackValidatesBody(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/ws/job-events",
		map[string]any{"org_id": f.orgID.String()},
		map[string]string{"x-worker-secret": testWorkerSecret})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec)["type"])
}

func TestWorkerCallbackRepublishesToRoom(t *testing.T) {
	f := newAPIFixture(t)
	jobID := f.node.Generate()

	events, unsubscribe, err := f.relay.Subscribe(context.Background(), f.orgID.String(), jobID.String())
	require.NoError(t, err)
	defer unsubscribe()

	rec := f.do(t, http.MethodPost, "/ws/job-events", map[string]any{
		"org_id":   f.orgID.String(),
		"job_id":   jobID.String(),
		"status":   progress.StatusProgress,
		"progress": 40,
		"message":  "decimating mesh",
	}, map[string]string{"x-worker-secret": testWorkerSecret})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeData(t, rec)["ok"])

	select {
	case evt := <-events:
		assert.Equal(t, jobID.String(), evt.JobID)
		assert.Equal(t, progress.StatusProgress, evt.Status)
		require.NotNil(t, evt.Progress)
		assert.Equal(t, 40, *evt.Progress)
	case <-time.After(3 * time.Second):
		t.Fatal("no event relayed")
	}
}
