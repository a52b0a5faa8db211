package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmsync/internal/db/dbtest"
	"crmsync/internal/models"
	"crmsync/internal/repository"
	gormrepository "crmsync/internal/repository/gorm"
	"crmsync/internal/service"
)

type stubSyncer struct {
	lastEntity string
	lastOpts   service.RunOptions
	lastOrigin string
	result     service.RunResult
	all        []service.RunResult
	err        error
	jobs       []models.SyncJob
}

func (s *stubSyncer) Run(_ context.Context, entity string, opts service.RunOptions) (service.RunResult, error) {
	s.lastEntity, s.lastOpts = entity, opts
	if s.err != nil {
		return service.RunResult{}, s.err
	}
	res := s.result
	res.Entity = entity
	return res, nil
}

func (s *stubSyncer) RunAll(_ context.Context, opts service.RunOptions) ([]service.RunResult, error) {
	s.lastOpts = opts
	return s.all, s.err
}

func (s *stubSyncer) SyncOriginDeals(_ context.Context, originID string, opts service.RunOptions) (service.RunResult, error) {
	s.lastOrigin, s.lastOpts = originID, opts
	if strings.TrimSpace(originID) == "" {
		return service.RunResult{}, service.ErrOriginRequired
	}
	if s.err != nil {
		return service.RunResult{}, s.err
	}
	res := s.result
	res.Entity = service.EntityDeals
	res.JobType = service.OriginDealsJobType(originID)
	return res, nil
}

func (s *stubSyncer) ListJobs(_ context.Context, params repository.ListSyncJobsParams) ([]models.SyncJob, int64, error) {
	return s.jobs, int64(len(s.jobs)), nil
}

func (s *stubSyncer) GetJob(_ context.Context, id string) (*models.SyncJob, error) {
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			return &s.jobs[i], nil
		}
	}
	return nil, nil
}

func newSyncRouter(s Syncer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	(&SyncHandler{Service: s}).Register(r)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestSyncEntity_SuccessShape(t *testing.T) {
	stub := &stubSyncer{result: service.RunResult{
		JobID: "job-1", JobType: "deals", LastPage: 3, Pages: 3, Synced: 450, TotalProcessed: 450,
		Complete: true, Duration: 1500 * time.Millisecond,
	}}
	w := post(newSyncRouter(stub), "/api/sync/deals", `{"auto_mode":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "deals", stub.lastEntity)
	assert.True(t, stub.lastOpts.AutoMode)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["is_complete"])
	assert.Equal(t, float64(1500), body["duration_ms"])
	results := body["results"].(map[string]any)
	assert.Equal(t, float64(450), results["deals_synced"])
	assert.Equal(t, float64(3), results["last_page"])
	assert.Equal(t, float64(450), results["total_processed"])
	assert.Equal(t, "job-1", results["job_id"])
}

func TestSyncEntity_EmptyBodyDefaultsToFullMode(t *testing.T) {
	stub := &stubSyncer{}
	w := post(newSyncRouter(stub), "/api/sync/contacts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, stub.lastOpts.AutoMode)
}

func TestSyncEntity_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: invoices", service.ErrUnknownEntity), http.StatusBadRequest},
		{fmt.Errorf("%w: deals", service.ErrSyncInProgress), http.StatusConflict},
		{fmt.Errorf("%w: feature.sync.deals", service.ErrSyncDisabled), http.StatusServiceUnavailable},
		{errors.New("fetch deals page 2: API error (502): boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := post(newSyncRouter(&stubSyncer{err: tc.err}), "/api/sync/deals", `{}`)
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, tc.err.Error(), body["error"])
		_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
		assert.NoError(t, err)
	}
}

func TestSyncEntity_MalformedBody(t *testing.T) {
	w := post(newSyncRouter(&stubSyncer{}), "/api/sync/deals", `{"auto_mode":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(newSyncRouter(&stubSyncer{}), "/api/sync/deals", `{"auto_mode":"yes"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncEntity_BindsBody(t *testing.T) {
	stub := &stubSyncer{}
	r := newSyncRouter(stub)

	w := post(r, "/api/sync/deals", " \n ")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, stub.lastOpts.AutoMode)

	w = post(r, "/api/sync/deals", `{"auto_mode":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, stub.lastOpts.AutoMode)
	assert.Equal(t, "deals", stub.lastEntity)
}

func TestSyncAll_ResultsKeyedByEntity(t *testing.T) {
	stub := &stubSyncer{all: []service.RunResult{
		{Entity: "origins", Synced: 3, Complete: true},
		{Entity: "deals", Synced: 400, Complete: false},
	}}
	w := post(newSyncRouter(stub), "/api/sync/all", `{"auto_mode":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["is_complete"])
	results := body["results"].(map[string]any)
	assert.Equal(t, float64(3), results["origins"].(map[string]any)["origins_synced"])
	assert.Equal(t, float64(400), results["deals"].(map[string]any)["deals_synced"])
}

func TestSyncOriginDeals_RequiresOriginID(t *testing.T) {
	stub := &stubSyncer{}
	r := newSyncRouter(stub)

	w := post(r, "/api/sync/origin-deals", `{"auto_mode":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(r, "/api/sync/origin-deals", `{"origin_id":"o-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "o-1", stub.lastOrigin)
	results := decode(t, w)["results"].(map[string]any)
	assert.Equal(t, "deals:origin:o-1", results["job_type"])
	assert.Equal(t, "o-1", results["origin_id"])
}

func TestJobs_ListAndGet(t *testing.T) {
	stub := &stubSyncer{jobs: []models.SyncJob{{ID: "j-1", JobType: "deals", Status: models.SyncJobRunning}}}
	r := newSyncRouter(stub)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sync/jobs?status=running", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["meta"].(map[string]any)["total"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sync/jobs/j-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "deals", decode(t, w)["data"].(map[string]any)["job_type"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sync/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettings_ToggleSwitch(t *testing.T) {
	ctx := context.Background()
	settings := &service.SystemSettingsService{Repo: gormrepository.New(dbtest.Open(t))}
	require.NoError(t, settings.EnsureDefaultSwitches(ctx))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	(&SettingsHandler{Settings: settings}).Register(r)

	req := httptest.NewRequest(http.MethodPut, "/api/settings/switches/deals", strings.NewReader(`{"enabled":false}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, settings.IsEnabled(ctx, service.FeatureSyncDeals, true))

	req = httptest.NewRequest(http.MethodPut, "/api/settings/switches/invoices", strings.NewReader(`{"enabled":false}`))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/settings/switches", nil))
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["data"].([]any)
	assert.Len(t, items, len(service.DefaultFeatureSwitches()))
}

func TestReady_RunsExtraChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	(&HealthHandler{
		DB: dbtest.Open(t),
		Checks: map[string]ReadinessCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		},
	}).Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "redis_unreachable", decode(t, w)["status"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
