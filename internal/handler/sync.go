package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmsync/internal/models"
	"crmsync/internal/repository"
	"crmsync/internal/service"
)

type Syncer interface {
	Run(ctx context.Context, entity string, opts service.RunOptions) (service.RunResult, error)
	RunAll(ctx context.Context, opts service.RunOptions) ([]service.RunResult, error)
	SyncOriginDeals(ctx context.Context, originID string, opts service.RunOptions) (service.RunResult, error)
	ListJobs(ctx context.Context, params repository.ListSyncJobsParams) ([]models.SyncJob, int64, error)
	GetJob(ctx context.Context, id string) (*models.SyncJob, error)
}

type SyncHandler struct {
	Service Syncer
	Logger  *zap.Logger
}

type syncRequest struct {
	AutoMode bool   `json:"auto_mode"`
	OriginID string `json:"origin_id"`
}

func (h *SyncHandler) Register(r *gin.Engine) {
	group := r.Group("/api/sync")
	group.POST("/all", h.syncAll)
	group.POST("/origin-deals", h.syncOriginDeals)
	group.POST("/:entity", h.syncEntity)
	group.GET("/jobs", h.listJobs)
	group.GET("/jobs/:id", h.getJob)
}

// @Summary Sync one CRM entity
// @Description Fetches pages from the CRM and upserts them, resuming the running job if any.
// @Tags sync
// @Accept json
// @Produce json
// @Param entity path string true "origins|stages|contacts|deals"
// @Param body body syncRequest false "auto_mode caps the run at sync.auto_max_pages"
// @Success 200 {object} syncResponse
// @Failure 400 {object} syncErrorResponse
// @Failure 409 {object} syncErrorResponse
// @Failure 503 {object} syncErrorResponse
// @Failure 500 {object} syncErrorResponse
// @Router /api/sync/{entity} [post]
func (h *SyncHandler) syncEntity(c *gin.Context) {
	if h.Service == nil {
		SyncError(c, http.StatusInternalServerError, errors.New("service unavailable"))
		return
	}
	req, err := bindSyncRequest(c)
	if err != nil {
		SyncError(c, http.StatusBadRequest, err)
		return
	}
	entity := strings.ToLower(strings.TrimSpace(c.Param("entity")))
	res, err := h.Service.Run(c.Request.Context(), entity, service.RunOptions{AutoMode: req.AutoMode})
	if err != nil {
		h.fail(c, entity, err)
		return
	}
	SyncOk(c, res.Duration, res.Complete, resultBody(res))
}

// @Summary Sync every CRM entity
// @Description Runs origins, stages, contacts and deals in order and stops at the first error.
// @Tags sync
// @Accept json
// @Produce json
// @Param body body syncRequest false "auto_mode caps each entity at sync.auto_max_pages"
// @Success 200 {object} syncResponse
// @Failure 409 {object} syncErrorResponse
// @Failure 500 {object} syncErrorResponse
// @Router /api/sync/all [post]
func (h *SyncHandler) syncAll(c *gin.Context) {
	if h.Service == nil {
		SyncError(c, http.StatusInternalServerError, errors.New("service unavailable"))
		return
	}
	req, err := bindSyncRequest(c)
	if err != nil {
		SyncError(c, http.StatusBadRequest, err)
		return
	}
	start := time.Now()
	results, err := h.Service.RunAll(c.Request.Context(), service.RunOptions{AutoMode: req.AutoMode})
	if err != nil {
		h.fail(c, "all", err)
		return
	}
	body := make(map[string]any, len(results))
	complete := true
	for _, res := range results {
		body[res.Entity] = resultBody(res)
		complete = complete && res.Complete
	}
	SyncOk(c, time.Since(start), complete, body)
}

// @Summary Sync the deals of one origin
// @Description Walks the full deals collection and keeps the deals whose origin, or stage origin, is origin_id.
// @Tags sync
// @Accept json
// @Produce json
// @Param body body syncRequest true "origin_id is required"
// @Success 200 {object} syncResponse
// @Failure 400 {object} syncErrorResponse
// @Failure 409 {object} syncErrorResponse
// @Failure 500 {object} syncErrorResponse
// @Router /api/sync/origin-deals [post]
func (h *SyncHandler) syncOriginDeals(c *gin.Context) {
	if h.Service == nil {
		SyncError(c, http.StatusInternalServerError, errors.New("service unavailable"))
		return
	}
	req, err := bindSyncRequest(c)
	if err != nil {
		SyncError(c, http.StatusBadRequest, err)
		return
	}
	res, err := h.Service.SyncOriginDeals(c.Request.Context(), req.OriginID, service.RunOptions{AutoMode: req.AutoMode})
	if err != nil {
		h.fail(c, service.OriginDealsJobType(req.OriginID), err)
		return
	}
	body := resultBody(res)
	body["origin_id"] = strings.TrimSpace(req.OriginID)
	SyncOk(c, res.Duration, res.Complete, body)
}

// @Summary List sync jobs
// @Tags sync
// @Param job_type query string false "job type, e.g. deals or deals:origin:<id>"
// @Param status query string false "running|completed|failed"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/sync/jobs [get]
func (h *SyncHandler) listJobs(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, total, err := h.Service.ListJobs(c.Request.Context(), repository.ListSyncJobsParams{
		Limit:   limit,
		Offset:  offset,
		JobType: strQueryPtr(c, "job_type"),
		Status:  strQueryPtr(c, "status"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get a sync job
// @Tags sync
// @Param id path string true "job id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/sync/jobs/{id} [get]
func (h *SyncHandler) getJob(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	job, err := h.Service.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if job == nil {
		Error(c, http.StatusNotFound, "job not found", nil)
		return
	}
	Ok(c, job, nil)
}

func (h *SyncHandler) fail(c *gin.Context, target string, err error) {
	status := syncErrorStatus(err)
	if h.Logger != nil {
		h.Logger.Warn("sync request failed",
			zap.String("target", target),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	SyncError(c, status, err)
}

// bindSyncRequest accepts an empty body as all defaults.
func bindSyncRequest(c *gin.Context) (syncRequest, error) {
	var req syncRequest
	if c.Request.Body == nil {
		return req, nil
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return syncRequest{}, nil
		}
		return req, errors.New("invalid body: " + err.Error())
	}
	return req, nil
}

func resultBody(res service.RunResult) map[string]any {
	return map[string]any{
		res.Entity + "_synced": res.Synced,
		"last_page":            res.LastPage,
		"total_processed":      res.TotalProcessed,
		"job_id":               res.JobID,
		"job_type":             res.JobType,
		"resumed":              res.Resumed,
		"pages":                res.Pages,
	}
}
