package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crmsync/internal/client/clint"
	"crmsync/internal/lock"
	"crmsync/internal/models"
	"crmsync/internal/repository"
	"crmsync/internal/resolver"
)

const (
	EntityOrigins  = "origins"
	EntityStages   = "stages"
	EntityContacts = "contacts"
	EntityDeals    = "deals"

	originDealsJobPrefix = "deals:origin:"

	defaultAutoMaxPages = 5
	defaultFullMaxPages = 1000
	defaultLockTTL      = 15 * time.Minute
	finishTimeout       = 10 * time.Second
)

// Entities lists the mirrored entities in dependency order.
var Entities = []string{EntityOrigins, EntityStages, EntityContacts, EntityDeals}

type CRMClient interface {
	ListOrigins(ctx context.Context, page, perPage int) (clint.Page[clint.Origin], error)
	ListStages(ctx context.Context, page, perPage int) (clint.Page[clint.Stage], error)
	ListContacts(ctx context.Context, page, perPage int) (clint.Page[clint.Contact], error)
	ListDeals(ctx context.Context, page, perPage int) (clint.Page[clint.Deal], error)
}

type FeatureSwitches interface {
	IsEnabled(ctx context.Context, key string, fallback bool) bool
}

type OutcomeLogger interface {
	LogBestEffort(ctx context.Context, action, level string, details map[string]any)
}

type CRMSyncOptions struct {
	PerPage      int
	AutoMaxPages int
	FullMaxPages int
	PageDelay    time.Duration
	LockTTL      time.Duration
}

type CRMSyncService struct {
	Store    repository.Repository
	Client   CRMClient
	Resolver *resolver.Resolver
	Locker   lock.Locker
	Switches FeatureSwitches
	OpsLog   OutcomeLogger
	Logger   *zap.Logger
	Options  CRMSyncOptions
}

type RunOptions struct {
	AutoMode bool
}

type RunResult struct {
	Entity         string        `json:"entity"`
	JobID          string        `json:"job_id"`
	JobType        string        `json:"job_type"`
	Resumed        bool          `json:"resumed"`
	StartPage      int           `json:"start_page"`
	LastPage       int           `json:"last_page"`
	Pages          int           `json:"pages"`
	Synced         int64         `json:"synced"`
	TotalProcessed int64         `json:"total_processed"`
	Complete       bool          `json:"is_complete"`
	Duration       time.Duration `json:"-"`
}

// pageWork is one fetched page. persist runs inside the page transaction and
// returns how many records the page contributes to total_processed.
type pageWork struct {
	fetched int
	meta    *clint.Meta
	persist func(ctx context.Context, tx *gorm.DB) (int64, pageStats, error)
}

type jobSpec struct {
	entity  string
	jobType string
	feature string
	fetch   func(ctx context.Context, page, perPage int) (pageWork, error)
}

func (s *CRMSyncService) Run(ctx context.Context, entity string, opts RunOptions) (RunResult, error) {
	spec, err := s.entitySpec(strings.ToLower(strings.TrimSpace(entity)))
	if err != nil {
		return RunResult{}, err
	}
	return s.runJob(ctx, spec, opts)
}

// RunAll syncs every entity in dependency order and stops at the first error.
// Switched-off entities are skipped.
func (s *CRMSyncService) RunAll(ctx context.Context, opts RunOptions) ([]RunResult, error) {
	results := make([]RunResult, 0, len(Entities))
	for _, entity := range Entities {
		res, err := s.Run(ctx, entity, opts)
		if errors.Is(err, ErrSyncDisabled) {
			if s.Logger != nil {
				s.Logger.Info("sync skipped, switched off", zap.String("entity", entity))
			}
			continue
		}
		if err != nil {
			return results, fmt.Errorf("sync %s: %w", entity, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// SyncOriginDeals walks the whole deals collection and keeps only the deals
// that belong to originID, either directly or through their stage.
func (s *CRMSyncService) SyncOriginDeals(ctx context.Context, originID string, opts RunOptions) (RunResult, error) {
	originID = strings.TrimSpace(originID)
	if originID == "" {
		return RunResult{}, ErrOriginRequired
	}
	if s.Client == nil {
		return RunResult{}, errors.New("crm client is nil")
	}
	spec := jobSpec{
		entity:  EntityDeals,
		jobType: OriginDealsJobType(originID),
		feature: FeatureSyncOriginDeals,
		fetch: func(ctx context.Context, page, perPage int) (pageWork, error) {
			res, err := s.Client.ListDeals(ctx, page, perPage)
			if err != nil {
				return pageWork{}, err
			}
			return s.dealsWork(res, originID), nil
		},
	}
	return s.runJob(ctx, spec, opts)
}

func OriginDealsJobType(originID string) string {
	return originDealsJobPrefix + strings.TrimSpace(originID)
}

func (s *CRMSyncService) GetJob(ctx context.Context, id string) (*models.SyncJob, error) {
	if s == nil || s.Store == nil {
		return nil, nil
	}
	return s.Store.GetSyncJob(ctx, id)
}

func (s *CRMSyncService) ListJobs(ctx context.Context, params repository.ListSyncJobsParams) ([]models.SyncJob, int64, error) {
	if s == nil || s.Store == nil {
		return nil, 0, nil
	}
	items, err := s.Store.ListSyncJobs(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Store.CountSyncJobs(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *CRMSyncService) entitySpec(entity string) (jobSpec, error) {
	if s.Client == nil {
		return jobSpec{}, errors.New("crm client is nil")
	}
	spec := jobSpec{entity: entity, jobType: entity, feature: FeatureKey(entity)}
	switch entity {
	case EntityOrigins:
		spec.fetch = func(ctx context.Context, page, perPage int) (pageWork, error) {
			res, err := s.Client.ListOrigins(ctx, page, perPage)
			if err != nil {
				return pageWork{}, err
			}
			return s.originsWork(res), nil
		}
	case EntityStages:
		spec.fetch = func(ctx context.Context, page, perPage int) (pageWork, error) {
			res, err := s.Client.ListStages(ctx, page, perPage)
			if err != nil {
				return pageWork{}, err
			}
			return s.stagesWork(res), nil
		}
	case EntityContacts:
		spec.fetch = func(ctx context.Context, page, perPage int) (pageWork, error) {
			res, err := s.Client.ListContacts(ctx, page, perPage)
			if err != nil {
				return pageWork{}, err
			}
			return s.contactsWork(res), nil
		}
	case EntityDeals:
		spec.fetch = func(ctx context.Context, page, perPage int) (pageWork, error) {
			res, err := s.Client.ListDeals(ctx, page, perPage)
			if err != nil {
				return pageWork{}, err
			}
			return s.dealsWork(res, ""), nil
		}
	default:
		return jobSpec{}, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	return spec, nil
}

func (s *CRMSyncService) runJob(ctx context.Context, spec jobSpec, opts RunOptions) (RunResult, error) {
	start := time.Now()
	result := RunResult{Entity: spec.entity, JobType: spec.jobType}
	if s.Store == nil {
		return result, errors.New("store is nil")
	}
	if s.Switches != nil && spec.feature != "" && !s.Switches.IsEnabled(ctx, spec.feature, true) {
		return result, fmt.Errorf("%w: %s", ErrSyncDisabled, spec.feature)
	}

	lease, err := s.acquire(ctx, spec.jobType)
	if err != nil {
		return result, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil && s.Logger != nil {
			s.Logger.Warn("release sync lock failed", zap.String("job_type", spec.jobType), zap.Error(err))
		}
	}()

	job, resumed, err := s.resumeOrCreate(ctx, spec.jobType)
	if err != nil {
		return result, err
	}
	result.JobID = job.ID
	result.Resumed = resumed
	result.StartPage = job.LastPage + 1
	result.LastPage = job.LastPage
	result.TotalProcessed = job.TotalProcessed

	perPage := clint.NormalizePerPage(s.perPage())
	maxPages := s.maxPages(opts.AutoMode)
	page := job.LastPage + 1
	for {
		work, err := spec.fetch(ctx, page, perPage)
		if err != nil {
			result.Duration = time.Since(start)
			return result, s.abort(ctx, job, page, fmt.Errorf("fetch %s page %d: %w", spec.entity, page, err))
		}
		if work.meta != nil && s.Logger != nil {
			s.Logger.Debug("remote page meta",
				zap.String("job_type", spec.jobType),
				zap.Int("page", page),
				zap.Int("meta_total", work.meta.Total),
			)
		}
		if work.fetched == 0 {
			result.Complete = true
			break
		}

		var counted int64
		var stats pageStats
		err = s.Store.InTx(ctx, func(tx *gorm.DB) error {
			var err error
			counted, stats, err = work.persist(ctx, tx)
			if err != nil {
				return err
			}
			return s.Store.AdvanceSyncJobTx(ctx, tx, repository.AdvanceSyncJobParams{
				ID:        job.ID,
				Page:      page,
				Processed: counted,
				Stats:     stats.JSON(),
			})
		})
		if errors.Is(err, repository.ErrCheckpointMoved) || errors.Is(err, repository.ErrSyncJobNotRunning) {
			result.Duration = time.Since(start)
			return result, s.handOver(job, page, err)
		}
		if err != nil {
			result.Duration = time.Since(start)
			return result, s.abort(ctx, job, page, fmt.Errorf("persist %s page %d: %w", spec.entity, page, err))
		}

		result.Pages++
		result.LastPage = page
		result.Synced += counted
		result.TotalProcessed += counted
		if s.Logger != nil {
			s.Logger.Info("sync page committed",
				zap.String("job_type", spec.jobType),
				zap.Int("page", page),
				zap.Int("fetched", work.fetched),
				zap.Int("written", stats.Written),
				zap.Int("orphans", stats.orphans()),
				zap.Int64("total_processed", result.TotalProcessed),
			)
		}

		if work.fetched < perPage {
			result.Complete = true
			break
		}
		if result.Pages >= maxPages {
			break
		}
		if err := lease.Extend(ctx, s.lockTTL()); errors.Is(err, lock.ErrLeaseLost) {
			result.Duration = time.Since(start)
			return result, s.handOver(job, page, err)
		} else if err != nil && s.Logger != nil {
			s.Logger.Warn("extend sync lock failed", zap.String("job_type", spec.jobType), zap.Error(err))
		}
		if err := sleepCtx(ctx, s.Options.PageDelay); err != nil {
			result.Duration = time.Since(start)
			return result, s.abort(ctx, job, page+1, err)
		}
		page++
	}

	result.Duration = time.Since(start)
	if !result.Complete {
		if s.Logger != nil {
			s.Logger.Info("sync page cap reached, job stays running",
				zap.String("job_type", spec.jobType),
				zap.String("job_id", job.ID),
				zap.Int("last_page", result.LastPage),
				zap.Int("max_pages", maxPages),
			)
		}
		return result, nil
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := s.Store.CompleteSyncJob(finishCtx, job.ID); err != nil {
		return result, fmt.Errorf("complete sync job %s: %w", job.ID, err)
	}
	if s.Logger != nil {
		s.Logger.Info("sync job completed",
			zap.String("job_type", spec.jobType),
			zap.String("job_id", job.ID),
			zap.Int("last_page", result.LastPage),
			zap.Int64("total_processed", result.TotalProcessed),
			zap.Duration("duration", result.Duration),
		)
	}
	s.recordOutcome(ctx, "crm_sync_completed", "info", result, nil)
	return result, nil
}

func (s *CRMSyncService) acquire(ctx context.Context, jobType string) (lock.Lease, error) {
	locker := s.Locker
	if locker == nil {
		locker = lock.Noop{}
	}
	lease, err := locker.Acquire(ctx, lock.Key(jobType), s.lockTTL())
	if errors.Is(err, lock.ErrLocked) {
		return nil, fmt.Errorf("%w: %s", ErrSyncInProgress, jobType)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	return lease, nil
}

func (s *CRMSyncService) resumeOrCreate(ctx context.Context, jobType string) (*models.SyncJob, bool, error) {
	running, err := s.Store.GetRunningSyncJob(ctx, jobType)
	if err != nil {
		return nil, false, err
	}
	if running != nil {
		if s.Logger != nil {
			s.Logger.Info("sync job resumed",
				zap.String("job_type", jobType),
				zap.String("job_id", running.ID),
				zap.Int("last_page", running.LastPage),
				zap.Int64("total_processed", running.TotalProcessed),
			)
		}
		return running, true, nil
	}

	now := time.Now().UTC()
	job := &models.SyncJob{
		ID:        uuid.NewString(),
		JobType:   jobType,
		Status:    models.SyncJobRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
	created, err := s.Store.CreateSyncJob(ctx, job)
	if err != nil {
		return nil, false, err
	}
	if !created {
		running, err = s.Store.GetRunningSyncJob(ctx, jobType)
		if err != nil {
			return nil, false, err
		}
		if running == nil {
			return nil, false, fmt.Errorf("%w: %s", ErrSyncInProgress, jobType)
		}
		return running, true, nil
	}
	if s.Logger != nil {
		s.Logger.Info("sync job created", zap.String("job_type", jobType), zap.String("job_id", job.ID))
	}
	return job, false, nil
}

func (s *CRMSyncService) lockTTL() time.Duration {
	if s.Options.LockTTL <= 0 {
		return defaultLockTTL
	}
	return s.Options.LockTTL
}

// handOver stops an invocation that lost its job to another worker. The job
// keeps running under the new holder, so it is neither failed nor completed.
func (s *CRMSyncService) handOver(job *models.SyncJob, page int, cause error) error {
	if s.Logger != nil {
		s.Logger.Warn("sync job taken over by another worker, stopping",
			zap.String("job_type", job.JobType),
			zap.String("job_id", job.ID),
			zap.Int("page", page),
			zap.Error(cause),
		)
	}
	return fmt.Errorf("%w: %s: %w", ErrSyncInProgress, job.JobType, cause)
}

// abort marks the job failed, unless the invocation itself was cut short; then
// the job keeps its last checkpoint and stays running for the next invocation.
func (s *CRMSyncService) abort(ctx context.Context, job *models.SyncJob, page int, cause error) error {
	if ctx.Err() != nil {
		if s.Logger != nil {
			s.Logger.Warn("sync interrupted, job stays running",
				zap.String("job_type", job.JobType),
				zap.String("job_id", job.ID),
				zap.Int("page", page),
				zap.Error(cause),
			)
		}
		return cause
	}
	if s.Logger != nil {
		s.Logger.Error("sync job failed",
			zap.String("job_type", job.JobType),
			zap.String("job_id", job.ID),
			zap.Int("page", page),
			zap.Error(cause),
		)
	}
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := s.Store.FailSyncJob(finishCtx, job.ID, cause.Error()); err != nil && s.Logger != nil {
		s.Logger.Warn("mark sync job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	s.recordOutcome(ctx, "crm_sync_failed", "error", RunResult{Entity: job.JobType, JobID: job.ID, JobType: job.JobType, LastPage: page - 1}, cause)
	return cause
}

func (s *CRMSyncService) recordOutcome(ctx context.Context, action, level string, result RunResult, cause error) {
	if s.OpsLog == nil {
		return
	}
	details := map[string]any{
		"job_id":          result.JobID,
		"job_type":        result.JobType,
		"last_page":       result.LastPage,
		"pages":           result.Pages,
		"total_processed": result.TotalProcessed,
		"duration":        result.Duration.String(),
	}
	if cause != nil {
		details["error"] = cause.Error()
	}
	s.OpsLog.LogBestEffort(context.WithoutCancel(ctx), action, level, details)
}

func (s *CRMSyncService) perPage() int {
	if s.Options.PerPage <= 0 {
		return clint.MaxPerPage
	}
	return s.Options.PerPage
}

func (s *CRMSyncService) maxPages(auto bool) int {
	if auto {
		if s.Options.AutoMaxPages > 0 {
			return s.Options.AutoMaxPages
		}
		return defaultAutoMaxPages
	}
	if s.Options.FullMaxPages > 0 {
		return s.Options.FullMaxPages
	}
	return defaultFullMaxPages
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type pageStats struct {
	Fetched        int `json:"fetched"`
	Written        int `json:"written"`
	Skipped        int `json:"skipped"`
	Stubs          int `json:"contact_stubs,omitempty"`
	OrphanOrigins  int `json:"orphan_origins,omitempty"`
	OrphanStages   int `json:"orphan_stages,omitempty"`
	OrphanContacts int `json:"orphan_contacts,omitempty"`
	Scanned        int `json:"scanned,omitempty"`
	Matched        int `json:"matched,omitempty"`
}

func (p pageStats) orphans() int {
	return p.OrphanOrigins + p.OrphanStages + p.OrphanContacts
}

func (p pageStats) JSON() []byte {
	b, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return b
}
