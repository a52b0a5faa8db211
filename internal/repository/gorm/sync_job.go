package gormrepository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crmsync/internal/models"
	"crmsync/internal/repository"
)

func (s *Store) GetRunningSyncJob(ctx context.Context, jobType string) (*models.SyncJob, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	jobType = strings.TrimSpace(jobType)
	if jobType == "" {
		return nil, nil
	}
	var item models.SyncJob
	err := s.db.WithContext(ctx).
		Where("job_type = ? AND status = ?", jobType, models.SyncJobRunning).
		Order("started_at desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateSyncJob relies on uniq_sync_jobs_running: a concurrent creator for the
// same job type loses the insert and gets created=false.
func (s *Store) CreateSyncJob(ctx context.Context, item *models.SyncJob) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	item.Status = models.SyncJobRunning
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_type"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "status = 'running'"},
		}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) AdvanceSyncJobTx(ctx context.Context, tx *gorm.DB, params repository.AdvanceSyncJobParams) error {
	if tx == nil || strings.TrimSpace(params.ID) == "" {
		return nil
	}
	updates := map[string]any{
		"last_page":       params.Page,
		"total_processed": gorm.Expr("total_processed + ?", params.Processed),
		"updated_at":      time.Now().UTC(),
	}
	if len(params.Stats) > 0 {
		updates["stats_json"] = datatypes.JSON(params.Stats)
	}
	res := tx.WithContext(ctx).
		Model(&models.SyncJob{}).
		Where("id = ? AND status = ? AND last_page = ?", params.ID, models.SyncJobRunning, params.Page-1).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var current models.SyncJob
	err := tx.WithContext(ctx).
		Select("id", "status", "last_page").
		Where("id = ?", params.ID).
		Take(&current).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err != nil || current.Terminal() {
		return repository.ErrSyncJobNotRunning
	}
	return fmt.Errorf("%w: job %s at page %d, committing page %d",
		repository.ErrCheckpointMoved, params.ID, current.LastPage, params.Page)
}

func (s *Store) CompleteSyncJob(ctx context.Context, id string) error {
	return s.finishSyncJob(ctx, id, models.SyncJobCompleted, nil)
}

func (s *Store) FailSyncJob(ctx context.Context, id string, message string) error {
	message = strings.TrimSpace(message)
	return s.finishSyncJob(ctx, id, models.SyncJobFailed, &message)
}

func (s *Store) finishSyncJob(ctx context.Context, id string, status string, message *string) error {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil
	}
	now := time.Now().UTC()
	updates := map[string]any{
		"status":       status,
		"completed_at": now,
		"updated_at":   now,
	}
	if message != nil {
		updates["error_message"] = *message
	}
	res := s.db.WithContext(ctx).
		Model(&models.SyncJob{}).
		Where("id = ? AND status = ?", id, models.SyncJobRunning).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrSyncJobNotRunning
	}
	return nil
}

func (s *Store) GetSyncJob(ctx context.Context, id string) (*models.SyncJob, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var item models.SyncJob
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSyncJobs(ctx context.Context, params repository.ListSyncJobsParams) ([]models.SyncJob, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := syncJobFilters(s.db.WithContext(ctx).Model(&models.SyncJob{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "started_at")
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.SyncJob
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSyncJobs(ctx context.Context, params repository.ListSyncJobsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := syncJobFilters(s.db.WithContext(ctx).Model(&models.SyncJob{}), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func syncJobFilters(query *gorm.DB, params repository.ListSyncJobsParams) *gorm.DB {
	if params.JobType != nil && strings.TrimSpace(*params.JobType) != "" {
		query = query.Where("job_type = ?", strings.TrimSpace(*params.JobType))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	return query
}
