package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"crmsync/internal/models"
)

// MirrorRepository is the write path into the mirrored CRM tables plus the
// bulk lookups the resolver needs. All *Tx methods run on the page transaction.
type MirrorRepository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	UpsertOriginsTx(ctx context.Context, tx *gorm.DB, items []models.Origin) error
	UpsertStagesTx(ctx context.Context, tx *gorm.DB, items []models.Stage) error
	UpsertContactsTx(ctx context.Context, tx *gorm.DB, items []models.Contact) error
	UpsertDealsTx(ctx context.Context, tx *gorm.DB, items []models.Deal) error
	EnsureContactsTx(ctx context.Context, tx *gorm.DB, items []models.Contact) error
	FindOriginsByClintIDsTx(ctx context.Context, tx *gorm.DB, clintIDs []string) ([]models.Origin, error)
	FindStagesByClintIDsTx(ctx context.Context, tx *gorm.DB, clintIDs []string) ([]models.Stage, error)
	FindContactsByClintIDsTx(ctx context.Context, tx *gorm.DB, clintIDs []string) ([]models.Contact, error)
}

type SyncJobRepository interface {
	GetRunningSyncJob(ctx context.Context, jobType string) (*models.SyncJob, error)
	// CreateSyncJob inserts item unless a running job of the same type exists.
	// created reports whether item was the row written.
	CreateSyncJob(ctx context.Context, item *models.SyncJob) (created bool, err error)
	AdvanceSyncJobTx(ctx context.Context, tx *gorm.DB, params AdvanceSyncJobParams) error
	CompleteSyncJob(ctx context.Context, id string) error
	FailSyncJob(ctx context.Context, id string, message string) error
	GetSyncJob(ctx context.Context, id string) (*models.SyncJob, error)
	ListSyncJobs(ctx context.Context, params ListSyncJobsParams) ([]models.SyncJob, error)
	CountSyncJobs(ctx context.Context, params ListSyncJobsParams) (int64, error)
}

type SettingsRepository interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
	CountSystemSettings(ctx context.Context, params ListSystemSettingsParams) (int64, error)
}

type Repository interface {
	MirrorRepository
	SyncJobRepository
	SettingsRepository
}

// AdvanceSyncJobParams moves a running job from Page-1 to Page.
type AdvanceSyncJobParams struct {
	ID        string
	Page      int
	Processed int64
	Stats     []byte
}

type ListSyncJobsParams struct {
	Limit   int
	Offset  int
	JobType *string
	Status  *string
	OrderBy string
	Asc     *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}

// ErrSyncJobNotRunning is returned when a checkpoint write targets a job that
// already left the running state.
var ErrSyncJobNotRunning = errors.New("sync job is not running")

// ErrCheckpointMoved is returned when the job's last_page is no longer the
// page before the one being committed, i.e. another worker advanced it.
var ErrCheckpointMoved = errors.New("sync job checkpoint moved")
