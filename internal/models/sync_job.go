package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SyncJobRunning   = "running"
	SyncJobCompleted = "completed"
	SyncJobFailed    = "failed"
)

// SyncJob is the checkpoint of one logical, possibly multi-invocation sync run.
// Only one row per job type may be running; the partial unique index enforces it.
type SyncJob struct {
	ID             string         `gorm:"primaryKey;type:varchar(36);comment:job id" json:"id"`
	JobType        string         `gorm:"type:varchar(160);not null;index:idx_sync_jobs_type_started,priority:1;uniqueIndex:uniq_sync_jobs_running,where:status = 'running';comment:logical job type" json:"job_type"`
	Status         string         `gorm:"type:varchar(16);not null;index;comment:running|completed|failed" json:"status"`
	LastPage       int            `gorm:"not null;comment:last checkpointed page" json:"last_page"`
	TotalProcessed int64          `gorm:"not null;comment:cumulative processed records" json:"total_processed"`
	StartedAt      time.Time      `gorm:"not null;index:idx_sync_jobs_type_started,priority:2,sort:desc;comment:job start" json:"started_at"`
	CompletedAt    *time.Time     `gorm:"comment:terminal transition time" json:"completed_at,omitempty"`
	UpdatedAt      time.Time      `gorm:"not null;comment:last checkpoint write" json:"updated_at"`
	ErrorMessage   *string        `gorm:"type:text;comment:failure reason" json:"error_message,omitempty"`
	StatsJSON      datatypes.JSON `gorm:"comment:last page counters" json:"stats,omitempty"`
}

func (SyncJob) TableName() string {
	return "sync_jobs"
}

func (j *SyncJob) Terminal() bool {
	if j == nil {
		return false
	}
	return j.Status == SyncJobCompleted || j.Status == SyncJobFailed
}
