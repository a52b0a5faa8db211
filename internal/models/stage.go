package models

import (
	"time"

	"gorm.io/datatypes"
)

type Stage struct {
	ID            uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ClintID       string         `gorm:"type:varchar(64);uniqueIndex;not null;comment:remote natural key" json:"clint_id"`
	Name          string         `gorm:"type:text;not null;comment:stage name" json:"name"`
	Position      int            `gorm:"not null;comment:order inside the origin funnel" json:"position"`
	OriginClintID *string        `gorm:"type:varchar(64);index;comment:remote origin id" json:"origin_clint_id,omitempty"`
	OriginID      *uint64        `gorm:"index;comment:local origin id" json:"origin_id,omitempty"`
	LastSeenAt    time.Time      `gorm:"not null;comment:last sync time" json:"last_seen_at"`
	RawJSON       datatypes.JSON `gorm:"not null;comment:remote payload" json:"-"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Stage) TableName() string {
	return "crm_stages"
}
