package models

import (
	"time"

	"gorm.io/datatypes"
)

type Origin struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ClintID    string         `gorm:"type:varchar(64);uniqueIndex;not null;comment:remote natural key" json:"clint_id"`
	Name       string         `gorm:"type:text;not null;comment:origin name" json:"name"`
	GroupName  *string        `gorm:"type:text;comment:origin group" json:"group_name,omitempty"`
	LastSeenAt time.Time      `gorm:"not null;comment:last sync time" json:"last_seen_at"`
	RawJSON    datatypes.JSON `gorm:"not null;comment:remote payload" json:"-"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Origin) TableName() string {
	return "crm_origins"
}
