package models

import (
	"time"

	"gorm.io/datatypes"
)

type Contact struct {
	ID                uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ClintID           string         `gorm:"type:varchar(64);uniqueIndex;not null;comment:remote natural key" json:"clint_id"`
	Name              string         `gorm:"type:text;not null;comment:contact name" json:"name"`
	Email             *string        `gorm:"type:text;index;comment:primary email" json:"email,omitempty"`
	Phone             *string        `gorm:"type:text;comment:primary phone" json:"phone,omitempty"`
	Tags              datatypes.JSON `gorm:"comment:tag names" json:"tags"`
	Fields            datatypes.JSON `gorm:"comment:custom fields" json:"fields"`
	ExternalCreatedAt *time.Time     `gorm:"comment:remote created_at" json:"external_created_at,omitempty"`
	ExternalUpdatedAt *time.Time     `gorm:"comment:remote updated_at" json:"external_updated_at,omitempty"`
	LastSeenAt        time.Time      `gorm:"not null;comment:last sync time" json:"last_seen_at"`
	RawJSON           datatypes.JSON `gorm:"not null;comment:remote payload" json:"-"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "crm_contacts"
}
