package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	DealOpen = "OPEN"
	DealWon  = "WON"
	DealLost = "LOST"
)

// Deal mirrors a remote CRM deal. The *ClintID columns keep the remote
// references so a null local FK can be relinked by a later sync.
type Deal struct {
	ID                uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ClintID           string          `gorm:"type:varchar(64);uniqueIndex;not null;comment:remote natural key" json:"clint_id"`
	Title             string          `gorm:"type:text;not null;comment:deal title" json:"title"`
	Status            string          `gorm:"type:varchar(16);not null;index;comment:OPEN|WON|LOST" json:"status"`
	Value             decimal.Decimal `gorm:"type:numeric(20,2);not null;comment:deal value" json:"value"`
	Currency          string          `gorm:"type:varchar(8);not null;comment:currency code" json:"currency"`
	UserEmail         *string         `gorm:"type:text;index;comment:owner email" json:"user_email,omitempty"`
	Tags              datatypes.JSON  `gorm:"comment:tag names" json:"tags"`
	Fields            datatypes.JSON  `gorm:"comment:custom fields" json:"fields"`
	StageClintID      *string         `gorm:"type:varchar(64);comment:remote stage id" json:"stage_clint_id,omitempty"`
	ContactClintID    *string         `gorm:"type:varchar(64);comment:remote contact id" json:"contact_clint_id,omitempty"`
	OriginClintID     *string         `gorm:"type:varchar(64);index;comment:remote origin id" json:"origin_clint_id,omitempty"`
	StageID           *uint64         `gorm:"index;comment:local stage id" json:"stage_id,omitempty"`
	ContactID         *uint64         `gorm:"index;comment:local contact id" json:"contact_id,omitempty"`
	OriginID          *uint64         `gorm:"index;comment:local origin id" json:"origin_id,omitempty"`
	WonAt             *time.Time      `gorm:"comment:won time" json:"won_at,omitempty"`
	LostAt            *time.Time      `gorm:"comment:lost time" json:"lost_at,omitempty"`
	LostReason        *string         `gorm:"type:text;comment:lost reason" json:"lost_reason,omitempty"`
	ExternalCreatedAt *time.Time      `gorm:"index;comment:remote created_at" json:"external_created_at,omitempty"`
	ExternalUpdatedAt *time.Time      `gorm:"comment:remote updated_at" json:"external_updated_at,omitempty"`
	LastSeenAt        time.Time       `gorm:"not null;comment:last sync time" json:"last_seen_at"`
	RawJSON           datatypes.JSON  `gorm:"not null;comment:remote payload" json:"-"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Deal) TableName() string {
	return "crm_deals"
}
