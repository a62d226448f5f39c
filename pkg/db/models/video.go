package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
)

// Video is a creator submission attached to a campaign. Earnings are computed
// upstream and frozen by the time a release runs.
type Video struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CampaignID  uuid.UUID         `gorm:"column:campaign_id;type:uuid;not null"`
	Position    int               `gorm:"column:position;not null;default:0"`
	URL         string            `gorm:"column:url;not null"`
	AuthorID    *uuid.UUID        `gorm:"column:author_id;type:uuid"`
	Status      enums.VideoStatus `gorm:"column:status;type:video_status_enum;not null"`
	Earnings    decimal.Decimal   `gorm:"column:earnings;type:numeric(14,2);not null;default:0"`
	Views       int64             `gorm:"column:views;not null;default:0"`
	HasBeenPaid bool              `gorm:"column:has_been_paid;not null;default:false"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Video) TableName() string {
	return "campaign_videos"
}

func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// Author returns the author id and whether it is usable for payout grouping.
func (v Video) Author() (uuid.UUID, bool) {
	if v.AuthorID == nil || *v.AuthorID == uuid.Nil {
		return uuid.Nil, false
	}
	return *v.AuthorID, true
}
