package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
)

// Notification is an in-app message for a creator derived from a payout event.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	EventID   uuid.UUID              `gorm:"column:event_id;type:uuid;not null"`
	Type      enums.NotificationType `gorm:"column:type;type:notification_type_enum;not null"`
	Title     string                 `gorm:"column:title;not null"`
	Message   string                 `gorm:"column:message;not null"`
	Link      *string                `gorm:"column:link"`
	ReadAt    *time.Time             `gorm:"column:read_at"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
