package notifications

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	"github.com/angelmondragon/creatorpay-backend/pkg/pagination"
	"github.com/angelmondragon/creatorpay-backend/pkg/types"
)

// NotificationDTO is the API view of a notification.
type NotificationDTO struct {
	ID        uuid.UUID              `json:"id"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Link      *string                `json:"link,omitempty"`
	ReadAt    *time.Time             `json:"readAt,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// ListResult is a cursor page of notifications.
type ListResult = types.Page[NotificationDTO]

func fromModel(n models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

func toPage(rows []models.Notification, limit int) *ListResult {
	rows, next := pagination.Trim(rows, limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, fromModel(row))
	}
	return &ListResult{Items: items, NextCursor: next}
}
