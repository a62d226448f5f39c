package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
)

// SeedUser inserts a creator with the given wallet balance.
func SeedUser(t testing.TB, conn *gorm.DB, wallet string) models.User {
	t.Helper()
	id := uuid.New()
	user := models.User{
		ID:       id,
		Email:    fmt.Sprintf("%s@creators.test", id.String()[:8]),
		Username: "creator-" + id.String()[:8],
		Wallet:   decimal.RequireFromString(wallet),
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// Video builds an unsaved video for SeedCampaign.
func Video(author *uuid.UUID, status enums.VideoStatus, earnings string) models.Video {
	return models.Video{
		ID:       uuid.New(),
		URL:      "https://videos.test/" + uuid.NewString(),
		AuthorID: author,
		Status:   status,
		Earnings: decimal.RequireFromString(earnings),
	}
}

// SeedCampaign inserts an unreleased campaign with the given videos.
func SeedCampaign(t testing.TB, conn *gorm.DB, videos ...models.Video) models.Campaign {
	t.Helper()
	campaign := models.Campaign{
		ID:             uuid.New(),
		Name:           "campaign",
		Budget:         decimal.RequireFromString("1000"),
		RatePerMillion: decimal.RequireFromString("25"),
	}
	for i := range videos {
		videos[i].Position = i
	}
	campaign.Videos = videos
	if err := conn.Create(&campaign).Error; err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
	return campaign
}

// OutboxEvents returns every outbox row recorded for an aggregate, oldest first.
func OutboxEvents(t testing.TB, conn *gorm.DB, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	err := conn.
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, aggregateID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		t.Fatalf("load outbox events: %v", err)
	}
	return rows
}
