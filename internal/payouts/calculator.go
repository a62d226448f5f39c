package payouts

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
)

// Unpaid video reasons recorded on the receipt.
const (
	ReasonDenied        = "denied"
	ReasonZeroEarnings  = "zero_earnings"
	ReasonMissingAuthor = "missing_author"
)

// CreatorPayout is one creator's share of a campaign.
type CreatorPayout struct {
	CreatorID        uuid.UUID       `json:"creatorId"`
	TotalPayout      decimal.Decimal `json:"totalPayout"`
	ApprovedVideoIDs []uuid.UUID     `json:"approvedVideoIds"`
	DeniedVideoIDs   []uuid.UUID     `json:"deniedVideoIds"`
	PendingVideoIDs  []uuid.UUID     `json:"pendingVideoIds"`
	TotalViews       int64           `json:"totalViews"`
}

// Summary is the calculator output for a whole campaign.
type Summary struct {
	Creators     []CreatorPayout      `json:"creators"`
	UnpaidVideos []models.UnpaidVideo `json:"unpaidVideos"`
	TotalPayout  decimal.Decimal      `json:"totalPayout"`
	PendingCount int                  `json:"pendingCount"`
	Warnings     []string             `json:"warnings,omitempty"`
}

// Payable returns the creators owed a non-zero amount, in creator id order.
func (s Summary) Payable() []CreatorPayout {
	out := make([]CreatorPayout, 0, len(s.Creators))
	for _, creator := range s.Creators {
		if creator.TotalPayout.IsPositive() {
			out = append(out, creator)
		}
	}
	return out
}

// Calculate groups videos by author and totals approved earnings. It has no
// side effects. Denied and pending videos never contribute, whatever their
// stored earnings say.
func Calculate(videos []models.Video) Summary {
	summary := Summary{
		Creators:     []CreatorPayout{},
		UnpaidVideos: []models.UnpaidVideo{},
		TotalPayout:  decimal.Zero,
	}
	byCreator := map[uuid.UUID]*CreatorPayout{}

	for _, video := range videos {
		if video.Status == enums.VideoStatusPending {
			summary.PendingCount++
		}
		if reason, unpaid := unpaidReason(video); unpaid {
			summary.UnpaidVideos = append(summary.UnpaidVideos, models.UnpaidVideo{
				VideoID:  video.ID,
				AuthorID: video.AuthorID,
				URL:      video.URL,
				Status:   video.Status,
				Earnings: video.Earnings,
				Reason:   reason,
			})
		}

		author, ok := video.Author()
		if !ok {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("video %s has no author and was skipped", video.ID))
			continue
		}
		creator, exists := byCreator[author]
		if !exists {
			creator = &CreatorPayout{
				CreatorID:        author,
				TotalPayout:      decimal.Zero,
				ApprovedVideoIDs: []uuid.UUID{},
				DeniedVideoIDs:   []uuid.UUID{},
				PendingVideoIDs:  []uuid.UUID{},
			}
			byCreator[author] = creator
		}
		creator.TotalViews += video.Views

		switch video.Status {
		case enums.VideoStatusApproved:
			creator.ApprovedVideoIDs = append(creator.ApprovedVideoIDs, video.ID)
			creator.TotalPayout = creator.TotalPayout.Add(video.Earnings)
		case enums.VideoStatusDenied:
			creator.DeniedVideoIDs = append(creator.DeniedVideoIDs, video.ID)
		case enums.VideoStatusPending:
			creator.PendingVideoIDs = append(creator.PendingVideoIDs, video.ID)
		default:
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("video %s has unknown status %q", video.ID, video.Status))
		}
	}

	for _, creator := range byCreator {
		summary.Creators = append(summary.Creators, *creator)
		summary.TotalPayout = summary.TotalPayout.Add(creator.TotalPayout)
	}
	slices.SortFunc(summary.Creators, func(a, b CreatorPayout) int {
		return compareIDs(a.CreatorID, b.CreatorID)
	})
	return summary
}

func unpaidReason(video models.Video) (string, bool) {
	_, hasAuthor := video.Author()
	switch {
	case video.Status == enums.VideoStatusDenied:
		return ReasonDenied, true
	case video.Status == enums.VideoStatusApproved && !hasAuthor && video.Earnings.IsPositive():
		return ReasonMissingAuthor, true
	case video.Status == enums.VideoStatusApproved && video.Earnings.IsZero():
		return ReasonZeroEarnings, true
	default:
		return "", false
	}
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
