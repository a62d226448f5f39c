package payouts

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
)

// PartialReleaseError reports a credit loop that stopped partway. The
// campaign stays unreleased and a later call resumes with Remaining.
type PartialReleaseError struct {
	CampaignID uuid.UUID
	Credited   []uuid.UUID
	Remaining  []uuid.UUID
	Err        error
}

func (e *PartialReleaseError) Error() string {
	return fmt.Sprintf("partial release of campaign %s: %d credited, %d remaining: %v",
		e.CampaignID, len(e.Credited), len(e.Remaining), e.Err)
}

func (e *PartialReleaseError) Unwrap() error {
	return e.Err
}

func alreadyReleasedError(receipt *models.PaymentReleaseReceipt) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyReleased, "campaign payments already released").
		WithDetails(map[string]any{"paymentReleaseReceipt": receipt})
}

func pendingReviewError(count int) error {
	return pkgerrors.New(pkgerrors.CodePendingReview, fmt.Sprintf("%d videos are still pending review", count)).
		WithDetails(map[string]any{"pendingCount": count})
}

func partialReleaseError(partial *PartialReleaseError) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, partial, "payout release interrupted, retry to resume").
		WithDetails(map[string]any{
			"creditedCreators":  partial.Credited,
			"remainingCreators": partial.Remaining,
		})
}
