package payouts

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
)

// WalletUpdateResult is the outcome of one creator credit step. Reused is
// set when the credit was applied by an earlier run.
type WalletUpdateResult struct {
	CreatorID      uuid.UUID
	PreviousWallet decimal.Decimal
	PayoutAmount   decimal.Decimal
	NewWallet      decimal.Decimal
	TransactionID  uuid.UUID
	VideoIDs       []uuid.UUID
	User           models.UserSnapshot
	Reused         bool
}

// BuildReceipt assembles the audit record from the calculator summary and
// the credit results. Output depends only on the inputs.
func BuildReceipt(campaignID uuid.UUID, summary Summary, results []WalletUpdateResult, actorID uuid.UUID, releasedAt time.Time) *models.PaymentReleaseReceipt {
	updates := make([]models.WalletUpdate, 0, len(results))
	total := decimal.Zero
	for _, result := range results {
		videoIDs := slices.Clone(result.VideoIDs)
		if videoIDs == nil {
			videoIDs = []uuid.UUID{}
		}
		updates = append(updates, models.WalletUpdate{
			UserID:         result.CreatorID,
			PreviousWallet: result.PreviousWallet,
			PayoutAmount:   result.PayoutAmount,
			NewWallet:      result.NewWallet,
			TransactionID:  result.TransactionID,
			VideoIDs:       videoIDs,
			UserData:       result.User,
		})
		total = total.Add(result.PayoutAmount)
	}
	slices.SortFunc(updates, func(a, b models.WalletUpdate) int {
		return compareIDs(a.UserID, b.UserID)
	})

	unpaid := slices.Clone(summary.UnpaidVideos)
	if unpaid == nil {
		unpaid = []models.UnpaidVideo{}
	}

	return &models.PaymentReleaseReceipt{
		CampaignID:       campaignID,
		WalletUpdates:    updates,
		UnpaidVideos:     unpaid,
		TotalDistributed: total,
		CreatorCount:     len(updates),
		ReleasedBy:       actorID,
		ReleasedAt:       releasedAt.UTC(),
	}
}

// Settled returns the amounts applied by an earlier run, keyed by creator.
func Settled(results []WalletUpdateResult) map[uuid.UUID]decimal.Decimal {
	settled := map[uuid.UUID]decimal.Decimal{}
	for _, result := range results {
		if result.Reused {
			settled[result.CreatorID] = result.PayoutAmount
		}
	}
	return settled
}

// VerifyConservation checks that the receipt pays exactly what is owed,
// creator by creator. A settled creator is owed the stored amount, not the
// amount computed from current earnings.
func VerifyConservation(receipt *models.PaymentReleaseReceipt, summary Summary, settled map[uuid.UUID]decimal.Decimal) error {
	if receipt == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "receipt missing")
	}
	owed := map[uuid.UUID]decimal.Decimal{}
	for _, creator := range summary.Payable() {
		owed[creator.CreatorID] = creator.TotalPayout
	}
	for creatorID, amount := range settled {
		owed[creatorID] = amount
	}
	expected := decimal.Zero
	for _, amount := range owed {
		expected = expected.Add(amount)
	}
	if len(owed) != len(receipt.WalletUpdates) {
		return conservationError("receipt covers %d creators, summary owes %d", len(receipt.WalletUpdates), len(owed))
	}

	sum := decimal.Zero
	for _, update := range receipt.WalletUpdates {
		expected, ok := owed[update.UserID]
		if !ok {
			return conservationError("receipt pays unexpected creator %s", update.UserID)
		}
		if !update.PayoutAmount.Equal(expected) {
			return conservationError("creator %s paid %s, owed %s", update.UserID, update.PayoutAmount, expected)
		}
		if !update.PreviousWallet.Add(update.PayoutAmount).Equal(update.NewWallet) {
			return conservationError("creator %s wallet %s + %s != %s", update.UserID, update.PreviousWallet, update.PayoutAmount, update.NewWallet)
		}
		sum = sum.Add(update.PayoutAmount)
	}
	if !sum.Equal(receipt.TotalDistributed) {
		return conservationError("wallet updates sum to %s, receipt total is %s", sum, receipt.TotalDistributed)
	}
	if !sum.Equal(expected) {
		return conservationError("distributed %s, owed %s", sum, expected)
	}
	return nil
}

func conservationError(format string, args ...any) error {
	return pkgerrors.New(pkgerrors.CodeInternal, "receipt conservation check failed").
		WithDetails(map[string]any{"reason": fmt.Sprintf(format, args...)})
}
