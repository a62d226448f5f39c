package payouts

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/internal/campaigns"
	"github.com/angelmondragon/creatorpay-backend/internal/ledger"
	"github.com/angelmondragon/creatorpay-backend/internal/wallets"
	"github.com/angelmondragon/creatorpay-backend/pkg/config"
	"github.com/angelmondragon/creatorpay-backend/pkg/db"
	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	"github.com/angelmondragon/creatorpay-backend/pkg/metrics"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox/payloads"
)

const payoutUniqueIndex = "ux_transactions_campaign_payout"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service releases campaign payouts at most once.
type Service interface {
	ReleasePayments(ctx context.Context, input ReleaseInput) (*models.PaymentReleaseReceipt, error)
	ReleaseStatus(ctx context.Context, campaignID uuid.UUID) (*StatusView, error)
}

// ReleaseInput identifies the release request. AdvisoryUserIDs is the
// client's idea of who gets paid; it is compared and logged, never trusted.
type ReleaseInput struct {
	CampaignID      uuid.UUID
	ActorID         uuid.UUID
	ActorRole       enums.MemberRole
	AdvisoryUserIDs []uuid.UUID
}

// StatusView is the read-only release position of a campaign.
type StatusView struct {
	CampaignID   uuid.UUID                     `json:"campaignId"`
	State        State                         `json:"state"`
	PendingCount int                           `json:"pendingCount"`
	Preview      *Summary                      `json:"preview,omitempty"`
	Receipt      *models.PaymentReleaseReceipt `json:"paymentReleaseReceipt,omitempty"`
}

type service struct {
	tx        txRunner
	campaigns campaigns.Repository
	wallets   wallets.Repository
	ledger    ledger.Service
	outbox    outboxPublisher
	retry     config.PayoutsConfig
	metrics   *metrics.PayoutMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the release coordinator.
func NewService(
	tx txRunner,
	campaignRepo campaigns.Repository,
	walletRepo wallets.Repository,
	ledgerSvc ledger.Service,
	publisher outboxPublisher,
	retryCfg config.PayoutsConfig,
	payoutMetrics *metrics.PayoutMetrics,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if campaignRepo == nil {
		return nil, fmt.Errorf("campaign repository required")
	}
	if walletRepo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if retryCfg.CreditRetryBase <= 0 {
		return nil, fmt.Errorf("credit retry base must be positive")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:        tx,
		campaigns: campaignRepo,
		wallets:   walletRepo,
		ledger:    ledgerSvc,
		outbox:    publisher,
		retry:     retryCfg,
		metrics:   payoutMetrics,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) ReleasePayments(ctx context.Context, input ReleaseInput) (receipt *models.PaymentReleaseReceipt, err error) {
	if input.CampaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}

	started := time.Now()
	defer func() {
		s.metrics.ObserveRelease(releaseOutcome(err), time.Since(started))
	}()

	ctx = s.logg.WithCampaignID(ctx, input.CampaignID.String())
	ctx = s.logg.WithUserID(ctx, input.ActorID.String())
	s.logg.Info(ctx, "payouts.release.start")

	campaign, err := s.loadCampaign(ctx, input.CampaignID)
	if err != nil {
		return nil, err
	}
	hasPayouts, err := s.ledger.HasCompletedPayouts(ctx, campaign.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing payouts")
	}

	summary := Calculate(campaign.Videos)
	state := DeriveState(campaign, hasPayouts)
	switch {
	case state == StateReleased:
		s.logg.Info(ctx, "payouts.release.already_released")
		return nil, alreadyReleasedError(campaign.PaymentReleaseReceipt)
	case state == StateBlocked:
		return nil, pendingReviewError(summary.PendingCount)
	case !CanTransition(state, StateReleasing):
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot release from state %s", state))
	}
	var settled []models.Transaction
	if state == StateReleasing {
		s.logg.Warn(ctx, "payouts.release.resume")
		settled, err = s.ledger.ListCompletedPayouts(ctx, campaign.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settled payouts")
		}
	}
	for _, warning := range summary.Warnings {
		s.logg.Warn(s.logg.WithField(ctx, "warning", warning), "payouts.calculate.warning")
	}
	s.compareAdvisory(ctx, summary, input.AdvisoryUserIDs)

	// Crediting must not stop halfway because the caller went away.
	ctx = context.WithoutCancel(ctx)

	results, err := s.creditAll(ctx, campaign.ID, input, creditors(summary, settled))
	if err != nil {
		return nil, err
	}

	releasedAt := s.now()
	receipt = BuildReceipt(campaign.ID, summary, results, input.ActorID, releasedAt)
	if err := VerifyConservation(receipt, summary, Settled(results)); err != nil {
		s.logg.Error(ctx, "payouts.release.conservation_failed", err)
		return nil, err
	}

	won, err := s.finalize(ctx, input, receipt, len(summary.UnpaidVideos))
	if err != nil {
		return nil, err
	}
	if !won {
		winner, loadErr := s.loadCampaign(ctx, campaign.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		s.logg.Info(ctx, "payouts.release.lost_race")
		return nil, alreadyReleasedError(winner.PaymentReleaseReceipt)
	}

	fields := map[string]any{
		"creator_count":     receipt.CreatorCount,
		"total_distributed": receipt.TotalDistributed.String(),
		"unpaid_videos":     len(receipt.UnpaidVideos),
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "payouts.release.complete")
	return receipt, nil
}

func (s *service) loadCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	campaign, err := s.campaigns.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign")
	}
	return campaign, nil
}

// creditors returns the payable creators plus every creator an earlier run
// already paid, in creator id order. A paid creator whose earnings have since
// dropped to zero still belongs on the receipt.
func creditors(summary Summary, settled []models.Transaction) []CreatorPayout {
	out := summary.Payable()
	seen := make(map[uuid.UUID]struct{}, len(out))
	for _, creator := range out {
		seen[creator.CreatorID] = struct{}{}
	}
	known := make(map[uuid.UUID]CreatorPayout, len(summary.Creators))
	for _, creator := range summary.Creators {
		known[creator.CreatorID] = creator
	}
	for _, txn := range settled {
		if txn.TargetUserID == nil {
			continue
		}
		id := *txn.TargetUserID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		creator, ok := known[id]
		if !ok {
			creator = CreatorPayout{
				CreatorID:        id,
				TotalPayout:      decimal.Zero,
				ApprovedVideoIDs: []uuid.UUID{},
				DeniedVideoIDs:   []uuid.UUID{},
				PendingVideoIDs:  []uuid.UUID{},
			}
		}
		out = append(out, creator)
	}
	slices.SortFunc(out, func(a, b CreatorPayout) int {
		return compareIDs(a.CreatorID, b.CreatorID)
	})
	return out
}

// creditAll runs one atomic credit step per creator. Completed steps stay
// applied when a later one fails.
func (s *service) creditAll(ctx context.Context, campaignID uuid.UUID, input ReleaseInput, payable []CreatorPayout) ([]WalletUpdateResult, error) {
	results := make([]WalletUpdateResult, 0, len(payable))
	for i, creator := range payable {
		result, err := s.creditWithRetry(ctx, campaignID, input, creator)
		if err != nil {
			credited := make([]uuid.UUID, 0, i)
			for _, done := range results {
				credited = append(credited, done.CreatorID)
			}
			remaining := make([]uuid.UUID, 0, len(payable)-i)
			for _, rest := range payable[i:] {
				remaining = append(remaining, rest.CreatorID)
			}
			s.logg.Error(s.logg.WithFields(ctx, map[string]any{
				"creator_id": creator.CreatorID.String(),
				"credited":   len(credited),
				"remaining":  len(remaining),
			}), "payouts.credit.failed", err)

			if !pkgerrors.IsRetryable(err) {
				return nil, err
			}
			return nil, partialReleaseError(&PartialReleaseError{
				CampaignID: campaignID,
				Credited:   credited,
				Remaining:  remaining,
				Err:        err,
			})
		}
		if result.Reused && !result.PayoutAmount.Equal(creator.TotalPayout) {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"creator_id": creator.CreatorID.String(),
				"paid":       result.PayoutAmount.String(),
				"computed":   creator.TotalPayout.String(),
			}), "payouts.credit.earnings_changed")
		}
		s.metrics.ObserveCredit(result.PayoutAmount, result.Reused)
		results = append(results, result)
	}
	return results, nil
}

func (s *service) creditWithRetry(ctx context.Context, campaignID uuid.UUID, input ReleaseInput, creator CreatorPayout) (WalletUpdateResult, error) {
	backoff := retry.NewExponential(s.retry.CreditRetryBase)
	if s.retry.CreditRetryCap > 0 {
		backoff = retry.WithCappedDuration(s.retry.CreditRetryCap, backoff)
	}
	backoff = retry.WithMaxRetries(s.retry.CreditMaxRetries, backoff)

	var result WalletUpdateResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var stepErr error
		result, stepErr = s.creditCreator(ctx, campaignID, input, creator)
		if stepErr == nil {
			return nil
		}
		if db.IsUniqueViolation(stepErr, payoutUniqueIndex) {
			// a concurrent release credited this creator first; the next
			// attempt finds and reuses its transaction
			s.logg.Warn(ctx, "payouts.credit.raced")
			return retry.RetryableError(stepErr)
		}
		if pkgerrors.IsRetryable(stepErr) {
			s.logg.Warn(s.logg.WithField(ctx, "error", stepErr.Error()), "payouts.credit.retry")
			return retry.RetryableError(stepErr)
		}
		return stepErr
	})
	return result, err
}

// creditCreator applies or reuses one creator's credit in a single
// transaction and marks their approved videos paid.
func (s *service) creditCreator(ctx context.Context, campaignID uuid.UUID, input ReleaseInput, creator CreatorPayout) (WalletUpdateResult, error) {
	var result WalletUpdateResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		walletRepo := s.wallets.WithTx(tx)
		ledgerSvc := s.ledger.WithTx(tx)

		user, err := walletRepo.LockForUpdate(ctx, creator.CreatorID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("creator %s has no wallet", creator.CreatorID)).
				WithDetails(map[string]any{"creatorId": creator.CreatorID})
		}
		if err != nil {
			return err
		}

		existing, err := ledgerSvc.FindCompletedPayout(ctx, campaignID, creator.CreatorID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = reusedResult(existing, user, creator)
		} else {
			result, err = s.applyCredit(ctx, tx, campaignID, input, creator, user)
			if err != nil {
				return err
			}
		}
		return s.campaigns.WithTx(tx).MarkVideosPaid(ctx, campaignID, creator.ApprovedVideoIDs)
	})
	return result, err
}

func (s *service) applyCredit(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID, input ReleaseInput, creator CreatorPayout, user *models.User) (WalletUpdateResult, error) {
	previous := user.Wallet
	next := previous.Add(creator.TotalPayout)
	if err := s.wallets.WithTx(tx).UpdateWallet(ctx, user.ID, next); err != nil {
		return WalletUpdateResult{}, err
	}

	creatorID := creator.CreatorID
	txn, err := s.ledger.WithTx(tx).Append(ctx, ledger.AppendInput{
		Type:             enums.TransactionTypeCreatorPayout,
		Status:           enums.TransactionStatusCompleted,
		Amount:           creator.TotalPayout,
		ActorID:          input.ActorID,
		TargetUserID:     &creatorID,
		CampaignID:       &campaignID,
		PreviousBalance:  &previous,
		ResultingBalance: &next,
	})
	if err != nil {
		return WalletUpdateResult{}, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventCreatorPayoutCredited,
		AggregateType: enums.AggregateUser,
		AggregateID:   creatorID,
		Actor:         actorRef(input),
		Data: payloads.CreatorPayoutCreditedEvent{
			CampaignID:      campaignID,
			CreatorID:       creatorID,
			TransactionID:   txn.ID,
			Amount:          creator.TotalPayout,
			PreviousBalance: previous,
			NewBalance:      next,
			VideoIDs:        creator.ApprovedVideoIDs,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return WalletUpdateResult{}, err
	}

	return WalletUpdateResult{
		CreatorID:      creatorID,
		PreviousWallet: previous,
		PayoutAmount:   creator.TotalPayout,
		NewWallet:      next,
		TransactionID:  txn.ID,
		VideoIDs:       creator.ApprovedVideoIDs,
		User:           snapshot(user),
	}, nil
}

func reusedResult(existing *models.Transaction, user *models.User, creator CreatorPayout) WalletUpdateResult {
	return WalletUpdateResult{
		CreatorID:      creator.CreatorID,
		PreviousWallet: existing.PreviousBalance.Decimal,
		PayoutAmount:   existing.Amount,
		NewWallet:      existing.ResultingBalance.Decimal,
		TransactionID:  existing.ID,
		VideoIDs:       creator.ApprovedVideoIDs,
		User:           snapshot(user),
		Reused:         true,
	}
}

func (s *service) finalize(ctx context.Context, input ReleaseInput, receipt *models.PaymentReleaseReceipt, unpaidCount int) (bool, error) {
	var won bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.campaigns.WithTx(tx).FinalizeRelease(ctx, campaigns.FinalizeInput{
			CampaignID: receipt.CampaignID,
			Receipt:    receipt,
			ReleasedBy: input.ActorID,
			ReleasedAt: receipt.ReleasedAt,
		})
		if err != nil || !ok {
			return err
		}
		won = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCampaignPaymentsReleased,
			AggregateType: enums.AggregateCampaign,
			AggregateID:   receipt.CampaignID,
			Actor:         actorRef(input),
			Data: payloads.CampaignPaymentsReleasedEvent{
				CampaignID:       receipt.CampaignID,
				TotalDistributed: receipt.TotalDistributed,
				CreatorCount:     receipt.CreatorCount,
				UnpaidCount:      unpaidCount,
				ReleasedBy:       input.ActorID,
				ReleasedAt:       receipt.ReleasedAt,
			},
		})
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize release")
	}
	return won, nil
}

func (s *service) compareAdvisory(ctx context.Context, summary Summary, advisory []uuid.UUID) {
	if len(advisory) == 0 {
		return
	}
	expected := map[uuid.UUID]struct{}{}
	for _, creator := range summary.Payable() {
		expected[creator.CreatorID] = struct{}{}
	}
	given := map[uuid.UUID]struct{}{}
	for _, id := range advisory {
		given[id] = struct{}{}
	}
	diverges := len(given) != len(expected)
	for id := range given {
		if _, ok := expected[id]; !ok {
			diverges = true
			break
		}
	}
	if diverges {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"advisory_count": len(given),
			"payable_count":  len(expected),
		}), "payouts.release.advisory_mismatch")
	}
}

func (s *service) ReleaseStatus(ctx context.Context, campaignID uuid.UUID) (*StatusView, error) {
	if campaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}
	campaign, err := s.loadCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	hasPayouts, err := s.ledger.HasCompletedPayouts(ctx, campaignID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing payouts")
	}

	summary := Calculate(campaign.Videos)
	view := &StatusView{
		CampaignID:   campaignID,
		State:        DeriveState(campaign, hasPayouts),
		PendingCount: summary.PendingCount,
	}
	if view.State == StateReleased {
		view.Receipt = campaign.PaymentReleaseReceipt
	} else {
		view.Preview = &summary
	}
	return view, nil
}

func snapshot(user *models.User) models.UserSnapshot {
	return models.UserSnapshot{
		Username:     user.Username,
		Email:        user.Email,
		PaymentEmail: user.PaymentEmail,
	}
}

func actorRef(input ReleaseInput) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: input.ActorID, Role: input.ActorRole.String()}
}

func releaseOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeReleased
	case pkgerrors.HasCode(err, pkgerrors.CodeAlreadyReleased):
		return metrics.OutcomeAlreadyReleased
	case pkgerrors.HasCode(err, pkgerrors.CodePendingReview):
		return metrics.OutcomePendingReview
	}
	var partial *PartialReleaseError
	if errors.As(err, &partial) {
		return metrics.OutcomePartial
	}
	return metrics.OutcomeFailed
}
