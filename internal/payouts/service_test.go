package payouts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/internal/campaigns"
	"github.com/angelmondragon/creatorpay-backend/internal/ledger"
	"github.com/angelmondragon/creatorpay-backend/internal/wallets"
	"github.com/angelmondragon/creatorpay-backend/pkg/config"
	"github.com/angelmondragon/creatorpay-backend/pkg/db"
	"github.com/angelmondragon/creatorpay-backend/pkg/db/dbtest"
	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox"
)

type harness struct {
	conn      *gorm.DB
	client    *db.Client
	campaigns campaigns.Repository
	wallets   wallets.Repository
	ledger    ledger.Service
	outbox    *outbox.Repository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Client(t)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(client.DB()))
	require.NoError(t, err)
	return &harness{
		conn:      client.DB(),
		client:    client,
		campaigns: campaigns.NewRepository(client.DB()),
		wallets:   wallets.NewRepository(client.DB()),
		ledger:    ledgerSvc,
		outbox:    outbox.NewRepository(client.DB()),
	}
}

func (h *harness) service(t *testing.T, walletRepo wallets.Repository, maxRetries uint64) Service {
	t.Helper()
	if walletRepo == nil {
		walletRepo = h.wallets
	}
	svc, err := NewService(
		h.client,
		h.campaigns,
		walletRepo,
		h.ledger,
		outbox.NewService(h.outbox, nil),
		config.PayoutsConfig{
			CreditMaxRetries: maxRetries,
			CreditRetryBase:  time.Millisecond,
			CreditRetryCap:   5 * time.Millisecond,
		},
		nil,
		logger.Nop(),
	)
	require.NoError(t, err)
	return svc
}

func (h *harness) wallet(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	user, err := h.wallets.FindByID(context.Background(), id)
	require.NoError(t, err)
	return user.Wallet
}

func (h *harness) payoutRows(t *testing.T, campaignID uuid.UUID) []models.Transaction {
	t.Helper()
	var rows []models.Transaction
	require.NoError(t, h.conn.Where("campaign_id = ? AND type = ?", campaignID, enums.TransactionTypeCreatorPayout).Find(&rows).Error)
	return rows
}

// flakyWallets fails LockForUpdate for one creator a fixed number of times.
type flakyWallets struct {
	wallets.Repository
	failFor  uuid.UUID
	failures *int
}

func (f flakyWallets) WithTx(tx *gorm.DB) wallets.Repository {
	return flakyWallets{Repository: f.Repository.WithTx(tx), failFor: f.failFor, failures: f.failures}
}

func (f flakyWallets) LockForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if id == f.failFor && *f.failures > 0 {
		*f.failures--
		return nil, errors.New("connection reset by peer")
	}
	return f.Repository.LockForUpdate(ctx, id)
}

type scenario struct {
	campaign  models.Campaign
	creatorA  models.User
	creatorB  models.User
	aApproved models.Video
	aDenied   models.Video
	bApproved models.Video
}

// seedTwoCreators builds A: approved $40 + denied with stale $10, B: approved $60.
func seedTwoCreators(t *testing.T, h *harness) scenario {
	t.Helper()
	a := dbtest.SeedUser(t, h.conn, "0")
	b := dbtest.SeedUser(t, h.conn, "5")
	campaign := dbtest.SeedCampaign(t, h.conn,
		dbtest.Video(&a.ID, enums.VideoStatusApproved, "40"),
		dbtest.Video(&a.ID, enums.VideoStatusDenied, "10"),
		dbtest.Video(&b.ID, enums.VideoStatusApproved, "60"),
	)
	return scenario{
		campaign:  campaign,
		creatorA:  a,
		creatorB:  b,
		aApproved: campaign.Videos[0],
		aDenied:   campaign.Videos[1],
		bApproved: campaign.Videos[2],
	}
}

func TestReleasePaymentsTwoCreators(t *testing.T) {
	h := newHarness(t)
	sc := seedTwoCreators(t, h)
	actor := uuid.New()

	receipt, err := h.service(t, nil, 0).ReleasePayments(context.Background(), ReleaseInput{
		CampaignID: sc.campaign.ID,
		ActorID:    actor,
		ActorRole:  enums.MemberRoleOperator,
	})
	require.NoError(t, err)

	require.Len(t, receipt.WalletUpdates, 2)
	assert.True(t, receipt.TotalDistributed.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 2, receipt.CreatorCount)
	updates := map[uuid.UUID]models.WalletUpdate{}
	for _, update := range receipt.WalletUpdates {
		updates[update.UserID] = update
	}
	assert.True(t, updates[sc.creatorA.ID].PayoutAmount.Equal(decimal.NewFromInt(40)))
	assert.True(t, updates[sc.creatorA.ID].NewWallet.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, sc.creatorA.Username, updates[sc.creatorA.ID].UserData.Username)
	assert.True(t, updates[sc.creatorB.ID].PreviousWallet.Equal(decimal.NewFromInt(5)))
	assert.True(t, updates[sc.creatorB.ID].NewWallet.Equal(decimal.NewFromInt(65)))
	require.Len(t, receipt.UnpaidVideos, 1)
	assert.Equal(t, sc.aDenied.ID, receipt.UnpaidVideos[0].VideoID)

	assert.True(t, h.wallet(t, sc.creatorA.ID).Equal(decimal.NewFromInt(40)))
	assert.True(t, h.wallet(t, sc.creatorB.ID).Equal(decimal.NewFromInt(65)))
	assert.Len(t, h.payoutRows(t, sc.campaign.ID), 2)

	stored, err := h.campaigns.FindByID(context.Background(), sc.campaign.ID)
	require.NoError(t, err)
	assert.True(t, stored.FundsReleased)
	require.NotNil(t, stored.PaymentReleaseReceipt)
	assert.True(t, stored.PaymentReleaseReceipt.TotalDistributed.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, stored.PaymentsReleasedBy)
	assert.Equal(t, actor, *stored.PaymentsReleasedBy)
	paid := map[uuid.UUID]bool{}
	for _, v := range stored.Videos {
		paid[v.ID] = v.HasBeenPaid
	}
	assert.True(t, paid[sc.aApproved.ID])
	assert.True(t, paid[sc.bApproved.ID])
	assert.False(t, paid[sc.aDenied.ID])

	credited := dbtest.OutboxEvents(t, h.conn, enums.AggregateUser, sc.creatorA.ID)
	require.Len(t, credited, 1)
	assert.Equal(t, enums.EventCreatorPayoutCredited, credited[0].EventType)
	released := dbtest.OutboxEvents(t, h.conn, enums.AggregateCampaign, sc.campaign.ID)
	require.Len(t, released, 1)
	assert.Equal(t, enums.EventCampaignPaymentsReleased, released[0].EventType)
}

func TestReleasePaymentsSecondCallReturnsExistingReceipt(t *testing.T) {
	h := newHarness(t)
	sc := seedTwoCreators(t, h)
	svc := h.service(t, nil, 0)
	input := ReleaseInput{CampaignID: sc.campaign.ID, ActorID: uuid.New()}

	first, err := svc.ReleasePayments(context.Background(), input)
	require.NoError(t, err)

	second, err := svc.ReleasePayments(context.Background(), input)
	require.Nil(t, second)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeAlreadyReleased), "got %v", err)

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	existing, ok := details["paymentReleaseReceipt"].(*models.PaymentReleaseReceipt)
	require.True(t, ok)
	assert.True(t, existing.TotalDistributed.Equal(first.TotalDistributed))
	assert.Len(t, existing.WalletUpdates, 2)

	assert.True(t, h.wallet(t, sc.creatorA.ID).Equal(decimal.NewFromInt(40)))
	assert.True(t, h.wallet(t, sc.creatorB.ID).Equal(decimal.NewFromInt(65)))
	assert.Len(t, h.payoutRows(t, sc.campaign.ID), 2)
}

func TestReleasePaymentsConcurrentCallsCreditOnce(t *testing.T) {
	h := newHarness(t)
	sc := seedTwoCreators(t, h)
	svc := h.service(t, nil, 2)

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ReleasePayments(context.Background(), ReleaseInput{
				CampaignID: sc.campaign.ID,
				ActorID:    uuid.New(),
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeAlreadyReleased), "got %v", err)
	}
	assert.Equal(t, 1, successes)
	assert.True(t, h.wallet(t, sc.creatorA.ID).Equal(decimal.NewFromInt(40)))
	assert.True(t, h.wallet(t, sc.creatorB.ID).Equal(decimal.NewFromInt(65)))
	assert.Len(t, h.payoutRows(t, sc.campaign.ID), 2)
}

func TestReleasePaymentsResumesAfterPartialFailure(t *testing.T) {
	h := newHarness(t)
	sc := seedTwoCreators(t, h)

	first, second := sc.creatorA, sc.creatorB
	if compareIDs(second.ID, first.ID) < 0 {
		first, second = second, first
	}
	failures := 1
	flaky := flakyWallets{Repository: h.wallets, failFor: second.ID, failures: &failures}

	input := ReleaseInput{CampaignID: sc.campaign.ID, ActorID: uuid.New()}
	_, err := h.service(t, flaky, 0).ReleasePayments(context.Background(), input)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency), "got %v", err)
	var partial *PartialReleaseError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []uuid.UUID{first.ID}, partial.Credited)
	assert.Equal(t, []uuid.UUID{second.ID}, partial.Remaining)

	status, err := h.service(t, nil, 0).ReleaseStatus(context.Background(), sc.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReleasing, status.State)
	assert.Len(t, h.payoutRows(t, sc.campaign.ID), 1)
	firstWallet := h.wallet(t, first.ID)

	receipt, err := h.service(t, nil, 0).ReleasePayments(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, receipt.WalletUpdates, 2)
	assert.True(t, receipt.TotalDistributed.Equal(decimal.NewFromInt(100)))
	assert.True(t, h.wallet(t, first.ID).Equal(firstWallet), "first creator must not be credited twice")
	assert.Len(t, h.payoutRows(t, sc.campaign.ID), 2)

	for _, update := range receipt.WalletUpdates {
		assert.True(t, update.PreviousWallet.Add(update.PayoutAmount).Equal(update.NewWallet))
		assert.True(t, h.wallet(t, update.UserID).Equal(update.NewWallet))
	}
}

// interruptAfterFirstCreator runs a release that credits the lower-id
// creator and fails on the other, leaving the campaign in Releasing.
func interruptAfterFirstCreator(t *testing.T, h *harness, sc scenario, input ReleaseInput) (paid, unpaid models.User, paidVideo models.Video) {
	t.Helper()
	paid, unpaid, paidVideo = sc.creatorA, sc.creatorB, sc.aApproved
	if compareIDs(unpaid.ID, paid.ID) < 0 {
		paid, unpaid, paidVideo = sc.creatorB, sc.creatorA, sc.bApproved
	}
	failures := 1
	flaky := flakyWallets{Repository: h.wallets, failFor: unpaid.ID, failures: &failures}
	_, err := h.service(t, flaky, 0).ReleasePayments(context.Background(), input)
	var partial *PartialReleaseError
	require.ErrorAs(t, err, &partial)
	require.Len(t, h.payoutRows(t, sc.campaign.ID), 1)
	return paid, unpaid, paidVideo
}

func TestReleasePaymentsResumeKeepsSettledAmount(t *testing.T) {
	cases := map[string]func(paid decimal.Decimal) decimal.Decimal{
		"earnings raised":  func(paid decimal.Decimal) decimal.Decimal { return paid.Add(decimal.NewFromInt(1)) },
		"earnings dropped": func(paid decimal.Decimal) decimal.Decimal { return decimal.Zero },
	}
	for name, change := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			sc := seedTwoCreators(t, h)
			input := ReleaseInput{CampaignID: sc.campaign.ID, ActorID: uuid.New()}

			paid, unpaid, paidVideo := interruptAfterFirstCreator(t, h, sc, input)
			paidAmount := paidVideo.Earnings
			paidWallet := h.wallet(t, paid.ID)
			require.NoError(t, h.conn.Model(&models.Video{}).
				Where("id = ?", paidVideo.ID).
				Update("earnings", change(paidAmount)).Error)

			receipt, err := h.service(t, nil, 0).ReleasePayments(context.Background(), input)
			require.NoError(t, err)

			require.Len(t, receipt.WalletUpdates, 2)
			assert.Equal(t, 2, receipt.CreatorCount)
			updates := map[uuid.UUID]models.WalletUpdate{}
			for _, update := range receipt.WalletUpdates {
				updates[update.UserID] = update
			}
			assert.True(t, updates[paid.ID].PayoutAmount.Equal(paidAmount), "got %s", updates[paid.ID].PayoutAmount)
			assert.True(t, updates[paid.ID].NewWallet.Equal(paidWallet))
			assert.True(t, updates[unpaid.ID].PayoutAmount.IsPositive())
			assert.True(t, receipt.TotalDistributed.Equal(decimal.NewFromInt(100)))

			assert.True(t, h.wallet(t, paid.ID).Equal(paidWallet), "settled creator must not be credited again")
			assert.Len(t, h.payoutRows(t, sc.campaign.ID), 2)

			status, err := h.service(t, nil, 0).ReleaseStatus(context.Background(), sc.campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, StateReleased, status.State)
		})
	}
}

func TestReleasePaymentsRecordsAuthorlessVideo(t *testing.T) {
	h := newHarness(t)
	a := dbtest.SeedUser(t, h.conn, "0")
	campaign := dbtest.SeedCampaign(t, h.conn,
		dbtest.Video(&a.ID, enums.VideoStatusApproved, "40"),
		dbtest.Video(nil, enums.VideoStatusApproved, "25"),
	)
	orphan := campaign.Videos[1]

	receipt, err := h.service(t, nil, 0).ReleasePayments(context.Background(), ReleaseInput{
		CampaignID: campaign.ID,
		ActorID:    uuid.New(),
	})
	require.NoError(t, err)
	assert.True(t, receipt.TotalDistributed.Equal(decimal.NewFromInt(40)))
	require.Len(t, receipt.UnpaidVideos, 1)
	assert.Equal(t, orphan.ID, receipt.UnpaidVideos[0].VideoID)
	assert.Equal(t, ReasonMissingAuthor, receipt.UnpaidVideos[0].Reason)
	assert.True(t, receipt.UnpaidVideos[0].Earnings.Equal(decimal.NewFromInt(25)))

	stored, err := h.campaigns.FindByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentReleaseReceipt)
	require.Len(t, stored.PaymentReleaseReceipt.UnpaidVideos, 1)
	assert.Equal(t, ReasonMissingAuthor, stored.PaymentReleaseReceipt.UnpaidVideos[0].Reason)
}

func TestReleasePaymentsRetriesTransientFailure(t *testing.T) {
	h := newHarness(t)
	sc := seedTwoCreators(t, h)
	failures := 2
	flaky := flakyWallets{Repository: h.wallets, failFor: sc.creatorB.ID, failures: &failures}

	receipt, err := h.service(t, flaky, 3).ReleasePayments(context.Background(), ReleaseInput{
		CampaignID: sc.campaign.ID,
		ActorID:    uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, failures)
	assert.Equal(t, 2, receipt.CreatorCount)
	assert.True(t, h.wallet(t, sc.creatorB.ID).Equal(decimal.NewFromInt(65)))
}

func TestReleasePaymentsBlockedOnPending(t *testing.T) {
	h := newHarness(t)
	a := dbtest.SeedUser(t, h.conn, "0")
	campaign := dbtest.SeedCampaign(t, h.conn,
		dbtest.Video(&a.ID, enums.VideoStatusApproved, "40"),
		dbtest.Video(&a.ID, enums.VideoStatusPending, "0"),
	)

	_, err := h.service(t, nil, 0).ReleasePayments(context.Background(), ReleaseInput{
		CampaignID: campaign.ID,
		ActorID:    uuid.New(),
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodePendingReview), "got %v", err)
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, 1, details["pendingCount"])

	assert.True(t, h.wallet(t, a.ID).IsZero())
	assert.Empty(t, h.payoutRows(t, campaign.ID))
	stored, err := h.campaigns.FindByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.False(t, stored.FundsReleased)
}

func TestReleasePaymentsDeniedNeverPays(t *testing.T) {
	h := newHarness(t)
	a := dbtest.SeedUser(t, h.conn, "3")
	campaign := dbtest.SeedCampaign(t, h.conn,
		dbtest.Video(&a.ID, enums.VideoStatusDenied, "99.5"),
	)

	receipt, err := h.service(t, nil, 0).ReleasePayments(context.Background(), ReleaseInput{
		CampaignID: campaign.ID,
		ActorID:    uuid.New(),
	})
	require.NoError(t, err)
	assert.Empty(t, receipt.WalletUpdates)
	assert.True(t, receipt.TotalDistributed.IsZero())
	assert.Len(t, receipt.UnpaidVideos, 1)
	assert.True(t, h.wallet(t, a.ID).Equal(decimal.NewFromInt(3)))
}

func TestReleasePaymentsNoVideos(t *testing.T) {
	h := newHarness(t)
	campaign := dbtest.SeedCampaign(t, h.conn)

	receipt, err := h.service(t, nil, 0).ReleasePayments(context.Background(), ReleaseInput{
		CampaignID: campaign.ID,
		ActorID:    uuid.New(),
	})
	require.NoError(t, err)
	assert.Empty(t, receipt.WalletUpdates)
	assert.Empty(t, receipt.UnpaidVideos)
	assert.True(t, receipt.TotalDistributed.IsZero())

	stored, err := h.campaigns.FindByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.True(t, stored.FundsReleased)
	assert.NotNil(t, stored.PaymentReleaseReceipt)
}

func TestReleasePaymentsNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.service(t, nil, 0).ReleasePayments(context.Background(), ReleaseInput{
		CampaignID: uuid.New(),
		ActorID:    uuid.New(),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestReleasePaymentsCreatorWithoutWallet(t *testing.T) {
	h := newHarness(t)
	ghost := uuid.New()
	campaign := dbtest.SeedCampaign(t, h.conn,
		dbtest.Video(&ghost, enums.VideoStatusApproved, "12"),
	)

	_, err := h.service(t, nil, 3).ReleasePayments(context.Background(), ReleaseInput{
		CampaignID: campaign.ID,
		ActorID:    uuid.New(),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	stored, err := h.campaigns.FindByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.False(t, stored.FundsReleased)
}

func TestReleasePaymentsIgnoresAdvisoryUsers(t *testing.T) {
	h := newHarness(t)
	sc := seedTwoCreators(t, h)
	stranger := dbtest.SeedUser(t, h.conn, "0")

	receipt, err := h.service(t, nil, 0).ReleasePayments(context.Background(), ReleaseInput{
		CampaignID:      sc.campaign.ID,
		ActorID:         uuid.New(),
		AdvisoryUserIDs: []uuid.UUID{stranger.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.CreatorCount)
	assert.True(t, h.wallet(t, stranger.ID).IsZero())
}

func TestReleasePaymentsValidatesInput(t *testing.T) {
	h := newHarness(t)
	svc := h.service(t, nil, 0)

	_, err := svc.ReleasePayments(context.Background(), ReleaseInput{ActorID: uuid.New()})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	_, err = svc.ReleasePayments(context.Background(), ReleaseInput{CampaignID: uuid.New()})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestReleaseStatus(t *testing.T) {
	h := newHarness(t)
	sc := seedTwoCreators(t, h)
	svc := h.service(t, nil, 0)

	before, err := svc.ReleaseStatus(context.Background(), sc.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, StateEligibleForRelease, before.State)
	require.NotNil(t, before.Preview)
	assert.True(t, before.Preview.TotalPayout.Equal(decimal.NewFromInt(100)))
	assert.Nil(t, before.Receipt)

	_, err = svc.ReleasePayments(context.Background(), ReleaseInput{CampaignID: sc.campaign.ID, ActorID: uuid.New()})
	require.NoError(t, err)

	after, err := svc.ReleaseStatus(context.Background(), sc.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReleased, after.State)
	assert.Nil(t, after.Preview)
	require.NotNil(t, after.Receipt)
	assert.Len(t, after.Receipt.WalletUpdates, 2)

	_, err = svc.ReleaseStatus(context.Background(), uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	h := newHarness(t)
	_, err := NewService(nil, h.campaigns, h.wallets, h.ledger, outbox.NoopEmitter{}, config.PayoutsConfig{CreditRetryBase: time.Millisecond}, nil, nil)
	assert.Error(t, err)
	_, err = NewService(h.client, h.campaigns, h.wallets, h.ledger, outbox.NoopEmitter{}, config.PayoutsConfig{}, nil, nil)
	assert.Error(t, err)
}
