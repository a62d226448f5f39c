package deposits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/internal/ledger"
	"github.com/angelmondragon/creatorpay-backend/pkg/db"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	"github.com/angelmondragon/creatorpay-backend/pkg/metrics"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox/payloads"
)

const maxReferenceLength = 255

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type campaignLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service records campaign funding and reports what is left of it.
type Service interface {
	RecordDeposit(ctx context.Context, input DepositInput) (*DepositResult, error)
	FundsAvailable(ctx context.Context, campaignID uuid.UUID) (*FundsView, error)
}

// DepositInput is one funding request. Reference is optional; when set it
// makes retries of the same deposit safe.
type DepositInput struct {
	ActorID    uuid.UUID
	ActorRole  enums.MemberRole
	CampaignID uuid.UUID
	Amount     decimal.Decimal
	Method     enums.PaymentMethod
	Reference  string
}

// DepositResult reports the ledger row. Duplicate is set when the reference
// matched an earlier deposit and nothing new was written.
type DepositResult struct {
	TransactionID uuid.UUID `json:"transactionId"`
	Duplicate     bool      `json:"duplicate"`
}

// FundsView is derived from the ledger on every read.
type FundsView struct {
	CampaignID uuid.UUID       `json:"campaignId"`
	Deposited  decimal.Decimal `json:"deposited"`
	PaidOut    decimal.Decimal `json:"paidOut"`
	Remaining  decimal.Decimal `json:"remaining"`
}

type service struct {
	tx        txRunner
	campaigns campaignLookup
	ledger    ledger.Service
	outbox    outboxPublisher
	metrics   *metrics.PayoutMetrics
	logg      *logger.Logger
}

// NewService builds the deposit recorder.
func NewService(tx txRunner, campaigns campaignLookup, ledgerSvc ledger.Service, publisher outboxPublisher, payoutMetrics *metrics.PayoutMetrics, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if campaigns == nil {
		return nil, fmt.Errorf("campaign lookup required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:        tx,
		campaigns: campaigns,
		ledger:    ledgerSvc,
		outbox:    publisher,
		metrics:   payoutMetrics,
		logg:      logg,
	}, nil
}

func (s *service) RecordDeposit(ctx context.Context, input DepositInput) (*DepositResult, error) {
	input.Reference = strings.TrimSpace(input.Reference)
	if err := validateDeposit(input); err != nil {
		return nil, err
	}

	exists, err := s.campaigns.Exists(ctx, input.CampaignID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign does not exist").
			WithDetails(map[string]any{"campaignId": input.CampaignID})
	}

	ctx = s.logg.WithCampaignID(ctx, input.CampaignID.String())
	var result *DepositResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerSvc := s.ledger.WithTx(tx)
		existing, err := ledgerSvc.FindDepositByReference(ctx, input.CampaignID, input.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			result = &DepositResult{TransactionID: existing.ID, Duplicate: true}
			return nil
		}

		campaignID := input.CampaignID
		method := input.Method
		txn, err := ledgerSvc.Append(ctx, ledger.AppendInput{
			Type:             enums.TransactionTypeDeposit,
			Status:           enums.TransactionStatusCompleted,
			Amount:           input.Amount,
			ActorID:          input.ActorID,
			CampaignID:       &campaignID,
			PaymentMethod:    &method,
			PaymentReference: input.Reference,
		})
		if err != nil {
			return err
		}
		result = &DepositResult{TransactionID: txn.ID}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCampaignDepositRecorded,
			AggregateType: enums.AggregateCampaign,
			AggregateID:   campaignID,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: input.ActorRole.String()},
			Data: payloads.CampaignDepositRecordedEvent{
				CampaignID:       campaignID,
				TransactionID:    txn.ID,
				Amount:           input.Amount,
				PaymentMethod:    method,
				PaymentReference: input.Reference,
			},
		})
	})
	if err != nil && db.IsUniqueViolation(err, "ux_transactions_deposit_reference") {
		// a concurrent retry with the same reference committed first
		return s.existingDeposit(ctx, input)
	}
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record deposit")
	}

	if result.Duplicate {
		s.logg.Info(s.logg.WithField(ctx, "transaction_id", result.TransactionID.String()), "deposits.record.duplicate")
	} else {
		s.metrics.ObserveDeposit(input.Method.String())
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"transaction_id": result.TransactionID.String(),
			"amount":         input.Amount.String(),
			"method":         input.Method,
		}), "deposits.record.complete")
	}
	return result, nil
}

func (s *service) existingDeposit(ctx context.Context, input DepositInput) (*DepositResult, error) {
	existing, err := s.ledger.FindDepositByReference(ctx, input.CampaignID, input.Reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deposit")
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "deposit reference conflict")
	}
	return &DepositResult{TransactionID: existing.ID, Duplicate: true}, nil
}

func validateDeposit(input DepositInput) error {
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero").
			WithDetails(map[string]any{"amount": input.Amount})
	}
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	if input.CampaignID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}
	if !input.Method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.Method))
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount has more than two decimal places")
	}
	if len(input.Reference) > maxReferenceLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference too long")
	}
	return nil
}

func (s *service) FundsAvailable(ctx context.Context, campaignID uuid.UUID) (*FundsView, error) {
	if campaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}
	exists, err := s.campaigns.Exists(ctx, campaignID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
	}

	deposited, err := s.ledger.SumByCampaign(ctx, campaignID, enums.TransactionTypeDeposit)
	if err != nil {
		return nil, sumError(err)
	}
	paidOut, err := s.ledger.SumByCampaign(ctx, campaignID, enums.TransactionTypeCreatorPayout)
	if err != nil {
		return nil, sumError(err)
	}
	return &FundsView{
		CampaignID: campaignID,
		Deposited:  deposited,
		PaidOut:    paidOut,
		Remaining:  deposited.Sub(paidOut),
	}, nil
}

func sumError(err error) error {
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger")
}
