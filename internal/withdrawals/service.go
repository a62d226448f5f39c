package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/internal/ledger"
	"github.com/angelmondragon/creatorpay-backend/internal/wallets"
	"github.com/angelmondragon/creatorpay-backend/pkg/db"
	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	"github.com/angelmondragon/creatorpay-backend/pkg/metrics"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service debits creator wallets. Sending the money out is left to the
// payment rail consuming wallet_withdrawal_requested.
type Service interface {
	RequestWithdrawal(ctx context.Context, input WithdrawalInput) (*WithdrawalResult, error)
}

type WithdrawalInput struct {
	UserID    uuid.UUID
	ActorID   uuid.UUID
	ActorRole enums.MemberRole
	Amount    decimal.Decimal
	Reference string
}

// WithdrawalResult reports the debit. Duplicate is set when the reference
// matched an earlier withdrawal and no money moved.
type WithdrawalResult struct {
	TransactionID   uuid.UUID       `json:"transactionId"`
	PreviousBalance decimal.Decimal `json:"previousBalance"`
	NewBalance      decimal.Decimal `json:"newBalance"`
	Duplicate       bool            `json:"duplicate"`
}

const withdrawalReferenceIndex = "ux_transactions_withdrawal_reference"

type service struct {
	tx      txRunner
	wallets wallets.Repository
	ledger  ledger.Service
	outbox  outboxPublisher
	metrics *metrics.PayoutMetrics
	logg    *logger.Logger
}

func NewService(tx txRunner, walletRepo wallets.Repository, ledgerSvc ledger.Service, publisher outboxPublisher, payoutMetrics *metrics.PayoutMetrics, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
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
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:      tx,
		wallets: walletRepo,
		ledger:  ledgerSvc,
		outbox:  publisher,
		metrics: payoutMetrics,
		logg:    logg,
	}, nil
}

func (s *service) RequestWithdrawal(ctx context.Context, input WithdrawalInput) (*WithdrawalResult, error) {
	if !input.Amount.IsPositive() || !input.Amount.Equal(input.Amount.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero").
			WithDetails(map[string]any{"amount": input.Amount})
	}
	if input.UserID == uuid.Nil || input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and actor id required")
	}
	input.Reference = strings.TrimSpace(input.Reference)

	ctx = s.logg.WithUserID(ctx, input.UserID.String())
	var result *WithdrawalResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		walletRepo := s.wallets.WithTx(tx)
		user, err := walletRepo.LockForUpdate(ctx, input.UserID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		if err != nil {
			return err
		}

		existing, err := s.ledger.WithTx(tx).FindWithdrawalByReference(ctx, user.ID, input.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			result, err = duplicateResult(existing, input)
			return err
		}

		previous := user.Wallet
		if previous.LessThan(input.Amount) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient wallet balance").
				WithDetails(map[string]any{"balance": previous, "requested": input.Amount})
		}
		next := previous.Sub(input.Amount)
		if err := walletRepo.UpdateWallet(ctx, user.ID, next); err != nil {
			return err
		}

		userID := user.ID
		debit := input.Amount.Neg()
		txn, err := s.ledger.WithTx(tx).Append(ctx, ledger.AppendInput{
			Type:             enums.TransactionTypeWithdrawal,
			Status:           enums.TransactionStatusCompleted,
			Amount:           debit,
			ActorID:          input.ActorID,
			TargetUserID:     &userID,
			PaymentReference: input.Reference,
			PreviousBalance:  &previous,
			ResultingBalance: &next,
		})
		if err != nil {
			return err
		}
		result = &WithdrawalResult{TransactionID: txn.ID, PreviousBalance: previous, NewBalance: next}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletWithdrawalRequested,
			AggregateType: enums.AggregateUser,
			AggregateID:   userID,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: input.ActorRole.String()},
			Data: payloads.WalletWithdrawalRequestedEvent{
				UserID:           userID,
				TransactionID:    txn.ID,
				Amount:           input.Amount,
				PreviousBalance:  previous,
				NewBalance:       next,
				PaymentReference: input.Reference,
			},
		})
	})
	if err != nil && db.IsUniqueViolation(err, withdrawalReferenceIndex) {
		// a concurrent retry with the same reference committed first
		return s.existingWithdrawal(ctx, input)
	}
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request withdrawal")
	}

	if result.Duplicate {
		s.logg.Info(s.logg.WithField(ctx, "transaction_id", result.TransactionID.String()), "withdrawals.request.duplicate")
		return result, nil
	}
	s.metrics.ObserveWithdrawal(input.Amount)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transaction_id": result.TransactionID.String(),
		"amount":         input.Amount.String(),
	}), "withdrawals.request.complete")
	return result, nil
}

func (s *service) existingWithdrawal(ctx context.Context, input WithdrawalInput) (*WithdrawalResult, error) {
	existing, err := s.ledger.FindWithdrawalByReference(ctx, input.UserID, input.Reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "withdrawal reference conflict")
	}
	return duplicateResult(existing, input)
}

// duplicateResult replays an earlier withdrawal. Reusing a reference for a
// different amount is a conflict, not a replay.
func duplicateResult(existing *models.Transaction, input WithdrawalInput) (*WithdrawalResult, error) {
	if !existing.Amount.Neg().Equal(input.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "withdrawal reference already used for a different amount").
			WithDetails(map[string]any{"reference": input.Reference, "transactionId": existing.ID})
	}
	return &WithdrawalResult{
		TransactionID:   existing.ID,
		PreviousBalance: existing.PreviousBalance.Decimal,
		NewBalance:      existing.ResultingBalance.Decimal,
		Duplicate:       true,
	}, nil
}
