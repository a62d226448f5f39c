package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/pagination"
)

// Service appends and reads ledger transactions.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Append(ctx context.Context, input AppendInput) (*models.Transaction, error)
	FindCompletedPayout(ctx context.Context, campaignID, creatorID uuid.UUID) (*models.Transaction, error)
	FindDepositByReference(ctx context.Context, campaignID uuid.UUID, reference string) (*models.Transaction, error)
	FindWithdrawalByReference(ctx context.Context, userID uuid.UUID, reference string) (*models.Transaction, error)
	HasCompletedPayouts(ctx context.Context, campaignID uuid.UUID) (bool, error)
	ListCompletedPayouts(ctx context.Context, campaignID uuid.UUID) ([]models.Transaction, error)
	SumByCampaign(ctx context.Context, campaignID uuid.UUID, txnType enums.TransactionType) (decimal.Decimal, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (TransactionPage, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, params pagination.Params) (TransactionPage, error)
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

// Append validates the sign convention and required references, then
// inserts the row. Status defaults to completed.
func (s *service) Append(ctx context.Context, input AppendInput) (*models.Transaction, error) {
	if input.Status == "" {
		input.Status = enums.TransactionStatusCompleted
	}
	if err := validateAppend(input); err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		Type:             input.Type,
		Status:           input.Status,
		Amount:           input.Amount,
		ActorID:          input.ActorID,
		TargetUserID:     input.TargetUserID,
		CampaignID:       input.CampaignID,
		PaymentMethod:    input.PaymentMethod,
		PaymentReference: input.PaymentReference,
	}
	if input.PreviousBalance != nil {
		txn.PreviousBalance = decimal.NewNullDecimal(*input.PreviousBalance)
	}
	if input.ResultingBalance != nil {
		txn.ResultingBalance = decimal.NewNullDecimal(*input.ResultingBalance)
	}

	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func validateAppend(input AppendInput) error {
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", input.Type))
	}
	if !input.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction status %q", input.Status))
	}
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	if input.Type.IsDebit() {
		if !input.Amount.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, "withdrawal amount must be negative")
		}
	} else if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero")
	}

	switch input.Type {
	case enums.TransactionTypeDeposit:
		if isNil(input.CampaignID) {
			return pkgerrors.New(pkgerrors.CodeValidation, "deposit requires a campaign")
		}
		if input.TargetUserID != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "deposit cannot target a user")
		}
		if input.PaymentMethod == nil || !input.PaymentMethod.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, "deposit requires a valid payment method")
		}
	case enums.TransactionTypeCreatorPayout:
		if isNil(input.CampaignID) || isNil(input.TargetUserID) {
			return pkgerrors.New(pkgerrors.CodeValidation, "payout requires campaign and creator")
		}
		if err := validateBalances(input); err != nil {
			return err
		}
	case enums.TransactionTypeWithdrawal:
		if isNil(input.TargetUserID) {
			return pkgerrors.New(pkgerrors.CodeValidation, "withdrawal requires a user")
		}
		if err := validateBalances(input); err != nil {
			return err
		}
	}
	return nil
}

func validateBalances(input AppendInput) error {
	if input.PreviousBalance == nil || input.ResultingBalance == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "balance snapshot required")
	}
	if !input.PreviousBalance.Add(input.Amount).Equal(*input.ResultingBalance) {
		return pkgerrors.New(pkgerrors.CodeValidation, "balance snapshot does not match amount")
	}
	if input.ResultingBalance.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "resulting balance cannot be negative")
	}
	return nil
}

func isNil(id *uuid.UUID) bool {
	return id == nil || *id == uuid.Nil
}

func (s *service) FindCompletedPayout(ctx context.Context, campaignID, creatorID uuid.UUID) (*models.Transaction, error) {
	return s.repo.FindCompletedPayout(ctx, campaignID, creatorID)
}

func (s *service) FindDepositByReference(ctx context.Context, campaignID uuid.UUID, reference string) (*models.Transaction, error) {
	if reference == "" {
		return nil, nil
	}
	return s.repo.FindDepositByReference(ctx, campaignID, reference)
}

func (s *service) FindWithdrawalByReference(ctx context.Context, userID uuid.UUID, reference string) (*models.Transaction, error) {
	if reference == "" {
		return nil, nil
	}
	return s.repo.FindWithdrawalByReference(ctx, userID, reference)
}

func (s *service) HasCompletedPayouts(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	count, err := s.repo.CountCompletedPayouts(ctx, campaignID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *service) ListCompletedPayouts(ctx context.Context, campaignID uuid.UUID) ([]models.Transaction, error) {
	return s.repo.ListCompletedPayouts(ctx, campaignID)
}

func (s *service) SumByCampaign(ctx context.Context, campaignID uuid.UUID, txnType enums.TransactionType) (decimal.Decimal, error) {
	if !txnType.IsValid() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", txnType))
	}
	return s.repo.SumByCampaign(ctx, campaignID, txnType)
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (TransactionPage, error) {
	if err := validateCursor(params); err != nil {
		return TransactionPage{}, err
	}
	rows, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return TransactionPage{}, listError(err)
	}
	return toPage(rows, params.Limit), nil
}

func (s *service) ListByCampaign(ctx context.Context, campaignID uuid.UUID, params pagination.Params) (TransactionPage, error) {
	if err := validateCursor(params); err != nil {
		return TransactionPage{}, err
	}
	rows, err := s.repo.ListByCampaign(ctx, campaignID, params)
	if err != nil {
		return TransactionPage{}, listError(err)
	}
	return toPage(rows, params.Limit), nil
}

func validateCursor(params pagination.Params) error {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return nil
}

func listError(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
}
