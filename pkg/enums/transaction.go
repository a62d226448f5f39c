package enums

import "fmt"

// TransactionType maps to the transaction_type_enum enum in Postgres.
type TransactionType string

const (
	TransactionTypeDeposit       TransactionType = "deposit"
	TransactionTypeCreatorPayout TransactionType = "creator_payout"
	TransactionTypeWithdrawal    TransactionType = "withdrawal"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeDeposit,
	TransactionTypeCreatorPayout,
	TransactionTypeWithdrawal,
}

// IsValid reports whether the value matches the canonical transaction type enum.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsDebit reports whether amounts of this type are recorded as negative values.
func (t TransactionType) IsDebit() bool {
	return t == TransactionTypeWithdrawal
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}

// TransactionStatus maps to the transaction_status_enum enum in Postgres.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusCompleted,
	TransactionStatusFailed,
}

// IsValid reports whether the value matches the canonical transaction status enum.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
