package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateCampaign OutboxAggregateType = "campaign"
	AggregateUser     OutboxAggregateType = "user"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCampaign,
	AggregateUser,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventCreatorPayoutCredited     OutboxEventType = "creator_payout_credited"
	EventCampaignPaymentsReleased  OutboxEventType = "campaign_payments_released"
	EventCampaignDepositRecorded   OutboxEventType = "campaign_deposit_recorded"
	EventWalletWithdrawalRequested OutboxEventType = "wallet_withdrawal_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCreatorPayoutCredited,
	EventCampaignPaymentsReleased,
	EventCampaignDepositRecorded,
	EventWalletWithdrawalRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
