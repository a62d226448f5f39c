package enums

// NotificationType maps to the notification_type_enum enum in Postgres.
type NotificationType string

const (
	NotificationTypePayout     NotificationType = "payout"
	NotificationTypeWithdrawal NotificationType = "withdrawal"
)

// IsValid reports whether the value is a known notification type.
func (n NotificationType) IsValid() bool {
	return n == NotificationTypePayout || n == NotificationTypeWithdrawal
}
