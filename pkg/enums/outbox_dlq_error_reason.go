package enums

// OutboxDLQErrorReason explains why an outbox row was parked in the DLQ.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

// IsValid reports whether the reason is one the DLQ table accepts.
func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
