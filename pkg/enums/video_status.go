package enums

import "fmt"

// VideoStatus maps to the video_status_enum enum in Postgres.
type VideoStatus string

const (
	VideoStatusPending  VideoStatus = "pending"
	VideoStatusApproved VideoStatus = "approved"
	VideoStatusDenied   VideoStatus = "denied"
)

var validVideoStatuses = []VideoStatus{
	VideoStatusPending,
	VideoStatusApproved,
	VideoStatusDenied,
}

// IsValid reports whether the value matches the canonical video status enum.
func (s VideoStatus) IsValid() bool {
	for _, candidate := range validVideoStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseVideoStatus converts raw input into VideoStatus.
func ParseVideoStatus(value string) (VideoStatus, error) {
	for _, candidate := range validVideoStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid video status %q", value)
}
