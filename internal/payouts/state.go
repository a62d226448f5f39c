package payouts

import (
	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
)

// State is the release lifecycle position of a campaign, always derived
// from an authoritative read rather than stored.
type State string

const (
	// StateActive is the lifecycle root. DeriveState reports the more
	// specific Blocked or EligibleForRelease instead.
	StateActive             State = "active"
	StateBlocked            State = "blocked"
	StateEligibleForRelease State = "eligible_for_release"
	StateReleasing          State = "releasing"
	StateReleased           State = "released"
)

var transitions = map[State][]State{
	StateActive:             {StateBlocked, StateEligibleForRelease},
	StateBlocked:            {StateEligibleForRelease},
	StateEligibleForRelease: {StateBlocked, StateReleasing},
	StateReleasing:          {StateReleasing, StateReleased},
}

// DeriveState maps a freshly loaded campaign to its state. hasPayouts
// reports whether any completed payout transaction exists for it.
func DeriveState(campaign *models.Campaign, hasPayouts bool) State {
	if campaign.FundsReleased {
		return StateReleased
	}
	for _, video := range campaign.Videos {
		if video.Status == enums.VideoStatusPending {
			return StateBlocked
		}
	}
	if hasPayouts {
		return StateReleasing
	}
	return StateEligibleForRelease
}

// CanTransition reports whether the lifecycle allows moving from one state
// to the other. Released is terminal.
func CanTransition(from, to State) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
