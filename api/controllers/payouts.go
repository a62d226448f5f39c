package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpay-backend/api/responses"
	"github.com/angelmondragon/creatorpay-backend/api/validators"
	"github.com/angelmondragon/creatorpay-backend/internal/payouts"
	"github.com/angelmondragon/creatorpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

const releaseSuccessMessage = "Payments released successfully"

type releasePaymentsRequest struct {
	CampaignID string   `json:"campaignId" validate:"required,uuid"`
	UserIDs    []string `json:"userIds" validate:"omitempty,dive,uuid"`
	ActorID    string   `json:"actorId" validate:"required,uuid"`
}

type releasePaymentsResponse struct {
	Message               string                        `json:"message"`
	PaymentReleaseReceipt *models.PaymentReleaseReceipt `json:"paymentReleaseReceipt"`
}

// ReleaseCampaignPayments credits every creator of a finished campaign once
// and returns the release receipt.
func ReleaseCampaignPayments(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actorID, role, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var req releasePaymentsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := matchActor(actorID, req.ActorID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		campaignID, err := uuid.Parse(req.CampaignID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid campaignId"))
			return
		}
		advisory, err := parseUUIDs("userIds", req.UserIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		receipt, err := svc.ReleasePayments(r.Context(), payouts.ReleaseInput{
			CampaignID:      campaignID,
			ActorID:         actorID,
			ActorRole:       role,
			AdvisoryUserIDs: advisory,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, releasePaymentsResponse{
			Message:               releaseSuccessMessage,
			PaymentReleaseReceipt: receipt,
		})
	}
}

// CampaignReleaseStatus reports whether a campaign is blocked, ready or
// released, with a payout preview while unreleased.
func CampaignReleaseStatus(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		campaignID, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.ReleaseStatus(r.Context(), campaignID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
