package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorpay-backend/api/responses"
	"github.com/angelmondragon/creatorpay-backend/api/validators"
	"github.com/angelmondragon/creatorpay-backend/internal/deposits"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

const maxPaymentReferenceLength = 255

type recordDepositRequest struct {
	ActorID          string          `json:"actorId" validate:"required,uuid"`
	CampaignID       string          `json:"campaignId" validate:"required,uuid"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentMethod    string          `json:"paymentMethod" validate:"required"`
	PaymentReference string          `json:"paymentReference" validate:"omitempty,max=255"`
}

type recordDepositResponse struct {
	TransactionID uuid.UUID `json:"transactionId"`
}

// RecordDeposit appends a funding deposit to a campaign's ledger.
func RecordDeposit(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposits service unavailable"))
			return
		}
		actorID, role, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var req recordDepositRequest
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
		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid paymentMethod"))
			return
		}

		result, err := svc.RecordDeposit(r.Context(), deposits.DepositInput{
			ActorID:    actorID,
			ActorRole:  role,
			CampaignID: campaignID,
			Amount:     req.Amount,
			Method:     method,
			Reference:  validators.SanitizeString(req.PaymentReference, maxPaymentReferenceLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, recordDepositResponse{TransactionID: result.TransactionID})
	}
}

// CampaignFunds returns deposited, paid out and remaining totals.
func CampaignFunds(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposits service unavailable"))
			return
		}
		campaignID, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.FundsAvailable(r.Context(), campaignID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
