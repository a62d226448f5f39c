package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorpay-backend/api/responses"
	"github.com/angelmondragon/creatorpay-backend/api/validators"
	"github.com/angelmondragon/creatorpay-backend/internal/withdrawals"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

type requestWithdrawalRequest struct {
	UserID    string          `json:"userId" validate:"required,uuid"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"omitempty,max=255"`
}

// RequestWithdrawal debits a creator wallet. Creators may only withdraw from
// their own wallet; operators and admins may act for anyone.
func RequestWithdrawal(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "withdrawals service unavailable"))
			return
		}
		actorID, role, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var req requestWithdrawalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid userId"))
			return
		}
		if userID != actorID && !role.CanMoveFunds() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "cannot withdraw from another user's wallet"))
			return
		}

		result, err := svc.RequestWithdrawal(r.Context(), withdrawals.WithdrawalInput{
			UserID:    userID,
			ActorID:   actorID,
			ActorRole: role,
			Amount:    req.Amount,
			Reference: validators.SanitizeString(req.Reference, maxPaymentReferenceLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
