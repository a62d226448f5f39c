package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/creatorpay-backend/api/responses"
	"github.com/angelmondragon/creatorpay-backend/api/validators"
	"github.com/angelmondragon/creatorpay-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
	"github.com/angelmondragon/creatorpay-backend/pkg/pagination"
)

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

// ListCampaignTransactions pages through deposits and payouts of a campaign.
func ListCampaignTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		campaignID, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListByCampaign(r.Context(), campaignID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// ListUserTransactions pages through a user's wallet history. Creators can
// only read their own.
func ListUserTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		actorID, role, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if userID != actorID && !role.CanMoveFunds() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "cannot read another user's transactions"))
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListByUser(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
