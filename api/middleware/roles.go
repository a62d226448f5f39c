package middleware

import (
	"net/http"

	"github.com/angelmondragon/creatorpay-backend/api/responses"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

// RequireFundsRole admits only roles allowed to release payouts or record deposits.
func RequireFundsRole(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enums.MemberRole(RoleFromContext(r.Context())).CanMoveFunds() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "operator or admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
