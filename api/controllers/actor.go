package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpay-backend/api/middleware"
	"github.com/angelmondragon/creatorpay-backend/api/responses"
	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpay-backend/pkg/errors"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

// requireActor writes 401 and returns false when the request carries no
// authenticated caller.
func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, enums.MemberRole, bool) {
	actorID, role, ok := middleware.Actor(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return uuid.Nil, "", false
	}
	return actorID, role, true
}

// matchActor enforces that a body actorId names the token subject.
func matchActor(tokenActor uuid.UUID, bodyActor string) error {
	parsed, err := uuid.Parse(bodyActor)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actorId")
	}
	if parsed != tokenActor {
		return pkgerrors.New(pkgerrors.CodeForbidden, "actorId does not match authenticated user")
	}
	return nil
}

func parseUUIDs(field string, values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, value := range values {
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field).WithDetails(map[string]any{"field": field, "value": value})
		}
		ids = append(ids, id)
	}
	return ids, nil
}
