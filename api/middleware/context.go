package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// Actor returns the authenticated caller. ok is false when the context was
// not populated by Auth.
func Actor(ctx context.Context) (uuid.UUID, enums.MemberRole, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, "", false
	}
	role := enums.MemberRole(RoleFromContext(ctx))
	if !role.IsValid() {
		return uuid.Nil, "", false
	}
	return id, role, true
}

// WithActor injects the caller identity into the context.
func WithActor(ctx context.Context, userID uuid.UUID, role enums.MemberRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID.String())
	return context.WithValue(ctx, ctxRole, string(role))
}
