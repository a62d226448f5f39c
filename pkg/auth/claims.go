package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.MemberRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to dashboard users.
type AccessTokenClaims struct {
	UserID uuid.UUID        `json:"user_id"`
	Role   enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}
