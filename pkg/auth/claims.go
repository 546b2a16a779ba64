package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT presented by callers.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate implements jwt.ClaimsValidator and runs after the registered
// claims are checked. The system role is reserved for background jobs.
func (c *AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return ErrMissingUser
	}
	if !c.Role.IsValid() || c.Role == enums.ActorRoleSystem {
		return ErrInvalidRole
	}
	if c.Subject != "" && c.Subject != c.UserID.String() {
		return ErrSubjectMismatch
	}
	return nil
}
