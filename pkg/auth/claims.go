package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID int64
	Role   enums.MemberRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients. Token
// issuance lives in the identity service; this package only needs to mint
// tokens for tests and local tooling.
type AccessTokenClaims struct {
	UserID int64            `json:"user_id"`
	Role   enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}
