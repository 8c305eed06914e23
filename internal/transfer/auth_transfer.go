package transfer

import "github.com/golang-jwt/jwt/v5"

type CustomClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// OAuthState is carried through the provider consent page and signed so the
// callback can trust the user and platform it names.
type OAuthState struct {
	UserID   int64  `json:"user_id"`
	Platform string `json:"platform"`
	jwt.RegisteredClaims
}
