package utils

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maheshrc27/nextpost/internal/transfer"
)

const issuer = "nextpost"

func GenerateToken(secretKey string, userID int64, tokenDuration time.Duration) (string, error) {
	claims := transfer.CustomClaims{
		UserID:           userID,
		RegisteredClaims: registeredClaims(tokenDuration),
	}
	return sign(secretKey, claims)
}

func ValidateToken(secretKey, tokenString string) (*transfer.CustomClaims, error) {
	claims := &transfer.CustomClaims{}
	if err := parse(secretKey, tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// GenerateStateToken signs the OAuth state for a platform connection. Each
// state carries a random id so two consent pages never share a value.
func GenerateStateToken(secretKey string, userID int64, platform string, tokenDuration time.Duration) (string, error) {
	nonce, err := GenerateRandomKey(16)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	claims := transfer.OAuthState{
		UserID:           userID,
		Platform:         platform,
		RegisteredClaims: registeredClaims(tokenDuration),
	}
	claims.ID = nonce
	return sign(secretKey, claims)
}

func ValidateStateToken(secretKey, tokenString string) (*transfer.OAuthState, error) {
	claims := &transfer.OAuthState{}
	if err := parse(secretKey, tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func registeredClaims(d time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    issuer,
	}
}

func sign(secretKey string, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(secretKey))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return signedToken, nil
}

func parse(secretKey, tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(secretKey), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}
