// Package auth mints and verifies the signed session credential issued
// after a successful magic-link redemption. The credential carries only
// the durable user identifier; anything that matters for authorization is
// re-read from the user record at request time.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aformulationoftruth/server/internal/common"
)

// Claims includes the registered claims plus the user identifier.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// GenerateSessionToken signs an HS256 token binding userID for the given
// lifetime.
func GenerateSessionToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// UserIDFromToken verifies signature and expiry and returns the bound user
// ID. Expired credentials map to common.ErrSessionExpired, everything else
// invalid to common.ErrUnauthorized.
func UserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrSessionExpired
		}
		return "", common.ErrUnauthorized
	}

	if !token.Valid || claims.UserID == "" {
		return "", common.ErrUnauthorized
	}

	return claims.UserID, nil
}
