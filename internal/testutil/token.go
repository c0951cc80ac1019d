package testutil

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const TestSecret = "test-secret-key-for-testing-only"

// SignAccessToken issues an HS256 token shaped like the accounts service's.
func SignAccessToken(secret string, userID uint, role string, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		panic(err)
	}
	return signed
}
