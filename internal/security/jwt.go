package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserClaims are the JWT claims carried by user session tokens.
type UserClaims struct {
	UserID uint64 `json:"uid"`
	jwt.RegisteredClaims
}

// SignUserToken issues a signed session token for the user.
func SignUserToken(secret string, userID uint64, expiry time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("security: missing jwt secret")
	}
	if userID == 0 {
		return "", errors.New("security: missing user id")
	}
	if expiry <= 0 {
		return "", errors.New("security: invalid expiry")
	}

	now := time.Now().UTC()
	claims := UserClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("security: sign token: %w", errSign)
	}
	return signed, nil
}

// ParseUserToken validates a session token and returns its claims.
func ParseUserToken(secret, tokenString string) (*UserClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("security: missing jwt secret")
	}

	claims := &UserClaims{}
	token, errParse := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("security: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if errParse != nil {
		return nil, fmt.Errorf("security: parse token: %w", errParse)
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, errors.New("security: invalid token")
	}
	return claims, nil
}
