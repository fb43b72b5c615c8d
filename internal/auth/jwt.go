package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token fields this service cares about. The backend
// that issues sessions lives outside this repository; here tokens are
// only decoded to attribute activity to a user.
type Claims struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed session tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Parse validates the token signature and returns its claims.
func (v *Verifier) Parse(tokenString string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// VerifyToken decodes a token into a user label for logging. Implements
// progresshub.IdentityVerifier.
func (v *Verifier) VerifyToken(tokenString string) (string, error) {
	claims, err := v.Parse(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Username != "" {
		return claims.Username, nil
	}
	if claims.UserID != 0 {
		return fmt.Sprintf("user-%d", claims.UserID), nil
	}
	return claims.Subject, nil
}
