package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any credential this service cannot
// accept: bad signature, wrong algorithm, expired, or missing identity.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the identity contract with the platform's auth service: the
// token carries who the staff member is and their dispatch role.
type Claims struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens issued by the auth service.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier around the shared HMAC secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the embedded identity.
func (v *Verifier) Verify(tokenString string) (Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v: %w", token.Header["alg"], ErrInvalidToken)
		}
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%v: %w", err, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}
