package access

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/smukkama/pvsite-server/internal/apperr"
	"github.com/smukkama/pvsite-server/pkg/config"
)

var (
	errNoEmail  = errors.New("email claim missing or empty")
	errNoSecret = errors.New("signing secret is empty")
)

// Identity is the authenticated caller
type Identity struct {
	Email string
}

// IdentityFromClaims extracts the caller identity from decoded token claims
func IdentityFromClaims(claims map[string]any, emailClaim string) (Identity, error) {
	if emailClaim == "" {
		emailClaim = config.DefaultEmailClaim
	}

	email, _ := claims[emailClaim].(string)
	email = strings.TrimSpace(email)
	if email == "" {
		return Identity{}, apperr.Malformed("identity", errNoEmail, "claim %q", emailClaim)
	}

	return Identity{Email: email}, nil
}

// ParseToken verifies an HS256 bearer token and returns the caller identity
func ParseToken(tokenString, secret, emailClaim string) (Identity, error) {
	if secret == "" {
		return Identity{}, apperr.Malformed("parse_token", errNoSecret, "cannot verify token")
	}
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, apperr.Malformed("parse_token", err, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, apperr.Malformed("parse_token", nil, "invalid token")
	}

	return IdentityFromClaims(claims, emailClaim)
}
