package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the caller. The registered subject is the directory user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var (
	errEmptyToken  = errors.New("auth: empty token")
	errEmptySecret = errors.New("auth: empty secret")
)

// clockSkew tolerates small drift between the issuer and this service.
const clockSkew = 30 * time.Second

// ParseJWT verifies an HS256 token and returns the caller identity.
func ParseJWT(tokenString string, secret []byte) (Identity, error) {
	if tokenString == "" {
		return Identity{}, errEmptyToken
	}
	if len(secret) == 0 {
		return Identity{}, errEmptySecret
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return Identity{}, err
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("auth: missing subject")
	}
	role, ok := NormalizeRole(claims.Role)
	if !ok {
		return Identity{}, errors.New("auth: unknown role " + claims.Role)
	}
	return Identity{UserID: claims.Subject, Role: role}, nil
}
