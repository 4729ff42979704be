// Package identity resolves the acting employee for a request. Domain code
// receives an Actor explicitly and never looks identity up on its own.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Actor is the identity performing an operation.
type Actor struct {
	EmployeeID string `json:"employeeId"`
	IsAdmin    bool   `json:"isAdmin"`
}

// Claims are the JWT claims carried by API bearer tokens. The subject is the
// employee id.
type Claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrEmptyToken = errors.New("identity: token is empty")
	ErrNoSubject  = errors.New("identity: token has no subject")
)

// Sign issues an HS256 token for the actor, valid for ttl from now.
func Sign(secret []byte, actor Actor, ttl time.Duration, now time.Time) (string, error) {
	claims := &Claims{
		Admin: actor.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.EmployeeID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}

// Parse validates an HS256 token and returns the actor it names.
func Parse(secret []byte, tokenString string) (Actor, error) {
	if tokenString == "" {
		return Actor{}, ErrEmptyToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return Actor{}, fmt.Errorf("identity: parse token: %w", err)
	}
	if !token.Valid {
		return Actor{}, errors.New("identity: token is not valid")
	}
	if claims.Subject == "" {
		return Actor{}, ErrNoSubject
	}
	return Actor{EmployeeID: claims.Subject, IsAdmin: claims.Admin}, nil
}
