// Package auth inspects the backend JWT held in the browser cookie. The UI
// never verifies signatures; the backend does. It only reads expiry so an
// expired session is sent to the login page before any backend call.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrMalformed    = errors.New("malformed token")
	ErrExpired      = errors.New("token expired")
)

// Claims is what the UI reads from the token.
type Claims struct {
	Email     string
	ExpiresAt time.Time
}

type backendClaims struct {
	Email string `json:"EMAIL"`
	jwt.RegisteredClaims
}

// user is the EMAIL claim, falling back to sub.
func (bc backendClaims) user() string {
	if bc.Email != "" {
		return bc.Email
	}
	return bc.Subject
}

func parse(raw string) (backendClaims, error) {
	if raw == "" {
		return backendClaims{}, ErrMissingToken
	}
	var bc backendClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &bc); err != nil {
		return backendClaims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return bc, nil
}

// Subject returns the user a token was issued to, lowercased, or "" when the
// token is malformed or names nobody. Expiry is not checked.
func Subject(raw string) string {
	bc, err := parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(bc.user()))
}

// Inspect parses raw without verifying its signature and checks it is not expired at now.
// Tokens without an exp claim are accepted.
func Inspect(raw string, now time.Time) (Claims, error) {
	bc, err := parse(raw)
	if err != nil {
		return Claims{}, err
	}

	c := Claims{Email: bc.user()}
	if bc.ExpiresAt != nil {
		c.ExpiresAt = bc.ExpiresAt.Time
		if !now.Before(c.ExpiresAt) {
			return c, ErrExpired
		}
	}
	return c, nil
}
