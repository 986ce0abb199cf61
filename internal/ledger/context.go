package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"gastos/internal/auth"
)

var (
	// ErrUnauthorized means the backend refused the caller's token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRejected means the backend refused the request as invalid.
	ErrRejected = errors.New("request rejected")
	// ErrUnavailable covers transport failures and 5xx answers.
	ErrUnavailable = errors.New("backend unavailable")
)

type tokenKey struct{}

// WithToken returns a context carrying the user's backend JWT.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the JWT stored by WithToken, or "".
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Principal is a stable, non-reversible key for the caller, used to scope
// cached reads and invalidation events. It is "" without a token.
func Principal(ctx context.Context) string {
	return PrincipalOf(TokenFrom(ctx))
}

// PrincipalOf derives the principal key from a token. Every token issued to
// the same user yields the same key; a token naming no user is keyed on its
// own bytes.
func PrincipalOf(token string) string {
	if token == "" {
		return ""
	}
	id := "token:" + token
	if user := auth.Subject(token); user != "" {
		id = "user:" + user
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:12])
}
