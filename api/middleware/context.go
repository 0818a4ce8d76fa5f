package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/molimor/molimor-backend/pkg/enums"
)

type identityKey struct{}

// Identity is the authenticated caller taken from the access token.
type Identity struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom reports false for unauthenticated requests.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != uuid.Nil
}

// UserIDFromContext returns the caller id as a string, or "" when anonymous.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := IdentityFrom(ctx); ok {
		return id.UserID.String()
	}
	return ""
}
