package common

import (
	"context"
	"strings"
)

type userIDKey struct{}

// WithUserID returns a context carrying the authenticated user's ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the authenticated user's ID, or ErrUnauthorized.
func UserIDFromContext(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrUnauthorized
	}
	id, ok := ctx.Value(userIDKey{}).(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", ErrUnauthorized
	}
	return id, nil
}
