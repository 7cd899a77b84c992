package auth

import (
	"context"
)

type contextKey struct{}

var userIDKey = contextKey{}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the id of the authenticated caller, as resolved
// by the auth middleware. Empty for public (non-authenticated) requests.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}
