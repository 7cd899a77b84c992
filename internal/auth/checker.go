package auth

import (
	"context"
	"errors"
)

var ErrNotLoggedIn = errors.New("no session for given token")

var _ Checker = (*LoginChecker)(nil)
var _ Checker = (*LoginTestChecker)(nil)

// Checker resolves a request token to the id of the logged-in user.
// Credential issuance lives in a separate service; this side only verifies.
type Checker interface {
	UserID(ctx context.Context, token string) (string, error)
}
