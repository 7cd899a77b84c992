package auth

import (
	"context"
)

// LoginTestChecker - a Checker usable in unit tests.
type LoginTestChecker struct {
	// token -> user id
	Sessions map[string]string
}

func NewLoginTestChecker() *LoginTestChecker {
	return &LoginTestChecker{
		Sessions: make(map[string]string),
	}
}

func (lc *LoginTestChecker) UserID(_ context.Context, token string) (string, error) {
	userID, ok := lc.Sessions[token]
	if !ok {
		return "", ErrNotLoggedIn
	}
	return userID, nil
}
