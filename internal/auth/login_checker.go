package auth

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	DefaultTTL       = 24 * 7 * time.Hour
	sessionKeyPrefix = "pacebuddies::session::"
)

// LoginChecker reads login sessions from redis. Sessions are written by the
// auth service with the configured TTL; here we only look them up.
type LoginChecker struct {
	redisClient *redis.Client
}

func NewLoginChecker(redisClient *redis.Client) *LoginChecker {
	return &LoginChecker{
		redisClient: redisClient,
	}
}

func (lc *LoginChecker) UserID(ctx context.Context, token string) (string, error) {
	cmd := lc.redisClient.Get(ctx, sessionKeyPrefix+token)
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotLoggedIn
		}
		return "", err
	}

	userID := cmd.Val()
	if userID == "" {
		return "", ErrNotLoggedIn
	}

	return userID, nil
}
