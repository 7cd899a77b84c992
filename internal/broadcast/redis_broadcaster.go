package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

var _ Broadcaster = (*RedisBroadcaster)(nil)

// RedisBroadcaster publishes messages on a redis pub/sub channel per event.
// The realtime gateway (outside of this service) subscribes to these channels
// and pushes the messages down to connected clients.
type RedisBroadcaster struct {
	redisClient *redis.Client
}

func NewRedisBroadcaster(redisClient *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{
		redisClient: redisClient,
	}
}

func ChannelForEvent(eventID string) string {
	return "pacebuddies::event::" + eventID
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, eventID, msgType string, payload any) error {
	data, err := json.Marshal(Message{
		Type:    msgType,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("marshal broadcast message: %w", err)
	}

	if err := b.redisClient.Publish(ctx, ChannelForEvent(eventID), data).Err(); err != nil {
		return fmt.Errorf("publish broadcast message: %w", err)
	}

	return nil
}
