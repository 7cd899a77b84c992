package broadcast

import (
	"context"
)

// Message types fanned out to the realtime channel of an event.
const (
	TypeEventCreated         = "eventCreated"
	TypeEventStatusChanged   = "eventStatusChanged"
	TypeEventStarted         = "eventStarted"
	TypeEventDeleted         = "eventDeleted"
	TypeRunnerRemoved        = "runnerRemoved"
	TypeRunnerPositionUpdate = "runnerPositionUpdate"
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Broadcaster is the fire-and-forget fan-out to all subscribers of an event
// channel. Delivery is at-most-once: no acknowledgment, no ordering, no
// backpressure. A dropped message is tolerated because the pull endpoints
// remain the authoritative source of truth.
type Broadcaster interface {
	Broadcast(ctx context.Context, eventID, msgType string, payload any) error
}
