package broadcast

import (
	"context"
	"sync"
)

var _ Broadcaster = (*TestBroadcaster)(nil)

// TestBroadcaster records broadcast messages, for assertions in unit tests.
type TestBroadcaster struct {
	mutex    sync.Mutex
	messages []TestMessage
}

type TestMessage struct {
	EventID string
	Type    string
	Payload any
}

func NewTestBroadcaster() *TestBroadcaster {
	return &TestBroadcaster{}
}

func (b *TestBroadcaster) Broadcast(_ context.Context, eventID, msgType string, payload any) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.messages = append(b.messages, TestMessage{
		EventID: eventID,
		Type:    msgType,
		Payload: payload,
	})
	return nil
}

func (b *TestBroadcaster) Messages() []TestMessage {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	messages := make([]TestMessage, len(b.messages))
	copy(messages, b.messages)
	return messages
}

func (b *TestBroadcaster) MessagesOfType(msgType string) []TestMessage {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	var messages []TestMessage
	for _, m := range b.messages {
		if m.Type == msgType {
			messages = append(messages, m)
		}
	}
	return messages
}
