package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/pacebuddies/internal/store"
)

// Entry is one ledger row: a user keyed into an event at some time.
type Entry struct {
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger is a keyed set over one entity kind, partitioned by event id with
// the user id as the row key. Registrations and ready marks share the
// mechanics and differ only in kind.
type Ledger struct {
	db   store.EntityStore
	kind string
}

func NewRegistrationLedger(db store.EntityStore) *Ledger {
	return &Ledger{db: db, kind: store.KindRegistration}
}

func NewReadinessLedger(db store.EntityStore) *Ledger {
	return &Ledger{db: db, kind: store.KindReadyMark}
}

// Create - conditional insert, reports "already existed" instead of failing
// on duplicate. Losers of a concurrent insert race get created=false.
func (l *Ledger) Create(ctx context.Context, eventID, userID string, at time.Time) (created bool, err error) {
	data, err := json.Marshal(Entry{
		EventID:   eventID,
		UserID:    userID,
		Timestamp: at,
	})
	if err != nil {
		return false, fmt.Errorf("marshal %s entry: %w", l.kind, err)
	}

	created, err = l.db.Create(ctx, l.kind, store.Entity{
		PartitionKey: eventID,
		RowKey:       userID,
		Data:         data,
	})
	if err != nil {
		return false, fmt.Errorf("create %s entry: %w", l.kind, err)
	}
	return created, nil
}

func (l *Ledger) Exists(ctx context.Context, eventID, userID string) (bool, error) {
	_, err := l.db.Get(ctx, l.kind, eventID, userID)
	if err != nil {
		if errors.Is(err, store.ErrEntityNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get %s entry: %w", l.kind, err)
	}
	return true, nil
}

// Delete is idempotent, an absent entry is not an error.
func (l *Ledger) Delete(ctx context.Context, eventID, userID string) (existed bool, err error) {
	existed, err = l.db.Delete(ctx, l.kind, eventID, userID)
	if err != nil {
		return false, fmt.Errorf("delete %s entry: %w", l.kind, err)
	}
	return existed, nil
}

func (l *Ledger) ListByEvent(ctx context.Context, eventID string) ([]Entry, error) {
	entities, err := l.db.QueryPartition(ctx, l.kind, eventID)
	if err != nil {
		return nil, fmt.Errorf("query %s partition: %w", l.kind, err)
	}
	return l.entries(entities)
}

// ListByUser is the reverse scan: all events this user is keyed into.
func (l *Ledger) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	entities, err := l.db.QueryByRowKey(ctx, l.kind, userID)
	if err != nil {
		return nil, fmt.Errorf("query %s by user: %w", l.kind, err)
	}
	return l.entries(entities)
}

// DeleteMany removes the given users of one event in a single batched
// statement (registrations of an event share the partition).
func (l *Ledger) DeleteMany(ctx context.Context, eventID string, userIDs []string) (int64, error) {
	deleted, err := l.db.DeleteInPartition(ctx, l.kind, eventID, userIDs)
	if err != nil {
		return 0, fmt.Errorf("delete %s entries: %w", l.kind, err)
	}
	return deleted, nil
}

func (l *Ledger) DeleteAll(ctx context.Context, eventID string) (int64, error) {
	deleted, err := l.db.DeletePartition(ctx, l.kind, eventID)
	if err != nil {
		return 0, fmt.Errorf("delete %s partition: %w", l.kind, err)
	}
	return deleted, nil
}

func (l *Ledger) entries(entities []store.Entity) ([]Entry, error) {
	entries := make([]Entry, 0, len(entities))
	for _, entity := range entities {
		var entry Entry
		if err := json.Unmarshal(entity.Data, &entry); err != nil {
			return nil, fmt.Errorf("unmarshal %s entry %s/%s: %w", l.kind, entity.PartitionKey, entity.RowKey, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
