package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2beens/pacebuddies/internal/store"
)

// all events live in a single partition
const eventPartition = "event"

type Repo struct {
	db store.EntityStore
}

func NewRepo(db store.EntityStore) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Add(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	created, err := r.db.Create(ctx, store.KindEvent, store.Entity{
		PartitionKey: eventPartition,
		RowKey:       event.ID,
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("create event entity: %w", err)
	}
	if !created {
		return fmt.Errorf("event %s already exists", event.ID)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Event, error) {
	entity, err := r.db.Get(ctx, store.KindEvent, eventPartition, id)
	if err != nil {
		if errors.Is(err, store.ErrEntityNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event entity: %w", err)
	}

	var event Event
	if err := json.Unmarshal(entity.Data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event %s: %w", id, err)
	}
	return &event, nil
}

func (r *Repo) Update(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := r.db.Update(ctx, store.KindEvent, store.Entity{
		PartitionKey: eventPartition,
		RowKey:       event.ID,
		Data:         data,
	}); err != nil {
		if errors.Is(err, store.ErrEntityNotFound) {
			return ErrEventNotFound
		}
		return fmt.Errorf("update event entity: %w", err)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id string) (existed bool, err error) {
	existed, err = r.db.Delete(ctx, store.KindEvent, eventPartition, id)
	if err != nil {
		return false, fmt.Errorf("delete event entity: %w", err)
	}
	return existed, nil
}

func (r *Repo) ListOpen(ctx context.Context) ([]*Event, error) {
	return r.list(ctx, func(event *Event) bool {
		return event.Status == StatusOpen
	})
}

func (r *Repo) ListByHost(ctx context.Context, hostID string) ([]*Event, error) {
	return r.list(ctx, func(event *Event) bool {
		return event.HostID == hostID
	})
}

func (r *Repo) list(ctx context.Context, keep func(*Event) bool) ([]*Event, error) {
	entities, err := r.db.QueryPartition(ctx, store.KindEvent, eventPartition)
	if err != nil {
		return nil, fmt.Errorf("query events partition: %w", err)
	}

	events := make([]*Event, 0, len(entities))
	for _, entity := range entities {
		var event Event
		if err := json.Unmarshal(entity.Data, &event); err != nil {
			return nil, fmt.Errorf("unmarshal event %s: %w", entity.RowKey, err)
		}
		if keep(&event) {
			events = append(events, &event)
		}
	}
	return events, nil
}
