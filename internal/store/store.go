package store

import (
	"context"
	"errors"
	"time"
)

var ErrEntityNotFound = errors.New("entity not found")

// Entity kinds. Partitioning mirrors what each kind needs:
// events all live in one partition, everything else is partitioned
// by the event id so that partition scans stay per-event.
const (
	KindEvent        = "event"
	KindRegistration = "registration"
	KindReadyMark    = "ready_mark"
	KindPosition     = "position"
	KindUser         = "user"
)

type Entity struct {
	PartitionKey string
	RowKey       string
	Data         []byte
	CreatedAt    time.Time
}

// EntityStore is a durable key-value store addressed by (partitionKey, rowKey).
// Atomicity holds for a single entity only - there are no cross-entity
// transactions, and the callers are built around that (conditional inserts,
// idempotent deletes, retryable multi-step sequences).
type EntityStore interface {
	Get(ctx context.Context, kind, partitionKey, rowKey string) (*Entity, error)
	// Create is a conditional insert: it reports "already exists" via the
	// returned bool instead of raising on duplicate.
	Create(ctx context.Context, kind string, entity Entity) (created bool, err error)
	// Update replaces the data of an existing entity.
	Update(ctx context.Context, kind string, entity Entity) error
	// Delete is idempotent, the returned bool tells whether the entity existed.
	Delete(ctx context.Context, kind, partitionKey, rowKey string) (existed bool, err error)
	QueryPartition(ctx context.Context, kind, partitionKey string) ([]Entity, error)
	// QueryByRowKey is the reverse scan: all entities of a kind with the
	// given row key, across partitions.
	QueryByRowKey(ctx context.Context, kind, rowKey string) ([]Entity, error)
	// DeleteInPartition removes the given rows of one partition in a single
	// batched statement.
	DeleteInPartition(ctx context.Context, kind, partitionKey string, rowKeys []string) (int64, error)
	DeletePartition(ctx context.Context, kind, partitionKey string) (int64, error)

	// retention support
	DeleteOlderThan(ctx context.Context, kind string, cutoff time.Time) (int64, error)
	Partitions(ctx context.Context, kind string) ([]string, error)
}
