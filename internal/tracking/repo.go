package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2beens/pacebuddies/internal/store"
)

// Repo - append-only position samples. Partition = event id, row key =
// userId_timestampNanos, so one partition scan covers one event and the
// row key stays unique per (user, timestamp).
type Repo struct {
	db store.EntityStore
}

func NewRepo(db store.EntityStore) *Repo {
	return &Repo{db: db}
}

func rowKey(userID string, timestamp time.Time) string {
	return fmt.Sprintf("%s_%d", userID, timestamp.UnixNano())
}

func (r *Repo) Append(ctx context.Context, sample PositionSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal position sample: %w", err)
	}

	// a duplicate (user, timestamp) write is a client retry, not an error
	if _, err := r.db.Create(ctx, store.KindPosition, store.Entity{
		PartitionKey: sample.EventID,
		RowKey:       rowKey(sample.UserID, sample.Timestamp),
		Data:         data,
	}); err != nil {
		return fmt.Errorf("create position entity: %w", err)
	}
	return nil
}

// QueryByEvent returns all samples of an event with timestamp >= since.
// The row key cannot be range-scanned by time, so this is a partition scan
// with the filter applied on the payload timestamp - the retention sweep
// keeps the partitions bounded.
func (r *Repo) QueryByEvent(ctx context.Context, eventID string, since time.Time) ([]PositionSample, error) {
	entities, err := r.db.QueryPartition(ctx, store.KindPosition, eventID)
	if err != nil {
		return nil, fmt.Errorf("query positions partition: %w", err)
	}

	samples := make([]PositionSample, 0, len(entities))
	for _, entity := range entities {
		var sample PositionSample
		if err := json.Unmarshal(entity.Data, &sample); err != nil {
			return nil, fmt.Errorf("unmarshal position %s/%s: %w", entity.PartitionKey, entity.RowKey, err)
		}
		if sample.Timestamp.Before(since) {
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}
