package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_ConditionalCreate(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	created, err := s.Create(ctx, KindRegistration, Entity{
		PartitionKey: "event1",
		RowKey:       "user1",
		Data:         []byte(`{"userId":"user1"}`),
	})
	require.NoError(t, err)
	assert.True(t, created)

	// duplicate insert reports "already exists", no error
	created, err = s.Create(ctx, KindRegistration, Entity{
		PartitionKey: "event1",
		RowKey:       "user1",
		Data:         []byte(`{"userId":"user1"}`),
	})
	require.NoError(t, err)
	assert.False(t, created)

	entities, err := s.QueryPartition(ctx, KindRegistration, "event1")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "user1", entities[0].RowKey)
}

func TestMemStore_GetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	_, err := s.Get(ctx, KindEvent, "event", "nope")
	assert.ErrorIs(t, err, ErrEntityNotFound)

	err = s.Update(ctx, KindEvent, Entity{PartitionKey: "event", RowKey: "nope", Data: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrEntityNotFound)

	_, err = s.Create(ctx, KindEvent, Entity{PartitionKey: "event", RowKey: "e1", Data: []byte(`{"v":1}`)})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, KindEvent, Entity{PartitionKey: "event", RowKey: "e1", Data: []byte(`{"v":2}`)}))

	e, err := s.Get(ctx, KindEvent, "event", "e1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(e.Data))

	existed, err := s.Delete(ctx, KindEvent, "event", "e1")
	require.NoError(t, err)
	assert.True(t, existed)

	// idempotent delete
	existed, err = s.Delete(ctx, KindEvent, "event", "e1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestMemStore_PartitionOps(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	for _, user := range []string{"a", "b", "c"} {
		_, err := s.Create(ctx, KindRegistration, Entity{PartitionKey: "event1", RowKey: user, Data: []byte(`{}`)})
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, KindRegistration, Entity{PartitionKey: "event2", RowKey: "a", Data: []byte(`{}`)})
	require.NoError(t, err)

	deleted, err := s.DeleteInPartition(ctx, KindRegistration, "event1", []string{"a", "c", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	entities, err := s.QueryPartition(ctx, KindRegistration, "event1")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "b", entities[0].RowKey)

	// reverse scan finds user "a" only in event2 now
	byUser, err := s.QueryByRowKey(ctx, KindRegistration, "a")
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "event2", byUser[0].PartitionKey)

	deleted, err = s.DeletePartition(ctx, KindRegistration, "event2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	partitions, err := s.Partitions(ctx, KindRegistration)
	require.NoError(t, err)
	assert.Equal(t, []string{"event1"}, partitions)
}

func TestMemStore_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	now := time.Now()
	s.NowFunc = func() time.Time { return now.Add(-2 * time.Hour) }
	_, err := s.Create(ctx, KindPosition, Entity{PartitionKey: "event1", RowKey: "old", Data: []byte(`{}`)})
	require.NoError(t, err)

	s.NowFunc = func() time.Time { return now }
	_, err = s.Create(ctx, KindPosition, Entity{PartitionKey: "event1", RowKey: "fresh", Data: []byte(`{}`)})
	require.NoError(t, err)

	deleted, err := s.DeleteOlderThan(ctx, KindPosition, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entities, err := s.QueryPartition(ctx, KindPosition, "event1")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "fresh", entities[0].RowKey)
}
