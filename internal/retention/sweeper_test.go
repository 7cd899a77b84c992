package retention

import (
	"context"
	"testing"
	"time"

	"github.com/2beens/pacebuddies/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func addEntity(t *testing.T, db *store.MemStore, kind, partitionKey, rowKey string) {
	t.Helper()
	created, err := db.Create(context.Background(), kind, store.Entity{
		PartitionKey: partitionKey,
		RowKey:       rowKey,
		Data:         []byte(`{}`),
	})
	require.NoError(t, err)
	require.True(t, created)
}

func TestSweep_OldPositions(t *testing.T) {
	db := store.NewMemStore()
	ctx := context.Background()

	now := time.Unix(1700000000, 0)

	// two old samples, one fresh
	db.NowFunc = func() time.Time { return now.Add(-72 * time.Hour) }
	addEntity(t, db, store.KindPosition, "ev1", "u1_1")
	addEntity(t, db, store.KindPosition, "ev1", "u2_1")
	db.NowFunc = func() time.Time { return now }
	addEntity(t, db, store.KindPosition, "ev1", "u1_2")

	addEntity(t, db, store.KindEvent, "event", "ev1")

	sweeper := NewSweeper(db, time.Minute, 48*time.Hour)
	sweeper.now = func() time.Time { return now }

	require.NoError(t, sweeper.Sweep(ctx))

	remaining, err := db.QueryPartition(ctx, store.KindPosition, "ev1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "u1_2", remaining[0].RowKey)
}

func TestSweep_OrphanedLedgerEntries(t *testing.T) {
	db := store.NewMemStore()
	ctx := context.Background()

	addEntity(t, db, store.KindEvent, "event", "ev-alive")
	addEntity(t, db, store.KindReadyMark, "ev-alive", "u1")
	addEntity(t, db, store.KindRegistration, "ev-alive", "u1")

	// ledger entries of an already deleted event
	addEntity(t, db, store.KindReadyMark, "ev-gone", "u1")
	addEntity(t, db, store.KindReadyMark, "ev-gone", "u2")
	addEntity(t, db, store.KindRegistration, "ev-gone", "u2")

	sweeper := NewSweeper(db, time.Minute, 48*time.Hour)
	require.NoError(t, sweeper.Sweep(ctx))

	orphanedMarks, err := db.QueryPartition(ctx, store.KindReadyMark, "ev-gone")
	require.NoError(t, err)
	assert.Empty(t, orphanedMarks)

	orphanedRegistrations, err := db.QueryPartition(ctx, store.KindRegistration, "ev-gone")
	require.NoError(t, err)
	assert.Empty(t, orphanedRegistrations)

	aliveMarks, err := db.QueryPartition(ctx, store.KindReadyMark, "ev-alive")
	require.NoError(t, err)
	assert.Len(t, aliveMarks, 1)
	aliveRegistrations, err := db.QueryPartition(ctx, store.KindRegistration, "ev-alive")
	require.NoError(t, err)
	assert.Len(t, aliveRegistrations, 1)
}

func TestSweeper_StartStop(t *testing.T) {
	db := store.NewMemStore()

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := NewSweeper(db, 10*time.Millisecond, time.Hour)
	sweeper.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()

	// goleak in TestMain verifies the loop goroutine exits
	time.Sleep(20 * time.Millisecond)
}
