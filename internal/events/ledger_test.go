package events

import (
	"context"
	"testing"
	"time"

	"github.com/2beens/pacebuddies/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_ListByUser(t *testing.T) {
	db := store.NewMemStore()
	registrations := NewRegistrationLedger(db)
	ctx := context.Background()
	now := time.Now()

	for _, reg := range []struct {
		eventID string
		userID  string
	}{
		{"ev-1", "runner-a"},
		{"ev-2", "runner-a"},
		{"ev-2", "runner-b"},
		{"ev-3", "runner-b"},
	} {
		created, err := registrations.Create(ctx, reg.eventID, reg.userID, now)
		require.NoError(t, err)
		require.True(t, created)
	}

	entries, err := registrations.ListByUser(ctx, "runner-a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ev-1", entries[0].EventID)
	assert.Equal(t, "ev-2", entries[1].EventID)
	for _, entry := range entries {
		assert.Equal(t, "runner-a", entry.UserID)
	}

	// no registrations at all is an empty list, not an error
	entries, err = registrations.ListByUser(ctx, "runner-c")
	require.NoError(t, err)
	assert.Empty(t, entries)

	existed, err := registrations.Delete(ctx, "ev-1", "runner-a")
	require.NoError(t, err)
	require.True(t, existed)

	entries, err = registrations.ListByUser(ctx, "runner-a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ev-2", entries[0].EventID)
}

func TestLedger_ListByUser_KindsDoNotMix(t *testing.T) {
	db := store.NewMemStore()
	registrations := NewRegistrationLedger(db)
	readyMarks := NewReadinessLedger(db)
	ctx := context.Background()
	now := time.Now()

	created, err := registrations.Create(ctx, "ev-1", "runner-a", now)
	require.NoError(t, err)
	require.True(t, created)
	created, err = readyMarks.Create(ctx, "ev-2", "runner-a", now)
	require.NoError(t, err)
	require.True(t, created)

	entries, err := registrations.ListByUser(ctx, "runner-a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ev-1", entries[0].EventID)

	entries, err = readyMarks.ListByUser(ctx, "runner-a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ev-2", entries[0].EventID)
}
