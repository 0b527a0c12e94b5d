package postgres_test

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgstore "phoenix-pipeline/internal/storage/postgres"
)

func TestStateStore_LoadEmptyReturnsZeroState(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewStateStore(pool, log.New(io.Discard, "", 0))
	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LastProcessedBlock)
	assert.Empty(t, state.Extra)
}

func TestStateStore_AdvanceAndLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewStateStore(pool, log.New(io.Discard, "", 0))

	require.NoError(t, store.Advance(ctx, 12345, nil))

	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), state.LastProcessedBlock)
	assert.NotEmpty(t, state.LastUpdated)
}

func TestStateStore_AdvanceMergesExtras(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewStateStore(pool, log.New(io.Discard, "", 0))

	// First run writes one extra field, second run writes another.
	require.NoError(t, store.Advance(ctx, 100, map[string]interface{}{"lastRunSwaps": 10}))
	require.NoError(t, store.Advance(ctx, 200, map[string]interface{}{"operator": "cron"}))

	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200), state.LastProcessedBlock)

	// Both extras survive: the JSONB merge keeps fields the second
	// Advance did not name.
	var swaps int
	require.NoError(t, json.Unmarshal(state.Extra["lastRunSwaps"], &swaps))
	assert.Equal(t, 10, swaps)

	var operator string
	require.NoError(t, json.Unmarshal(state.Extra["operator"], &operator))
	assert.Equal(t, "cron", operator)
}
