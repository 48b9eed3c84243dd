package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/pulse_server/internal/model"
	"github.com/qs3c/pulse_server/internal/testutil"
)

func TestEventRepository_MarkProcessed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	processed, err := repo.IsProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, processed)

	inserted, err := repo.MarkProcessed(ctx, "evt_1", "checkout.session.completed", model.EventOutcomeApplied, now)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.MarkProcessed(ctx, "evt_1", "checkout.session.completed", model.EventOutcomeApplied, now)
	require.NoError(t, err)
	assert.False(t, inserted)

	processed, err = repo.IsProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, processed)

	n, err := repo.CountProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEventRepository_MarkProcessed_Concurrent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewEventRepository(db)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := repo.MarkProcessed(context.Background(), "evt_race", "invoice.paid", model.EventOutcomeApplied, time.Now().UTC())
			assert.NoError(t, err)
			if inserted {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestEventRepository_Unresolved(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	for _, id := range []string{"evt_a", "evt_b", "evt_a"} {
		require.NoError(t, repo.SaveUnresolved(ctx, &model.UnresolvedEvent{
			EventID:   id,
			EventType: "checkout.session.completed",
			Reason:    "missing subscriber_id",
		}))
	}

	events, total, err := repo.ListUnresolved(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, events, 1)
}
