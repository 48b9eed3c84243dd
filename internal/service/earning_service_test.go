package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/pulse_server/internal/model"
	"github.com/qs3c/pulse_server/internal/testutil"
)

func TestEarningService_Record(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	earning := func() *model.Earning {
		return &model.Earning{
			CreatorID:  2,
			Amount:     999,
			Currency:   "usd",
			SourceType: model.SourceSubscription,
			SourceID:   "sub_1",
			EventID:    "evt_1",
		}
	}

	inserted, err := env.earnings.Record(ctx, earning())
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = env.earnings.Record(ctx, earning())
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.Equal(t, int64(1), countRows(t, env.db, "earnings"))
	assert.Equal(t, int64(0), countRows(t, env.db, "entitlements"))
}

func TestEarningService_SumEarnings(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	testutil.TestEarning(t, env.db, 2, 100, jan)
	testutil.TestEarning(t, env.db, 2, 200, feb)
	testutil.TestEarning(t, env.db, 2, 400, mar)
	testutil.TestEarning(t, env.db, 3, 1000, feb)

	cases := []struct {
		name     string
		from, to time.Time
		want     int64
	}{
		{"open range", time.Time{}, time.Time{}, 700},
		{"from inclusive", feb, time.Time{}, 600},
		{"to exclusive", time.Time{}, feb, 100},
		{"bounded", feb, mar, 200},
		{"empty window", mar.Add(time.Hour), time.Time{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total, err := env.earnings.SumEarnings(ctx, 2, tc.from, tc.to)
			require.NoError(t, err)
			assert.Equal(t, tc.want, total)
		})
	}

	t.Run("creator without earnings", func(t *testing.T) {
		total, err := env.earnings.SumEarnings(ctx, 99, time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
	})
}

func TestEarningService_ListEarnings(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		testutil.TestEarning(t, env.db, 2, int64(100*(i+1)), base.Add(time.Duration(i)*time.Hour))
	}

	items, total, err := env.earnings.ListEarnings(ctx, 2, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, items, 2)
	assert.Equal(t, int64(500), items[0].Amount, "newest first")

	items, _, err = env.earnings.ListEarnings(ctx, 2, 3, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(100), items[0].Amount)
}
