package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/harvardinformatics/ifxbilling-sub000/internal/clock"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/config"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/testutil"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTruncateTail(t *testing.T) {
	assert.Equal(t, "short", TruncateTail("short", 10))
	assert.Equal(t, "world", TruncateTail("hello world", 5))
	assert.Equal(t, "anything", TruncateTail("anything", 0))
	assert.Equal(t, "ñé", TruncateTail("abcñé", 2))
}

func TestTrackerLifecycle(t *testing.T) {
	db := testutil.OpenDB(t)
	f := testutil.Seed(t, db, testutil.Node(t))
	usage := f.AddUsage(t, f.Product, "1", "ea", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))

	billing := config.DefaultBillingConfig()
	billing.ErrorMessageMaxLength = 12
	clk := clock.NewFakeClock(time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC))
	repo := repository.Provide()
	tracker := NewTracker(TrackerParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   f.Node,
		Repo:    repo,
		Billing: config.NewStaticBillingConfigHolder(billing),
		Clock:   clk,
	})
	ctx := context.Background()

	// Success without a prior failure writes nothing.
	require.NoError(t, tracker.RecordSuccess(ctx, db, usage.ID))
	rows, err := repo.ListProcessing(ctx, db, usage.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, tracker.RecordFailure(ctx, usage.ID, "first failure: "+strings.Repeat("x", 20)+" account missing"))
	clk.Advance(time.Hour)
	require.NoError(t, tracker.RecordFailure(ctx, usage.ID, "second: no rate"))

	rows, err = repo.ListProcessing(ctx, db, usage.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ond: no rate", rows[0].ErrorMessage)
	assert.False(t, rows[0].Resolved)

	clk.Advance(time.Hour)
	require.NoError(t, tracker.RecordSuccess(ctx, nil, usage.ID))
	rows, err = repo.ListProcessing(ctx, db, usage.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Resolved)

	// A new failure after resolution opens a fresh row.
	require.NoError(t, tracker.RecordFailure(ctx, usage.ID, "again"))
	rows, err = repo.ListProcessing(ctx, db, usage.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []bool{true, false}, []bool{rows[0].Resolved, rows[1].Resolved})

	unresolved, err := repo.FindUnresolvedProcessing(ctx, db, usage.ID)
	require.NoError(t, err)
	require.NotNil(t, unresolved)
	assert.Equal(t, "again", unresolved.ErrorMessage)
}
