package domain

import (
	"testing"
	"time"

	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPeriod(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	t.Run("defaults to one month", func(t *testing.T) {
		start := time.Date(2022, time.July, 1, 0, 0, 0, 0, ny)
		end, months, err := ExpandPeriod(start, nil)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2022, time.August, 1, 0, 0, 0, 0, ny), end)
		assert.Equal(t, []Period{{Year: 2022, Month: 7}}, months)
	})

	t.Run("spans a year boundary", func(t *testing.T) {
		start := time.Date(2022, time.November, 1, 0, 0, 0, 0, time.UTC)
		stop := time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC)
		_, months, err := ExpandPeriod(start, &stop)
		require.NoError(t, err)
		assert.Equal(t, []Period{{Year: 2022, Month: 11}, {Year: 2022, Month: 12}, {Year: 2023, Month: 1}}, months)
	})

	t.Run("rejects mid month start", func(t *testing.T) {
		_, _, err := ExpandPeriod(time.Date(2022, time.July, 15, 0, 0, 0, 0, time.UTC), nil)
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("rejects time of day", func(t *testing.T) {
		_, _, err := ExpandPeriod(time.Date(2022, time.July, 1, 0, 0, 1, 0, time.UTC), nil)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("rejects end equal to start", func(t *testing.T) {
		start := time.Date(2022, time.July, 1, 0, 0, 0, 0, time.UTC)
		_, _, err := ExpandPeriod(start, &start)
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("rejects unaligned end", func(t *testing.T) {
		start := time.Date(2022, time.July, 1, 0, 0, 0, 0, time.UTC)
		stop := time.Date(2022, time.August, 3, 0, 0, 0, 0, time.UTC)
		_, _, err := ExpandPeriod(start, &stop)
		assert.True(t, ierr.IsValidation(err))
	})
}
