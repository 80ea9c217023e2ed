package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDateRangeContains(t *testing.T) {
	r := DateRange{Start: date(2025, 1, 1), End: date(2025, 3, 31)}

	testCases := []struct {
		placedAt time.Time
		expected bool
	}{
		{date(2024, 12, 31), false},
		{date(2025, 1, 1), true}, // start boundary included
		{date(2025, 2, 10), true},
		{date(2025, 3, 31), true}, // end boundary included
		{date(2025, 4, 1), false},
	}
	for _, test := range testCases {
		require.Equal(
			t, test.expected, r.Contains(test.placedAt),
			"date %s", test.placedAt.Format(time.DateOnly),
		)
	}
}

func TestDateRangeValidate(t *testing.T) {
	require.NoError(t, DateRange{Start: date(2025, 1, 1), End: date(2025, 1, 1)}.Validate())
	require.Error(t, DateRange{Start: date(2025, 2, 1), End: date(2025, 1, 1)}.Validate())
}

func TestDefaultRange(t *testing.T) {
	now := time.Date(2025, 6, 15, 13, 45, 12, 0, time.UTC)
	r := DefaultRange(now)

	require.Equal(t, date(2025, 6, 15), r.End)
	require.Equal(t, date(2025, 6, 15).AddDate(0, 0, -90), r.Start)
	require.NoError(t, r.Validate())
	require.True(t, r.Contains(date(2025, 6, 15)))
}
