package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/taskcal/internal/domain"
)

func anchor(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func days(occs []Occurrence) []string {
	out := make([]string, len(occs))
	for i, o := range occs {
		out[i] = o.Start.Format("2006-01-02")
	}
	return out
}

func TestExpand_WeeklyCount(t *testing.T) {
	start := anchor(2024, 1, 1, 9, 0)
	occs, err := Expand(start, start.Add(time.Hour), domain.Recurrence{
		Type: domain.RecurrenceWeekly, EndType: domain.EndCount, Count: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15"}, days(occs))
	for _, o := range occs {
		assert.Equal(t, 9, o.Start.Hour())
		assert.Equal(t, 10, o.End.Hour())
		assert.Equal(t, time.Hour, o.End.Sub(o.Start))
	}
}

func TestExpand_DailyUntilIsInclusive(t *testing.T) {
	start := anchor(2024, 1, 1, 9, 0)
	occs, err := Expand(start, start.Add(time.Hour), domain.Recurrence{
		Type: domain.RecurrenceDaily, EndType: domain.EndUntil, Until: anchor(2024, 1, 3, 0, 0),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, days(occs))
}

func TestExpand_NeverIsCapped(t *testing.T) {
	start := anchor(2024, 1, 1, 8, 0)
	occs, err := Expand(start, start.Add(30*time.Minute), domain.Recurrence{
		Type: domain.RecurrenceDaily, EndType: domain.EndNever,
	})
	require.NoError(t, err)
	assert.Len(t, occs, MaxOccurrences)
}

func TestExpand_Intervals(t *testing.T) {
	start := anchor(2024, 1, 1, 9, 0)
	end := start.Add(time.Hour)

	tests := []struct {
		name string
		rule domain.Recurrence
		want []string
	}{
		{
			name: "biweekly",
			rule: domain.Recurrence{Type: domain.RecurrenceBiweekly, EndType: domain.EndCount, Count: 3},
			want: []string{"2024-01-01", "2024-01-15", "2024-01-29"},
		},
		{
			name: "triweekly",
			rule: domain.Recurrence{Type: domain.RecurrenceTriweekly, EndType: domain.EndCount, Count: 2},
			want: []string{"2024-01-01", "2024-01-22"},
		},
		{
			name: "monthly",
			rule: domain.Recurrence{Type: domain.RecurrenceMonthly, EndType: domain.EndCount, Count: 3},
			want: []string{"2024-01-01", "2024-02-01", "2024-03-01"},
		},
		{
			name: "yearly",
			rule: domain.Recurrence{Type: domain.RecurrenceYearly, EndType: domain.EndCount, Count: 2},
			want: []string{"2024-01-01", "2025-01-01"},
		},
		{
			name: "custom every 3 days",
			rule: domain.Recurrence{Type: domain.RecurrenceCustom, Interval: 3, Unit: domain.UnitDays, EndType: domain.EndCount, Count: 3},
			want: []string{"2024-01-01", "2024-01-04", "2024-01-07"},
		},
		{
			name: "custom every 2 months until",
			rule: domain.Recurrence{Type: domain.RecurrenceCustom, Interval: 2, Unit: domain.UnitMonths, EndType: domain.EndUntil, Until: anchor(2024, 5, 1, 0, 0)},
			want: []string{"2024-01-01", "2024-03-01", "2024-05-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occs, err := Expand(start, end, tt.rule)
			require.NoError(t, err)
			assert.Equal(t, tt.want, days(occs))
		})
	}
}

func TestExpand_MonthlyKeepsClockTime(t *testing.T) {
	start := anchor(2024, 1, 15, 18, 45)
	occs, err := Expand(start, start.Add(90*time.Minute), domain.Recurrence{
		Type: domain.RecurrenceMonthly, EndType: domain.EndCount, Count: 4,
	})
	require.NoError(t, err)
	require.Len(t, occs, 4)

	for _, o := range occs {
		assert.Equal(t, 18, o.Start.Hour())
		assert.Equal(t, 45, o.Start.Minute())
		assert.Equal(t, 90*time.Minute, o.End.Sub(o.Start))
	}
}

func TestExpand_SkipsMonthsWithoutAnchorDay(t *testing.T) {
	t.Run("monthly on the 31st", func(t *testing.T) {
		start := anchor(2024, 1, 31, 10, 0)
		occs, err := Expand(start, start.Add(time.Hour), domain.Recurrence{
			Type: domain.RecurrenceMonthly, EndType: domain.EndCount, Count: 3,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-01-31", "2024-03-31", "2024-05-31"}, days(occs))
	})

	t.Run("monthly on the 31st until a date", func(t *testing.T) {
		start := anchor(2024, 1, 31, 10, 0)
		occs, err := Expand(start, start.Add(time.Hour), domain.Recurrence{
			Type: domain.RecurrenceMonthly, EndType: domain.EndUntil, Until: anchor(2024, 4, 30, 0, 0),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-01-31", "2024-03-31"}, days(occs))
	})

	t.Run("yearly on Feb 29", func(t *testing.T) {
		start := anchor(2024, 2, 29, 8, 0)
		occs, err := Expand(start, start.Add(time.Hour), domain.Recurrence{
			Type: domain.RecurrenceYearly, EndType: domain.EndCount, Count: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-02-29", "2028-02-29"}, days(occs))
	})
}

func TestExpand_RecurrenceIDs(t *testing.T) {
	start := anchor(2024, 1, 1, 9, 0)

	occs, err := Expand(start, start.Add(time.Hour), domain.Recurrence{
		Type: domain.RecurrenceDaily, EndType: domain.EndCount, Count: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T09:00:00", occs[0].RecurrenceID)
	assert.Equal(t, "2024-01-02T09:00:00", occs[1].RecurrenceID)

	single, err := Expand(start, start.Add(time.Hour), domain.Recurrence{Type: domain.RecurrenceNone})
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Empty(t, single[0].RecurrenceID)

	once, err := Expand(start, start.Add(time.Hour), domain.Recurrence{
		Type: domain.RecurrenceWeekly, EndType: domain.EndCount, Count: 1,
	})
	require.NoError(t, err)
	require.Len(t, once, 1)
	assert.Empty(t, once[0].RecurrenceID)
}

func TestExpand_Invalid(t *testing.T) {
	start := anchor(2024, 1, 1, 9, 0)

	_, err := Expand(start, start.Add(-time.Hour), domain.Recurrence{})
	assert.True(t, errors.Is(err, ErrInvalidRule))

	_, err = Expand(start, start, domain.Recurrence{Type: domain.RecurrenceCustom, Interval: 0, Unit: domain.UnitDays})
	assert.True(t, errors.Is(err, ErrInvalidRule))

	_, err = Expand(start, start, domain.Recurrence{Type: domain.RecurrenceDaily, EndType: domain.EndUntil})
	assert.True(t, errors.Is(err, ErrInvalidRule))
}

func TestExpandDates(t *testing.T) {
	start := anchor(2024, 1, 1, 14, 0)
	end := anchor(2024, 1, 1, 15, 30)

	occs := ExpandDates(start, end, []time.Time{
		anchor(2024, 2, 10, 0, 0),
		anchor(2024, 2, 3, 0, 0),
		anchor(2024, 2, 10, 0, 0),
	})

	require.Len(t, occs, 2)
	assert.Equal(t, anchor(2024, 2, 3, 14, 0), occs[0].Start)
	assert.Equal(t, anchor(2024, 2, 3, 15, 30), occs[0].End)
	assert.Equal(t, anchor(2024, 2, 10, 14, 0), occs[1].Start)
	assert.Equal(t, "2024-02-10T14:00:00", occs[1].RecurrenceID)
}

func TestExpand_DatesOverrideRule(t *testing.T) {
	start := anchor(2024, 1, 1, 9, 0)
	occs, err := Expand(start, start.Add(time.Hour), domain.Recurrence{
		Type:    domain.RecurrenceDaily,
		EndType: domain.EndCount,
		Count:   10,
		Dates:   []time.Time{anchor(2024, 3, 1, 0, 0)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01"}, days(occs))
}
