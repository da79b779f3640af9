package arrears

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"casa-arrears/services/rentschedule"
)

func TestAggregateSumsAndEarliestDate(t *testing.T) {
	today := time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)
	tenDaysAgo := today.AddDate(0, 0, -10)
	threeDaysAgo := today.AddDate(0, 0, -3)

	obligations := []rentschedule.OverdueObligation{
		{ID: "ob-1", TenancyID: "ten-1", TenantID: "user-1", OwnerID: "owner-1", DueDate: tenDaysAgo, Amount: 500},
		{ID: "ob-2", TenancyID: "ten-1", TenantID: "user-1", OwnerID: "owner-1", DueDate: threeDaysAgo, Amount: 500},
	}

	out := Aggregate(obligations, today)

	require.Len(t, out, 1)
	agg := out["ten-1"]
	require.Equal(t, "user-1", agg.TenantID)
	require.Equal(t, "owner-1", agg.OwnerID)
	require.True(t, agg.TotalOverdue.Equal(decimal.NewFromInt(1000)), "got %s", agg.TotalOverdue)
	require.Equal(t, tenDaysAgo, agg.FirstOverdueDate)
	require.Equal(t, 10, agg.DaysOverdue)
}

func TestAggregateGroupsByTenancy(t *testing.T) {
	today := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	obligations := []rentschedule.OverdueObligation{
		{ID: "ob-1", TenancyID: "ten-1", TenantID: "user-1", DueDate: today.AddDate(0, 0, -5), Amount: 350},
		{ID: "ob-2", TenancyID: "ten-2", TenantID: "user-2", DueDate: today.AddDate(0, 0, -20), Amount: 900},
		{ID: "ob-3", TenancyID: "ten-2", TenantID: "user-2", DueDate: today.AddDate(0, 0, -1), Amount: 100},
	}

	out := Aggregate(obligations, today)

	require.Len(t, out, 2)
	require.True(t, out["ten-1"].TotalOverdue.Equal(decimal.NewFromInt(350)))
	require.Equal(t, 5, out["ten-1"].DaysOverdue)
	require.True(t, out["ten-2"].TotalOverdue.Equal(decimal.NewFromInt(1000)))
	require.Equal(t, 20, out["ten-2"].DaysOverdue)
}

func TestAggregateSameDueDateTieBreak(t *testing.T) {
	today := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	due := today.AddDate(0, 0, -7)

	obligations := []rentschedule.OverdueObligation{
		{ID: "ob-1", TenancyID: "ten-1", TenantID: "user-1", DueDate: due, Amount: 200},
		{ID: "ob-2", TenancyID: "ten-1", TenantID: "user-1", DueDate: due, Amount: 300},
	}

	out := Aggregate(obligations, today)

	agg := out["ten-1"]
	require.Equal(t, due, agg.FirstOverdueDate)
	require.Equal(t, 7, agg.DaysOverdue)
	require.True(t, agg.TotalOverdue.Equal(decimal.NewFromInt(500)))
}

func TestAggregateEmptyInput(t *testing.T) {
	out := Aggregate(nil, time.Now())
	require.Empty(t, out)
}

func TestWholeDaysBetweenIgnoresClockTime(t *testing.T) {
	from := time.Date(2025, 3, 5, 23, 59, 0, 0, time.UTC)
	to := time.Date(2025, 3, 15, 0, 1, 0, 0, time.UTC)

	require.Equal(t, 10, wholeDaysBetween(from, to))
	require.Equal(t, 0, wholeDaysBetween(to, from))
}
