package arrears

import (
	"time"

	"casa-arrears/services/rentschedule"

	"github.com/shopspring/decimal"
)

// TenancyArrears is the aggregated overdue position of a single tenancy.
type TenancyArrears struct {
	TenancyID        string
	TenantID         string
	OwnerID          string
	TotalOverdue     decimal.Decimal
	FirstOverdueDate time.Time
	DaysOverdue      int
}

// Aggregate groups overdue obligations by tenancy, summing amounts and
// keeping the earliest due date. days_overdue is whole days between the
// earliest due date and today. Pure function, no I/O.
func Aggregate(obligations []rentschedule.OverdueObligation, today time.Time) map[string]TenancyArrears {
	out := make(map[string]TenancyArrears)

	for _, ob := range obligations {
		agg, ok := out[ob.TenancyID]
		if !ok {
			agg = TenancyArrears{
				TenancyID:        ob.TenancyID,
				TenantID:         ob.TenantID,
				OwnerID:          ob.OwnerID,
				TotalOverdue:     decimal.Zero,
				FirstOverdueDate: ob.DueDate,
			}
		}

		agg.TotalOverdue = agg.TotalOverdue.Add(decimal.NewFromInt(ob.Amount))
		if ob.DueDate.Before(agg.FirstOverdueDate) {
			agg.FirstOverdueDate = ob.DueDate
		}

		out[ob.TenancyID] = agg
	}

	for id, agg := range out {
		agg.DaysOverdue = wholeDaysBetween(agg.FirstOverdueDate, today)
		out[id] = agg
	}

	return out
}

func wholeDaysBetween(from, to time.Time) int {
	fromDate := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDate := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)

	days := int(toDate.Sub(fromDate) / (24 * time.Hour))
	if days < 0 {
		return 0
	}
	return days
}
