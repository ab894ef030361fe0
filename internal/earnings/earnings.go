// Package earnings aggregates worker income over completed and scheduled jobs.
package earnings

import (
	"fmt"
	"sort"
	"time"

	"servicenest/internal/models"
	"servicenest/internal/schedule"

	"github.com/shopspring/decimal"
)

// Total sums the effective price of completed bookings.
func Total(bookings []models.Booking) decimal.Decimal {
	return sum(bookings, func(b models.Booking) bool {
		return b.Status == models.StatusCompleted
	})
}

// Monthly sums completed bookings whose service date falls in the month.
func Monthly(bookings []models.Booking, year int, month time.Month) decimal.Decimal {
	return sum(bookings, func(b models.Booking) bool {
		return b.Status == models.StatusCompleted && b.ServiceDate.InMonth(year, month)
	})
}

// Weekly sums completed bookings of the seven days starting at weekStart.
func Weekly(bookings []models.Booking, weekStart models.Date) decimal.Decimal {
	end := weekStart.AddDays(models.DaysPerWeek)
	return sum(bookings, func(b models.Booking) bool {
		return b.Status == models.StatusCompleted &&
			b.ServiceDate.Valid() &&
			!b.ServiceDate.Before(weekStart) && b.ServiceDate.Before(end)
	})
}

// Pending sums work that is accepted or in progress and not yet paid out.
func Pending(bookings []models.Booking) decimal.Decimal {
	return sum(bookings, func(b models.Booking) bool {
		return b.Status.Active()
	})
}

func sum(bookings []models.Booking, match func(models.Booking) bool) decimal.Decimal {
	total := decimal.Zero
	for i := range bookings {
		if match(bookings[i]) {
			total = total.Add(bookings[i].EffectivePrice())
		}
	}
	return total
}

// Summary is the earnings dashboard of a worker.
type Summary struct {
	Total           decimal.Decimal `json:"total_earnings"`
	Monthly         decimal.Decimal `json:"monthly_earnings"`
	Weekly          decimal.Decimal `json:"weekly_earnings"`
	Pending         decimal.Decimal `json:"pending_earnings"`
	CompletedJobs   int             `json:"completed_jobs"`
	AveragePerJob   decimal.Decimal `json:"average_per_job"`
	RepeatCustomers decimal.Decimal `json:"repeat_customers_pct"`
}

// Summarize builds the dashboard as of today.
func Summarize(bookings []models.Booking, today models.Date) Summary {
	s := Summary{
		Total:           Total(bookings),
		Weekly:          Weekly(bookings, schedule.WeekStart(today)),
		Pending:         Pending(bookings),
		Monthly:         decimal.Zero,
		AveragePerJob:   decimal.Zero,
		RepeatCustomers: decimal.Zero,
	}
	if t, err := today.Time(); err == nil {
		s.Monthly = Monthly(bookings, t.Year(), t.Month())
	}

	perCustomer := make(map[string]int)
	for _, b := range bookings {
		if b.Status != models.StatusCompleted {
			continue
		}
		s.CompletedJobs++
		perCustomer[b.Customer.Email]++
	}
	if s.CompletedJobs > 0 {
		s.AveragePerJob = s.Total.Div(decimal.NewFromInt(int64(s.CompletedJobs))).Round(2)
	}
	if len(perCustomer) > 0 {
		repeat := 0
		for _, n := range perCustomer {
			if n > 1 {
				repeat++
			}
		}
		s.RepeatCustomers = decimal.NewFromInt(int64(repeat * 100)).
			Div(decimal.NewFromInt(int64(len(perCustomer)))).Round(1)
	}
	return s
}

// MonthlySeries returns completed earnings for each month of the year, January first.
func MonthlySeries(bookings []models.Booking, year int) [12]decimal.Decimal {
	var out [12]decimal.Decimal
	for m := time.January; m <= time.December; m++ {
		out[m-1] = Monthly(bookings, year, m)
	}
	return out
}

// Transaction is one credit line of the earnings history.
type Transaction struct {
	BookingID   int64           `json:"booking_id"`
	Date        models.Date     `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Status      models.Status   `json:"status"`
}

// Transactions lists completed and in-flight jobs as credits, newest service date first.
func Transactions(bookings []models.Booking) []Transaction {
	var out []Transaction
	for _, b := range bookings {
		if b.Status != models.StatusCompleted && !b.Status.Active() {
			continue
		}
		out = append(out, Transaction{
			BookingID:   b.ID,
			Date:        b.ServiceDate,
			Description: fmt.Sprintf("%s Service - %s", b.ServiceType, b.Customer.Name),
			Amount:      b.EffectivePrice(),
			Status:      b.Status,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].BookingID > out[j].BookingID
	})
	return out
}
