package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aldoetobex/insurance-backend/pkg/models"
)

var (
	ratePerMonth = decimal.New(1, -1) // 10%
	maxRate      = decimal.NewFromInt(1)
)

// Assessment is the outcome of evaluating a payment against the calendar.
type Assessment struct {
	Amount      decimal.Decimal
	Status      models.PaymentStatus
	MonthsLate  int
	PenaltyRate decimal.Decimal
}

// Evaluate applies the overdue penalty to base.
//
// Dates are compared by calendar day in now's location. A payment is overdue
// once its due day is before today; the penalty grows 10% per whole calendar
// month between the two dates and is capped at 100%.
func Evaluate(base decimal.Decimal, dueDate, now time.Time) Assessment {
	if !Overdue(dueDate, now) {
		return Assessment{Amount: base, Status: models.PaymentPending, PenaltyRate: decimal.Zero}
	}

	months := MonthsLate(dueDate, now)
	rate := decimal.NewFromInt(int64(months)).Mul(ratePerMonth)
	if rate.GreaterThan(maxRate) {
		rate = maxRate
	}
	return Assessment{
		Amount:      base.Mul(decimal.NewFromInt(1).Add(rate)),
		Status:      models.PaymentOverDue,
		MonthsLate:  months,
		PenaltyRate: rate,
	}
}

// Overdue reports whether dueDate falls on a day before now's day.
func Overdue(dueDate, now time.Time) bool {
	return dayOf(dueDate).Before(dayOf(now))
}

// MonthsLate is the whole-month difference between the two dates, ignoring
// the day of month. It is floored at zero.
func MonthsLate(dueDate, now time.Time) int {
	dy, dm, _ := dueDate.Date()
	ny, nm, _ := now.Date()
	months := (ny-dy)*12 + int(nm-dm)
	if months < 0 {
		return 0
	}
	return months
}

// dayOf drops the clock part, keeping the calendar date as a UTC midnight.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
