// Package usage counts how many free bookings a customer has used this month.
package usage

import (
	"context"
	"strings"
	"time"
)

type Store interface {
	CountApprovedInRange(ctx context.Context, email string, start, end time.Time) (int, error)
}

type Counter struct {
	store Store
	loc   *time.Location
}

func NewCounter(store Store, loc *time.Location) *Counter {
	if loc == nil {
		loc = time.UTC
	}
	return &Counter{store: store, loc: loc}
}

// CountApproved returns the number of approved appointments for email
// (case-insensitive) in the calendar month of asOf.
func (c *Counter) CountApproved(ctx context.Context, email string, asOf time.Time) (int, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, nil
	}
	start, end := MonthRange(asOf, c.loc)
	return c.store.CountApprovedInRange(ctx, email, start, end)
}

// MonthKey formats t as YYYY-MM in loc.
func MonthKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01")
}

// MonthRange returns [first instant of t's month, first instant of the next month) in loc.
func MonthRange(t time.Time, loc *time.Location) (time.Time, time.Time) {
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
