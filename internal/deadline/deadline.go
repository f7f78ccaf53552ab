// Package deadline owns the urgency and overdue rules for projects. Nothing
// here touches storage; callers pass the status and end date they already hold.
package deadline

import (
	"time"

	"fundtrail/internal/domain"
)

const dateLayout = "2006-01-02"

// DaysRemaining returns whole days between today and the end date. Negative
// when the end date has passed. today is truncated to midnight UTC first.
func DaysRemaining(endDate string, today time.Time) (int, error) {
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return 0, err
	}
	day := today.UTC().Truncate(24 * time.Hour)
	return int(end.Sub(day).Hours() / 24), nil
}

// IsUrgent reports whether an ongoing project's end date falls within the
// urgency window, inclusive on both ends. Only Ongoing projects can be
// urgent, and an overdue date is not urgent, it is overdue.
func IsUrgent(status domain.ProjectStatus, endDate string, today time.Time, windowDays int) (bool, error) {
	days, err := DaysRemaining(endDate, today)
	if err != nil {
		return false, err
	}
	return status == domain.ProjectOngoing && days >= 0 && days <= windowDays, nil
}

// IsOverdue reports whether an ongoing project's end date has passed. Leaving
// Ongoing clears the flag immediately, whatever the date.
func IsOverdue(status domain.ProjectStatus, endDate string, today time.Time) (bool, error) {
	days, err := DaysRemaining(endDate, today)
	if err != nil {
		return false, err
	}
	return status == domain.ProjectOngoing && days < 0, nil
}
