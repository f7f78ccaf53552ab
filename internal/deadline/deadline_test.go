package deadline_test

import (
	"testing"
	"time"

	"fundtrail/internal/deadline"
	"fundtrail/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 15, 30, 0, 0, time.UTC)
}

func TestDaysRemaining(t *testing.T) {
	cases := []struct {
		end   string
		today time.Time
		want  int
	}{
		{"2026-06-30", day(2026, 6, 30), 0},
		{"2026-06-30", day(2026, 6, 23), 7},
		{"2026-06-30", day(2026, 6, 22), 8},
		{"2026-06-30", day(2026, 7, 1), -1},
		{"2026-06-30", day(2026, 3, 1), 121},
	}
	for _, tc := range cases {
		got, err := deadline.DaysRemaining(tc.end, tc.today)
		if err != nil {
			t.Fatalf("DaysRemaining(%s, %s): %v", tc.end, tc.today, err)
		}
		if got != tc.want {
			t.Errorf("DaysRemaining(%s, %s) = %d, want %d", tc.end, tc.today, got, tc.want)
		}
	}
	if _, err := deadline.DaysRemaining("30/06/2026", day(2026, 6, 1)); err == nil {
		t.Errorf("malformed date accepted")
	}
}

func TestIsUrgent(t *testing.T) {
	cases := []struct {
		status domain.ProjectStatus
		end    string
		today  time.Time
		want   bool
	}{
		{domain.ProjectOngoing, "2026-06-30", day(2026, 6, 30), true},    // due today
		{domain.ProjectOngoing, "2026-06-30", day(2026, 6, 23), true},    // exactly 7 days out
		{domain.ProjectOngoing, "2026-06-30", day(2026, 6, 22), false},   // 8 days out
		{domain.ProjectOngoing, "2026-06-30", day(2026, 7, 1), false},    // overdue, not urgent
		{domain.ProjectCompleted, "2026-06-30", day(2026, 6, 30), false}, // closed, never urgent
		{domain.ProjectCancelled, "2026-06-30", day(2026, 6, 28), false},
	}
	for _, tc := range cases {
		got, err := deadline.IsUrgent(tc.status, tc.end, tc.today, 7)
		if err != nil {
			t.Fatalf("IsUrgent(%s, %s, %s): %v", tc.status, tc.end, tc.today, err)
		}
		if got != tc.want {
			t.Errorf("IsUrgent(%s, %s, %s) = %v, want %v", tc.status, tc.end, tc.today, got, tc.want)
		}
	}
}

func TestIsOverdue(t *testing.T) {
	if got, _ := deadline.IsOverdue(domain.ProjectOngoing, "2026-06-30", day(2026, 6, 30)); got {
		t.Errorf("due today reported overdue")
	}
	if got, _ := deadline.IsOverdue(domain.ProjectOngoing, "2026-06-30", day(2026, 7, 1)); !got {
		t.Errorf("day after end not reported overdue")
	}
	// A closed project is never overdue, however far past its end date.
	if got, _ := deadline.IsOverdue(domain.ProjectCompleted, "2026-06-30", day(2026, 9, 1)); got {
		t.Errorf("completed project reported overdue")
	}
	if got, _ := deadline.IsOverdue(domain.ProjectCancelled, "2026-06-30", day(2026, 9, 1)); got {
		t.Errorf("cancelled project reported overdue")
	}
}
