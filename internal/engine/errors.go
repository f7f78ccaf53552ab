package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InvalidStateError indicates an operation hit an entity that already left
// the state the operation requires. Decisions are not idempotent: a second
// finalize on a decided request fails with this error.
type InvalidStateError struct {
	Entity string
	ID     string
	State  string
	Op     string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s is %s, cannot %s", e.Entity, e.ID, e.State, e.Op)
}

// DuplicateVoteError indicates the admin already voted on the request. The
// original vote stands untouched.
type DuplicateVoteError struct {
	RequestID string
	AdminID   string
}

func (e DuplicateVoteError) Error() string {
	return fmt.Sprintf("admin %s already voted on request %s", e.AdminID, e.RequestID)
}

// BudgetExceededError carries the remaining balance so callers can report how
// much of the granted fund is still available.
type BudgetExceededError struct {
	ProjectID string
	Remaining decimal.Decimal
}

func (e BudgetExceededError) Error() string {
	return fmt.Sprintf("expense exceeds remaining budget %s for project %s", e.Remaining.String(), e.ProjectID)
}

// DeadlineExpiredError indicates the project's end date has passed.
type DeadlineExpiredError struct {
	ProjectID string
	EndDate   string
}

func (e DeadlineExpiredError) Error() string {
	return fmt.Sprintf("project %s deadline %s has passed", e.ProjectID, e.EndDate)
}
