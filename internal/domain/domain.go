package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Role is the closed set of principal roles. Exactly one active actor holds
// RoleChiefAdmin at any time.
type Role string

const (
	RoleStaffAssociate Role = "staff-associate"
	RoleCommitteeAdmin Role = "committee-admin"
	RoleChiefAdmin     Role = "chief-admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStaffAssociate, RoleCommitteeAdmin, RoleChiefAdmin:
		return true
	}
	return false
}

type Actor struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Role         Role   `json:"role" enum:"staff-associate,committee-admin,chief-admin"`
	Active       bool   `json:"active"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

// RequestStatus transitions only Pending -> Approved or Pending -> Rejected.
type RequestStatus string

const (
	RequestPending  RequestStatus = "Pending"
	RequestApproved RequestStatus = "Approved"
	RequestRejected RequestStatus = "Rejected"
)

// FundingRequest is immutable after submission except for Status, which is
// owned by the engine's decide transaction.
type FundingRequest struct {
	ID          string          `json:"id"`
	SubmittedBy string          `json:"submitted_by"`
	Title       string          `json:"title"`
	Reason      string          `json:"reason"`
	Amount      decimal.Decimal `json:"amount"`
	Site        string          `json:"site"`
	Partners    string          `json:"partners,omitempty"`
	StartDate   string          `json:"start_date" format:"date"`
	EndDate     string          `json:"end_date" format:"date"`
	SubmittedAt string          `json:"submitted_at" format:"date-time"`
	Status      RequestStatus   `json:"status" enum:"Pending,Approved,Rejected"`
}

type VoteChoice string

const (
	VoteApprove VoteChoice = "Approve"
	VoteReject  VoteChoice = "Reject"
)

func (c VoteChoice) Valid() bool {
	return c == VoteApprove || c == VoteReject
}

// ParseVoteChoice accepts the stored form or its lowercase wire form.
func ParseVoteChoice(s string) (VoteChoice, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve":
		return VoteApprove, true
	case "reject":
		return VoteReject, true
	}
	return "", false
}

// Vote is one committee admin's advisory decision on one request. At most one
// vote exists per (request, admin) pair.
type Vote struct {
	ID        string     `json:"id"`
	RequestID string     `json:"request_id"`
	AdminID   string     `json:"admin_id"`
	Choice    VoteChoice `json:"choice" enum:"Approve,Reject"`
	Remarks   string     `json:"remarks,omitempty"`
	CastAt    string     `json:"cast_at" format:"date-time"`
}

// Tally is the advisory vote count shown to the deciding chief admin. It never
// forces an outcome.
type Tally struct {
	Approve  int      `json:"approve"`
	Reject   int      `json:"reject"`
	VoterIDs []string `json:"voter_ids,omitempty"`
}

type ProjectStatus string

const (
	ProjectOngoing   ProjectStatus = "Ongoing"
	ProjectCompleted ProjectStatus = "Completed"
	ProjectCancelled ProjectStatus = "Cancelled"
)

// Project is created exactly once, when its request is approved. GivenFund is
// copied from the request at approval time and never tracks later edits.
type Project struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"request_id"`
	Status     ProjectStatus   `json:"status" enum:"Ongoing,Completed,Cancelled"`
	GivenFund  decimal.Decimal `json:"given_fund"`
	ApprovedAt string          `json:"approved_at" format:"date-time"`
}

type UpdateKind string

const (
	UpdateExpense  UpdateKind = "expense"
	UpdateProgress UpdateKind = "progress"
)

// ProjectUpdate is a write-once expense or progress entry against a project.
// Amount is zero for progress entries.
type ProjectUpdate struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	PostedBy    string          `json:"posted_by"`
	Kind        UpdateKind      `json:"kind" enum:"expense,progress"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	ReceiptPath *string         `json:"receipt_path,omitempty"`
	SitePath    *string         `json:"site_path,omitempty"`
	PostedAt    string          `json:"posted_at" format:"date-time"`
}

// Comment is an append-only annotation on a project. Anonymous comments carry
// no author reference at all.
type Comment struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	AuthorID  *string `json:"author_id,omitempty"`
	Content   string  `json:"content"`
	Anonymous bool    `json:"anonymous"`
	PostedAt  string  `json:"posted_at" format:"date-time"`
}

// ActionKind is the closed enumeration of auditable actions. Producers and the
// public-log filters both use these literals; extending the set means touching
// this list and nothing else.
type ActionKind string

const (
	ActionCreateUser      ActionKind = "CreateUser"
	ActionDeactivateUser  ActionKind = "DeactivateUser"
	ActionUpdateUser      ActionKind = "UpdateUser"
	ActionCreateRequest   ActionKind = "CreateRequest"
	ActionVoteCast        ActionKind = "VoteCast"
	ActionApproveRequest  ActionKind = "ApproveRequest"
	ActionRejectRequest   ActionKind = "RejectRequest"
	ActionFinalizeRequest ActionKind = "FinalizeRequest"
	ActionProjectUpdate   ActionKind = "ProjectUpdate"
)

// ActionKinds lists every ledger action kind in a stable order.
func ActionKinds() []ActionKind {
	return []ActionKind{
		ActionCreateUser,
		ActionDeactivateUser,
		ActionUpdateUser,
		ActionCreateRequest,
		ActionVoteCast,
		ActionApproveRequest,
		ActionRejectRequest,
		ActionFinalizeRequest,
		ActionProjectUpdate,
	}
}

func (k ActionKind) Valid() bool {
	for _, known := range ActionKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// LedgerEntry is append-only; no update or delete path exists anywhere in the
// codebase.
type LedgerEntry struct {
	ID      int64      `json:"id"`
	TS      string     `json:"ts" format:"date-time"`
	ActorID string     `json:"actor_id"`
	Action  ActionKind `json:"action"`
	Target  string     `json:"target,omitempty"`
	Details string     `json:"details,omitempty"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
