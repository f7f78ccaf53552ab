package server

import (
	"fundtrail/internal/domain"
	"fundtrail/internal/repo"
)

type LoginRequest struct {
	Username string `json:"username" example:"mara"`
	Password string `json:"password" example:"secret-pass"`
}

type LoginResponse struct {
	Token   string        `json:"token"`
	ActorID string        `json:"actor_id"`
	Role    string        `json:"role"`
	Actor   ActorResponse `json:"actor"`
}

type CreateActorRequest struct {
	Username string `json:"username" minLength:"1"`
	Name     string `json:"name" minLength:"1"`
	Role     string `json:"role" enum:"staff-associate,committee-admin,chief-admin"`
	Password string `json:"password" minLength:"8"`
}

type UpdateActorRequest struct {
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty" enum:"staff-associate,committee-admin,chief-admin"`
	Password *string `json:"password,omitempty"`
}

type ActorResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func actorResponse(a domain.Actor) ActorResponse {
	return ActorResponse{
		ID:        a.ID,
		Username:  a.Username,
		Name:      a.Name,
		Role:      string(a.Role),
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func mapActors(items []domain.Actor) []ActorResponse {
	res := make([]ActorResponse, 0, len(items))
	for _, a := range items {
		res = append(res, actorResponse(a))
	}
	return res
}

type SubmitRequestRequest struct {
	Title     string `json:"title" minLength:"1"`
	Reason    string `json:"reason" minLength:"1"`
	Amount    string `json:"amount" example:"50000"`
	Site      string `json:"site" minLength:"1"`
	Partners  string `json:"partners,omitempty"`
	StartDate string `json:"start_date" example:"2026-01-15"`
	EndDate   string `json:"end_date" example:"2026-06-30"`
}

type RequestResponse struct {
	ID          string `json:"id"`
	SubmittedBy string `json:"submitted_by"`
	Title       string `json:"title"`
	Reason      string `json:"reason"`
	Amount      string `json:"amount"`
	Site        string `json:"site"`
	Partners    string `json:"partners,omitempty"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	SubmittedAt string `json:"submitted_at"`
	Status      string `json:"status"`
}

func requestResponse(fr domain.FundingRequest) RequestResponse {
	return RequestResponse{
		ID:          fr.ID,
		SubmittedBy: fr.SubmittedBy,
		Title:       fr.Title,
		Reason:      fr.Reason,
		Amount:      fr.Amount.String(),
		Site:        fr.Site,
		Partners:    fr.Partners,
		StartDate:   fr.StartDate,
		EndDate:     fr.EndDate,
		SubmittedAt: fr.SubmittedAt,
		Status:      string(fr.Status),
	}
}

func mapRequests(items []domain.FundingRequest) []RequestResponse {
	res := make([]RequestResponse, 0, len(items))
	for _, fr := range items {
		res = append(res, requestResponse(fr))
	}
	return res
}

type CastVoteRequest struct {
	Choice  string `json:"choice" enum:"approve,reject"`
	Remarks string `json:"remarks,omitempty"`
}

type VoteResponse struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
	AdminID   string `json:"admin_id"`
	Choice    string `json:"choice"`
	Remarks   string `json:"remarks,omitempty"`
	CastAt    string `json:"cast_at"`
}

func voteResponse(v domain.Vote) VoteResponse {
	return VoteResponse{
		ID:        v.ID,
		RequestID: v.RequestID,
		AdminID:   v.AdminID,
		Choice:    string(v.Choice),
		Remarks:   v.Remarks,
		CastAt:    v.CastAt,
	}
}

type TallyResponse struct {
	Approve  int      `json:"approve"`
	Reject   int      `json:"reject"`
	VoterIDs []string `json:"voter_ids"`
}

func tallyResponse(t domain.Tally) TallyResponse {
	voters := t.VoterIDs
	if voters == nil {
		voters = []string{}
	}
	return TallyResponse{Approve: t.Approve, Reject: t.Reject, VoterIDs: voters}
}

type DecisionRequest struct {
	Approve bool   `json:"approve"`
	Remarks string `json:"remarks,omitempty"`
}

type ProjectResponse struct {
	ID            string `json:"id"`
	RequestID     string `json:"request_id"`
	Status        string `json:"status"`
	GivenFund     string `json:"given_fund"`
	ApprovedAt    string `json:"approved_at"`
	Title         string `json:"title,omitempty"`
	Site          string `json:"site,omitempty"`
	EndDate       string `json:"end_date,omitempty"`
	DaysRemaining *int   `json:"days_remaining,omitempty"`
	Urgent        *bool  `json:"urgent,omitempty"`
	Overdue       *bool  `json:"overdue,omitempty"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:         p.ID,
		RequestID:  p.RequestID,
		Status:     string(p.Status),
		GivenFund:  p.GivenFund.String(),
		ApprovedAt: p.ApprovedAt,
	}
}

type SetProjectStatusRequest struct {
	Status string `json:"status" enum:"Completed,Cancelled"`
}

type PostUpdateRequest struct {
	Kind        string `json:"kind" enum:"expense,progress"`
	Title       string `json:"title" minLength:"1"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount,omitempty" example:"2500"`
	ReceiptPath string `json:"receipt_path,omitempty"`
	SitePath    string `json:"site_path,omitempty"`
}

type UpdateResponse struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	PostedBy    string  `json:"posted_by"`
	Kind        string  `json:"kind"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Amount      string  `json:"amount"`
	ReceiptPath *string `json:"receipt_path,omitempty"`
	SitePath    *string `json:"site_path,omitempty"`
	PostedAt    string  `json:"posted_at"`
}

func updateResponse(u domain.ProjectUpdate) UpdateResponse {
	return UpdateResponse{
		ID:          u.ID,
		ProjectID:   u.ProjectID,
		PostedBy:    u.PostedBy,
		Kind:        string(u.Kind),
		Title:       u.Title,
		Description: u.Description,
		Amount:      u.Amount.String(),
		ReceiptPath: u.ReceiptPath,
		SitePath:    u.SitePath,
		PostedAt:    u.PostedAt,
	}
}

func mapUpdates(items []domain.ProjectUpdate) []UpdateResponse {
	res := make([]UpdateResponse, 0, len(items))
	for _, u := range items {
		res = append(res, updateResponse(u))
	}
	return res
}

type AddCommentRequest struct {
	Content   string `json:"content" minLength:"1"`
	Anonymous bool   `json:"anonymous,omitempty"`
}

type CommentResponse struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	AuthorID  *string `json:"author_id,omitempty"`
	Content   string  `json:"content"`
	Anonymous bool    `json:"anonymous"`
	PostedAt  string  `json:"posted_at"`
}

func commentResponse(c domain.Comment) CommentResponse {
	return CommentResponse{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		AuthorID:  c.AuthorID,
		Content:   c.Content,
		Anonymous: c.Anonymous,
		PostedAt:  c.PostedAt,
	}
}

func mapComments(items []domain.Comment) []CommentResponse {
	res := make([]CommentResponse, 0, len(items))
	for _, c := range items {
		res = append(res, commentResponse(c))
	}
	return res
}

type LedgerEntryResponse struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts"`
	ActorID string `json:"actor_id"`
	Action  string `json:"action"`
	Target  string `json:"target,omitempty"`
	Details string `json:"details,omitempty"`
}

func ledgerResponse(e domain.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:      e.ID,
		TS:      e.TS,
		ActorID: e.ActorID,
		Action:  string(e.Action),
		Target:  e.Target,
		Details: e.Details,
	}
}

func mapLedger(items []domain.LedgerEntry) []LedgerEntryResponse {
	res := make([]LedgerEntryResponse, 0, len(items))
	for _, e := range items {
		res = append(res, ledgerResponse(e))
	}
	return res
}

func projectWithRequestResponse(pr repo.ProjectWithRequest, days *int, urgent, overdue *bool) ProjectResponse {
	resp := projectResponse(pr.Project)
	resp.Title = pr.Request.Title
	resp.Site = pr.Request.Site
	resp.EndDate = pr.Request.EndDate
	resp.DaysRemaining = days
	resp.Urgent = urgent
	resp.Overdue = overdue
	return resp
}
