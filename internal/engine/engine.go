package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fundtrail/internal/config"
	"fundtrail/internal/domain"
	"fundtrail/internal/engine/authz"
	"fundtrail/internal/ledger"
	"fundtrail/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Ledger ledger.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Ledger: ledger.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ledger returns the audit writer sharing the engine's clock.
func (e Engine) ledger() ledger.Writer {
	w := e.Ledger
	if w.Now == nil {
		w.Now = e.Now
	}
	return w
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

const dateLayout = "2006-01-02"

func detailsJSON(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// --- actors ---

// CreateActorOptions are parameters for creating an actor. Password is the
// plaintext; only its bcrypt hash is stored.
type CreateActorOptions struct {
	Username string
	Name     string
	Role     domain.Role
	Password string
	ActorID  string
}

func (e Engine) CreateActor(ctx context.Context, opts CreateActorOptions) (domain.Actor, error) {
	if opts.Username == "" {
		return domain.Actor{}, errors.New("username is required")
	}
	if opts.Name == "" {
		return domain.Actor{}, errors.New("name is required")
	}
	if !opts.Role.Valid() {
		return domain.Actor{}, fmt.Errorf("unknown role %q", opts.Role)
	}
	if len(opts.Password) < 8 {
		return domain.Actor{}, errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Actor{}, err
	}
	now := e.nowRFC3339()
	a := domain.Actor{
		ID:           uuid.NewString(),
		Username:     opts.Username,
		Name:         opts.Name,
		Role:         opts.Role,
		Active:       true,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()

	count, err := e.Repo.CountActorsTx(ctx, tx)
	if err != nil {
		return domain.Actor{}, err
	}
	ledgerActor := opts.ActorID
	if count == 0 {
		// Bootstrap: the first actor must be a chief and needs no principal.
		if a.Role != domain.RoleChiefAdmin {
			return domain.Actor{}, fmt.Errorf("first actor must have role %s", domain.RoleChiefAdmin)
		}
		ledgerActor = a.ID
	} else {
		acting, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
		if err != nil {
			return domain.Actor{}, err
		}
		if err := authz.CanManageActors(acting); err != nil {
			return domain.Actor{}, err
		}
	}
	if a.Role == domain.RoleChiefAdmin {
		chiefs, err := e.Repo.CountActiveChiefsTx(ctx, tx)
		if err != nil {
			return domain.Actor{}, err
		}
		if chiefs > 0 {
			return domain.Actor{}, InvalidStateError{Entity: "actor", ID: a.Username, State: "chief exists", Op: "create another chief"}
		}
	}
	if err := e.Repo.InsertActorTx(ctx, tx, a); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.Actor{}, fmt.Errorf("username %s already taken", a.Username)
		}
		return domain.Actor{}, err
	}
	if err := e.ledger().Append(ctx, tx, ledgerActor, domain.ActionCreateUser, a.ID, detailsJSON(map[string]any{
		"username": a.Username, "role": string(a.Role),
	})); err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}

// UpdateActorOptions holds mutable actor fields; nil leaves a field unchanged.
type UpdateActorOptions struct {
	Name     *string
	Role     *domain.Role
	Password *string
	ActorID  string
}

func (e Engine) UpdateActor(ctx context.Context, id string, opts UpdateActorOptions) (domain.Actor, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()

	acting, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.Actor{}, err
	}
	if err := authz.CanManageActors(acting); err != nil {
		return domain.Actor{}, err
	}
	a, err := e.Repo.GetActorTx(ctx, tx, id)
	if err != nil {
		return domain.Actor{}, err
	}
	if opts.Name != nil {
		if *opts.Name == "" {
			return domain.Actor{}, errors.New("name cannot be empty")
		}
		a.Name = *opts.Name
	}
	if opts.Role != nil {
		if !opts.Role.Valid() {
			return domain.Actor{}, fmt.Errorf("unknown role %q", *opts.Role)
		}
		if *opts.Role == domain.RoleChiefAdmin && a.Role != domain.RoleChiefAdmin {
			chiefs, err := e.Repo.CountActiveChiefsTx(ctx, tx)
			if err != nil {
				return domain.Actor{}, err
			}
			if chiefs > 0 {
				return domain.Actor{}, InvalidStateError{Entity: "actor", ID: a.Username, State: "chief exists", Op: "promote to chief"}
			}
		}
		a.Role = *opts.Role
	}
	if opts.Password != nil {
		if len(*opts.Password) < 8 {
			return domain.Actor{}, errors.New("password must be at least 8 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Actor{}, err
		}
		a.PasswordHash = string(hash)
	}
	a.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateActorTx(ctx, tx, a); err != nil {
		return domain.Actor{}, err
	}
	if err := e.ledger().Append(ctx, tx, opts.ActorID, domain.ActionUpdateUser, a.ID, detailsJSON(map[string]any{
		"username": a.Username, "role": string(a.Role),
	})); err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}

func (e Engine) DeactivateActor(ctx context.Context, id, actorID string) (domain.Actor, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()

	acting, err := e.Repo.GetActorTx(ctx, tx, actorID)
	if err != nil {
		return domain.Actor{}, err
	}
	if err := authz.CanManageActors(acting); err != nil {
		return domain.Actor{}, err
	}
	if acting.ID == id {
		return domain.Actor{}, authz.ForbiddenError{Action: "deactivate-actor", Reason: "cannot deactivate yourself"}
	}
	a, err := e.Repo.GetActorTx(ctx, tx, id)
	if err != nil {
		return domain.Actor{}, err
	}
	if !a.Active {
		return domain.Actor{}, InvalidStateError{Entity: "actor", ID: a.ID, State: "deactivated", Op: "deactivate"}
	}
	a.Active = false
	a.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateActorTx(ctx, tx, a); err != nil {
		return domain.Actor{}, err
	}
	if err := e.ledger().Append(ctx, tx, actorID, domain.ActionDeactivateUser, a.ID, detailsJSON(map[string]any{
		"username": a.Username,
	})); err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}

// Authenticate checks a username/password pair and returns the actor.
// Failures are indistinguishable between unknown user and wrong password.
func (e Engine) Authenticate(ctx context.Context, username, password string) (domain.Actor, error) {
	a, err := e.Repo.GetActorByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Actor{}, errors.New("invalid credentials")
		}
		return domain.Actor{}, err
	}
	if !a.Active {
		return domain.Actor{}, errors.New("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return domain.Actor{}, errors.New("invalid credentials")
	}
	return a, nil
}

// --- funding requests ---

type SubmitRequestOptions struct {
	Title     string
	Reason    string
	Amount    string
	Site      string
	Partners  string
	StartDate string
	EndDate   string
	ActorID   string
}

func (e Engine) SubmitRequest(ctx context.Context, opts SubmitRequestOptions) (domain.FundingRequest, error) {
	if opts.Title == "" {
		return domain.FundingRequest{}, errors.New("title is required")
	}
	if opts.Reason == "" {
		return domain.FundingRequest{}, errors.New("reason is required")
	}
	if opts.Site == "" {
		return domain.FundingRequest{}, errors.New("site is required")
	}
	amount, err := parseAmount(opts.Amount)
	if err != nil {
		return domain.FundingRequest{}, err
	}
	start, err := time.Parse(dateLayout, opts.StartDate)
	if err != nil {
		return domain.FundingRequest{}, fmt.Errorf("start_date must be YYYY-MM-DD: %w", err)
	}
	end, err := time.Parse(dateLayout, opts.EndDate)
	if err != nil {
		return domain.FundingRequest{}, fmt.Errorf("end_date must be YYYY-MM-DD: %w", err)
	}
	if end.Before(start) {
		return domain.FundingRequest{}, errors.New("end_date must not precede start_date")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FundingRequest{}, err
	}
	defer tx.Rollback()

	acting, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.FundingRequest{}, err
	}
	if err := authz.CanSubmitRequest(acting); err != nil {
		return domain.FundingRequest{}, err
	}
	fr := domain.FundingRequest{
		ID:          uuid.NewString(),
		SubmittedBy: acting.ID,
		Title:       opts.Title,
		Reason:      opts.Reason,
		Amount:      amount,
		Site:        opts.Site,
		Partners:    opts.Partners,
		StartDate:   opts.StartDate,
		EndDate:     opts.EndDate,
		SubmittedAt: e.nowRFC3339(),
		Status:      domain.RequestPending,
	}
	if err := e.Repo.InsertRequestTx(ctx, tx, fr); err != nil {
		return domain.FundingRequest{}, err
	}
	if err := e.ledger().Append(ctx, tx, acting.ID, domain.ActionCreateRequest, fr.ID, detailsJSON(map[string]any{
		"title": fr.Title, "amount": fr.Amount.String(),
	})); err != nil {
		return domain.FundingRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.FundingRequest{}, err
	}
	return fr, nil
}

// --- voting ---

type CastVoteOptions struct {
	RequestID string
	Choice    domain.VoteChoice
	Remarks   string
	ActorID   string
}

func (e Engine) CastVote(ctx context.Context, opts CastVoteOptions) (domain.Vote, error) {
	if !opts.Choice.Valid() {
		return domain.Vote{}, fmt.Errorf("unknown vote choice %q", opts.Choice)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Vote{}, err
	}
	defer tx.Rollback()

	acting, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.Vote{}, err
	}
	if err := authz.CanVote(acting); err != nil {
		return domain.Vote{}, err
	}
	fr, err := e.Repo.GetRequestTx(ctx, tx, opts.RequestID)
	if err != nil {
		return domain.Vote{}, err
	}
	if fr.Status != domain.RequestPending {
		return domain.Vote{}, InvalidStateError{Entity: "request", ID: fr.ID, State: string(fr.Status), Op: "vote"}
	}
	if _, err := e.Repo.GetVoteTx(ctx, tx, fr.ID, acting.ID); err == nil {
		return domain.Vote{}, DuplicateVoteError{RequestID: fr.ID, AdminID: acting.ID}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Vote{}, err
	}
	v := domain.Vote{
		ID:        uuid.NewString(),
		RequestID: fr.ID,
		AdminID:   acting.ID,
		Choice:    opts.Choice,
		Remarks:   opts.Remarks,
		CastAt:    e.nowRFC3339(),
	}
	if err := e.Repo.InsertVoteTx(ctx, tx, v); err != nil {
		// The unique index catches two concurrent first votes.
		if repo.IsUniqueViolation(err) {
			return domain.Vote{}, DuplicateVoteError{RequestID: fr.ID, AdminID: acting.ID}
		}
		return domain.Vote{}, err
	}
	if err := e.ledger().Append(ctx, tx, acting.ID, domain.ActionVoteCast, fr.ID, detailsJSON(map[string]any{
		"choice": string(v.Choice),
	})); err != nil {
		return domain.Vote{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Vote{}, err
	}
	return v, nil
}

// --- decisions ---

type DecisionOptions struct {
	RequestID string
	Approve   bool
	Remarks   string
	ActorID   string
}

// Decide is the direct decision path: an authorized admin settles the request
// in one step, and the decision is recorded as that admin's vote as well.
func (e Engine) Decide(ctx context.Context, opts DecisionOptions) (domain.FundingRequest, error) {
	return e.settle(ctx, opts, false)
}

// Finalize is the chief's closing decision after committee voting.
func (e Engine) Finalize(ctx context.Context, opts DecisionOptions) (domain.FundingRequest, error) {
	return e.settle(ctx, opts, true)
}

func (e Engine) settle(ctx context.Context, opts DecisionOptions, finalize bool) (domain.FundingRequest, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FundingRequest{}, err
	}
	defer tx.Rollback()

	acting, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.FundingRequest{}, err
	}
	if finalize {
		err = authz.CanFinalize(acting)
	} else {
		err = authz.CanDirectDecide(acting, e.allowCommitteeDecide())
	}
	if err != nil {
		return domain.FundingRequest{}, err
	}
	fr, err := e.Repo.GetRequestTx(ctx, tx, opts.RequestID)
	if err != nil {
		return domain.FundingRequest{}, err
	}
	status := domain.RequestRejected
	if opts.Approve {
		status = domain.RequestApproved
	}
	moved, err := e.Repo.DecideRequestTx(ctx, tx, fr.ID, status)
	if err != nil {
		return domain.FundingRequest{}, err
	}
	if !moved {
		// Lost the race or the request was already decided.
		return domain.FundingRequest{}, InvalidStateError{Entity: "request", ID: fr.ID, State: string(fr.Status), Op: "decide"}
	}
	fr.Status = status

	if !finalize && acting.Role == domain.RoleCommitteeAdmin {
		// A direct decision by a committee admin also counts as their vote,
		// unless they already voted.
		if _, err := e.Repo.GetVoteTx(ctx, tx, fr.ID, acting.ID); errors.Is(err, repo.ErrNotFound) {
			choice := domain.VoteReject
			if opts.Approve {
				choice = domain.VoteApprove
			}
			v := domain.Vote{
				ID:        uuid.NewString(),
				RequestID: fr.ID,
				AdminID:   acting.ID,
				Choice:    choice,
				Remarks:   opts.Remarks,
				CastAt:    e.nowRFC3339(),
			}
			if err := e.Repo.InsertVoteTx(ctx, tx, v); err != nil {
				return domain.FundingRequest{}, err
			}
		} else if err != nil {
			return domain.FundingRequest{}, err
		}
	}

	if opts.Approve {
		p := domain.Project{
			ID:         uuid.NewString(),
			RequestID:  fr.ID,
			Status:     domain.ProjectOngoing,
			GivenFund:  fr.Amount,
			ApprovedAt: e.nowRFC3339(),
		}
		if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
			return domain.FundingRequest{}, err
		}
	}

	action := domain.ActionRejectRequest
	if opts.Approve {
		action = domain.ActionApproveRequest
	}
	if finalize {
		action = domain.ActionFinalizeRequest
	}
	if err := e.ledger().Append(ctx, tx, acting.ID, action, fr.ID, detailsJSON(map[string]any{
		"status": string(status), "remarks": opts.Remarks,
	})); err != nil {
		return domain.FundingRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.FundingRequest{}, err
	}
	return fr, nil
}

func (e Engine) allowCommitteeDecide() bool {
	return e.Config != nil && e.Config.Workflow.AllowDirectDecide
}

// --- projects ---

func (e Engine) SetProjectStatus(ctx context.Context, projectID string, status domain.ProjectStatus, actorID string) (domain.Project, error) {
	if status != domain.ProjectCompleted && status != domain.ProjectCancelled {
		return domain.Project{}, fmt.Errorf("cannot set project status to %q", status)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	acting, err := e.Repo.GetActorTx(ctx, tx, actorID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := authz.CanSetProjectStatus(acting); err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	moved, err := e.Repo.SetProjectStatusTx(ctx, tx, p.ID, status)
	if err != nil {
		return domain.Project{}, err
	}
	if !moved {
		return domain.Project{}, InvalidStateError{Entity: "project", ID: p.ID, State: string(p.Status), Op: "change status"}
	}
	p.Status = status
	if err := e.ledger().Append(ctx, tx, acting.ID, domain.ActionProjectUpdate, p.ID, detailsJSON(map[string]any{
		"status": string(status),
	})); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// --- comments ---

type AddCommentOptions struct {
	ProjectID string
	Content   string
	Anonymous bool
	ActorID   string
}

// AddComment attaches a comment to a project. Comments are discussion, not
// fund actions, so they do not enter the ledger.
func (e Engine) AddComment(ctx context.Context, opts AddCommentOptions) (domain.Comment, error) {
	if opts.Content == "" {
		return domain.Comment{}, errors.New("content is required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()

	acting, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.Comment{}, err
	}
	if err := authz.EnsureActive(acting); err != nil {
		return domain.Comment{}, err
	}
	if _, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID); err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:        uuid.NewString(),
		ProjectID: opts.ProjectID,
		Content:   opts.Content,
		Anonymous: opts.Anonymous,
		PostedAt:  e.nowRFC3339(),
	}
	if !opts.Anonymous {
		c.AuthorID = &acting.ID
	}
	if err := e.Repo.InsertCommentTx(ctx, tx, c); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}
