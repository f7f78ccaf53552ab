package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fundtrail/internal/domain"
	"fundtrail/internal/engine/authz"
)

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, errors.New("amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount must be a decimal number: %w", err)
	}
	if !amount.IsPositive() {
		return decimal.Zero, errors.New("amount must be positive")
	}
	return amount, nil
}

// RemainingBalance recomputes the project's remaining fund from its posted
// expenses. Nothing caches the balance; the expense history is the source of
// truth.
func (e Engine) RemainingBalance(ctx context.Context, projectID string) (decimal.Decimal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return decimal.Zero, err
	}
	spent, err := e.Repo.SumExpensesTx(ctx, tx, p.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.GivenFund.Sub(spent), tx.Commit()
}

type PostUpdateOptions struct {
	ProjectID   string
	Title       string
	Description string
	Amount      string
	ReceiptPath string
	SitePath    string
	ActorID     string
}

// PostExpense records an expense against a project. The budget and deadline
// gates run inside the same transaction as the insert, so concurrent posts
// cannot jointly overdraw the fund.
func (e Engine) PostExpense(ctx context.Context, opts PostUpdateOptions) (domain.ProjectUpdate, error) {
	amount, err := parseAmount(opts.Amount)
	if err != nil {
		return domain.ProjectUpdate{}, err
	}
	return e.postUpdate(ctx, opts, domain.UpdateExpense, amount)
}

// PostProgress records a non-financial progress note. It passes the deadline
// gate but never touches the budget.
func (e Engine) PostProgress(ctx context.Context, opts PostUpdateOptions) (domain.ProjectUpdate, error) {
	return e.postUpdate(ctx, opts, domain.UpdateProgress, decimal.Zero)
}

func (e Engine) postUpdate(ctx context.Context, opts PostUpdateOptions, kind domain.UpdateKind, amount decimal.Decimal) (domain.ProjectUpdate, error) {
	if opts.Title == "" {
		return domain.ProjectUpdate{}, errors.New("title is required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectUpdate{}, err
	}
	defer tx.Rollback()

	acting, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.ProjectUpdate{}, err
	}
	p, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID)
	if err != nil {
		return domain.ProjectUpdate{}, err
	}
	fr, err := e.Repo.GetRequestTx(ctx, tx, p.RequestID)
	if err != nil {
		return domain.ProjectUpdate{}, err
	}
	if err := authz.CanPostUpdate(acting, fr.SubmittedBy); err != nil {
		return domain.ProjectUpdate{}, err
	}
	if p.Status != domain.ProjectOngoing {
		return domain.ProjectUpdate{}, InvalidStateError{Entity: "project", ID: p.ID, State: string(p.Status), Op: "post update"}
	}
	end, err := time.Parse(dateLayout, fr.EndDate)
	if err != nil {
		return domain.ProjectUpdate{}, fmt.Errorf("parse end_date: %w", err)
	}
	today := e.now().UTC().Truncate(24 * time.Hour)
	if today.After(end) {
		return domain.ProjectUpdate{}, DeadlineExpiredError{ProjectID: p.ID, EndDate: fr.EndDate}
	}
	if kind == domain.UpdateExpense {
		spent, err := e.Repo.SumExpensesTx(ctx, tx, p.ID)
		if err != nil {
			return domain.ProjectUpdate{}, err
		}
		remaining := p.GivenFund.Sub(spent)
		if amount.GreaterThan(remaining) {
			return domain.ProjectUpdate{}, BudgetExceededError{ProjectID: p.ID, Remaining: remaining}
		}
	}
	u := domain.ProjectUpdate{
		ID:          uuid.NewString(),
		ProjectID:   p.ID,
		PostedBy:    acting.ID,
		Kind:        kind,
		Title:       opts.Title,
		Description: opts.Description,
		Amount:      amount,
		PostedAt:    e.nowRFC3339(),
	}
	if opts.ReceiptPath != "" {
		u.ReceiptPath = &opts.ReceiptPath
	}
	if opts.SitePath != "" {
		u.SitePath = &opts.SitePath
	}
	if err := e.Repo.InsertUpdateTx(ctx, tx, u); err != nil {
		return domain.ProjectUpdate{}, err
	}
	if err := e.ledger().Append(ctx, tx, acting.ID, domain.ActionProjectUpdate, p.ID, detailsJSON(map[string]any{
		"kind": string(kind), "title": u.Title, "amount": amount.String(),
	})); err != nil {
		return domain.ProjectUpdate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectUpdate{}, err
	}
	return u, nil
}
