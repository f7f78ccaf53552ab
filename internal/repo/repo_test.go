package repo_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"

	"fundtrail/internal/db"
	"fundtrail/internal/domain"
	"fundtrail/internal/migrate"
	"fundtrail/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func seedProject(t *testing.T, ctx context.Context, r repo.Repo, tx *sql.Tx, actorID, suffix, fund, approvedAt string) {
	t.Helper()
	amount := decimal.RequireFromString(fund)
	fr := domain.FundingRequest{
		ID:          "req-" + suffix,
		SubmittedBy: actorID,
		Title:       "Waterline " + suffix,
		Reason:      "Service expansion",
		Amount:      amount,
		Site:        "Barangay Mabini",
		StartDate:   "2026-03-10",
		EndDate:     "2026-06-30",
		SubmittedAt: "2026-03-01T10:00:00Z",
		Status:      domain.RequestApproved,
	}
	if err := r.InsertRequestTx(ctx, tx, fr); err != nil {
		t.Fatalf("insert request %s: %v", suffix, err)
	}
	p := domain.Project{
		ID:         "proj-" + suffix,
		RequestID:  fr.ID,
		Status:     domain.ProjectOngoing,
		GivenFund:  amount,
		ApprovedAt: approvedAt,
	}
	if err := r.InsertProjectTx(ctx, tx, p); err != nil {
		t.Fatalf("insert project %s: %v", suffix, err)
	}
}

func TestListProjectsFundSortIsExact(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	actor := domain.Actor{
		ID: "actor-1", Username: "assoc", Name: "Staff Associate",
		Role: domain.RoleStaffAssociate, Active: true, PasswordHash: "x",
		CreatedAt: "2026-03-01T09:00:00Z", UpdatedAt: "2026-03-01T09:00:00Z",
	}
	if err := r.InsertActorTx(ctx, tx, actor); err != nil {
		t.Fatalf("insert actor: %v", err)
	}
	// These two funds collapse to the same float64; only exact decimal
	// comparison can order them. The smaller fund gets the newer approval so
	// a fallback to recency would also misorder.
	seedProject(t, ctx, r, tx, actor.ID, "small", "100000000000000000.01", "2026-03-02T10:00:00Z")
	seedProject(t, ctx, r, tx, actor.ID, "big", "100000000000000000.02", "2026-03-01T10:00:00Z")
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	items, err := r.ListProjects(ctx, repo.ProjectSortFund)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d projects, want 2", len(items))
	}
	if items[0].Project.ID != "proj-big" || items[1].Project.ID != "proj-small" {
		t.Errorf("fund order = %s, %s; want proj-big first", items[0].Project.ID, items[1].Project.ID)
	}

	recent, err := r.ListProjects(ctx, repo.ProjectSortRecent)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if recent[0].Project.ID != "proj-small" {
		t.Errorf("recent order starts with %s, want proj-small", recent[0].Project.ID)
	}
}
