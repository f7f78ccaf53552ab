package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"fundtrail/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// IsUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
// The unique indexes on votes and actors are the storage-level backstop for
// checks the engine also performs in-transaction.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- funding requests ---

const requestColumns = `id,submitted_by,title,reason,amount,site,COALESCE(partners,''),start_date,end_date,submitted_at,status`

func scanRequest(scan func(dest ...any) error) (domain.FundingRequest, error) {
	var r domain.FundingRequest
	var amount string
	err := scan(&r.ID, &r.SubmittedBy, &r.Title, &r.Reason, &amount, &r.Site, &r.Partners,
		&r.StartDate, &r.EndDate, &r.SubmittedAt, &r.Status)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	r.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return r, fmt.Errorf("parse request amount: %w", err)
	}
	return r, nil
}

func (r Repo) InsertRequestTx(ctx context.Context, tx *sql.Tx, fr domain.FundingRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO requests(id,submitted_by,title,reason,amount,site,partners,start_date,end_date,submitted_at,status)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		fr.ID, fr.SubmittedBy, fr.Title, fr.Reason, fr.Amount.String(), fr.Site, nullable(fr.Partners),
		fr.StartDate, fr.EndDate, fr.SubmittedAt, string(fr.Status))
	return err
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.FundingRequest, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id=?`, id)
	return scanRequest(row.Scan)
}

func (r Repo) GetRequestTx(ctx context.Context, tx *sql.Tx, id string) (domain.FundingRequest, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id=?`, id)
	return scanRequest(row.Scan)
}

type RequestFilters struct {
	Status      domain.RequestStatus
	SubmittedBy string
	Limit       int
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.FundingRequest, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.SubmittedBy != "" {
		clauses = append(clauses, "submitted_by=?")
		args = append(args, f.SubmittedBy)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + requestColumns + ` FROM requests ` + where + ` ORDER BY submitted_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FundingRequest
	for rows.Next() {
		fr, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, fr)
	}
	return res, rows.Err()
}

// DecideRequestTx atomically moves a Pending request to its decided status.
// It returns false when the request was not Pending, which callers must treat
// as a lost race, never as success.
func (r Repo) DecideRequestTx(ctx context.Context, tx *sql.Tx, id string, status domain.RequestStatus) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE requests SET status=? WHERE id=? AND status=?`,
		string(status), id, string(domain.RequestPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// --- projects ---

const projectColumns = `id,request_id,status,given_fund,approved_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var fund string
	err := scan(&p.ID, &p.RequestID, &p.Status, &fund, &p.ApprovedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.GivenFund, err = decimal.NewFromString(fund)
	if err != nil {
		return p, fmt.Errorf("parse project fund: %w", err)
	}
	return p, nil
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,request_id,status,given_fund,approved_at) VALUES (?,?,?,?,?)`,
		p.ID, p.RequestID, string(p.Status), p.GivenFund.String(), p.ApprovedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProject(row.Scan)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProject(row.Scan)
}

func (r Repo) GetProjectByRequest(ctx context.Context, requestID string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE request_id=?`, requestID)
	return scanProject(row.Scan)
}

// ProjectWithRequest pairs a project with its originating request; deadline
// and export reads need both.
type ProjectWithRequest struct {
	Project domain.Project
	Request domain.FundingRequest
}

type ProjectSort string

const (
	ProjectSortRecent ProjectSort = "recent"
	ProjectSortFund   ProjectSort = "fund"
)

func (r Repo) ListProjects(ctx context.Context, by ProjectSort) ([]ProjectWithRequest, error) {
	query := `SELECT p.id,p.request_id,p.status,p.given_fund,p.approved_at,
r.id,r.submitted_by,r.title,r.reason,r.amount,r.site,COALESCE(r.partners,''),r.start_date,r.end_date,r.submitted_at,r.status
FROM projects p JOIN requests r ON r.id = p.request_id ORDER BY p.approved_at DESC, p.id DESC`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ProjectWithRequest
	for rows.Next() {
		var p domain.Project
		var fr domain.FundingRequest
		var fund, amount string
		if err := rows.Scan(&p.ID, &p.RequestID, &p.Status, &fund, &p.ApprovedAt,
			&fr.ID, &fr.SubmittedBy, &fr.Title, &fr.Reason, &amount, &fr.Site, &fr.Partners,
			&fr.StartDate, &fr.EndDate, &fr.SubmittedAt, &fr.Status); err != nil {
			return nil, err
		}
		if p.GivenFund, err = decimal.NewFromString(fund); err != nil {
			return nil, fmt.Errorf("parse project fund: %w", err)
		}
		if fr.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse request amount: %w", err)
		}
		res = append(res, ProjectWithRequest{Project: p, Request: fr})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if by == ProjectSortFund {
		// Funds are decimal text; comparing in Go stays exact where a float
		// CAST would collapse large near-equal amounts.
		sort.SliceStable(res, func(i, j int) bool {
			return res[i].Project.GivenFund.GreaterThan(res[j].Project.GivenFund)
		})
	}
	return res, nil
}

// SetProjectStatusTx moves an Ongoing project to a terminal status. Returns
// false when the project was not Ongoing.
func (r Repo) SetProjectStatusTx(ctx context.Context, tx *sql.Tx, id string, status domain.ProjectStatus) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET status=? WHERE id=? AND status=?`,
		string(status), id, string(domain.ProjectOngoing))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// --- project updates ---

func (r Repo) InsertUpdateTx(ctx context.Context, tx *sql.Tx, u domain.ProjectUpdate) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_updates(id,project_id,posted_by,kind,title,description,amount,receipt_path,site_path,posted_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.ProjectID, u.PostedBy, string(u.Kind), u.Title, nullable(u.Description),
		u.Amount.String(), nullableStringPtr(u.ReceiptPath), nullableStringPtr(u.SitePath), u.PostedAt)
	return err
}

func (r Repo) ListUpdates(ctx context.Context, projectID string) ([]domain.ProjectUpdate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,posted_by,kind,title,COALESCE(description,''),amount,receipt_path,site_path,posted_at
FROM project_updates WHERE project_id=? ORDER BY posted_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectUpdate
	for rows.Next() {
		var u domain.ProjectUpdate
		var amount string
		var receipt, site sql.NullString
		if err := rows.Scan(&u.ID, &u.ProjectID, &u.PostedBy, &u.Kind, &u.Title, &u.Description,
			&amount, &receipt, &site, &u.PostedAt); err != nil {
			return nil, err
		}
		if u.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse update amount: %w", err)
		}
		if receipt.Valid {
			u.ReceiptPath = &receipt.String
		}
		if site.Valid {
			u.SitePath = &site.String
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// SumExpensesTx totals posted expense amounts for a project within the
// caller's transaction, so budget checks see every committed post.
func (r Repo) SumExpensesTx(ctx context.Context, tx *sql.Tx, projectID string) (decimal.Decimal, error) {
	rows, err := tx.QueryContext(ctx, `SELECT amount FROM project_updates WHERE project_id=? AND kind=?`,
		projectID, string(domain.UpdateExpense))
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()
	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse expense amount: %w", err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

// --- comments ---

func (r Repo) InsertCommentTx(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,project_id,author_id,content,anonymous,posted_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.ProjectID, nullableStringPtr(c.AuthorID), c.Content, boolToInt(c.Anonymous), c.PostedAt)
	return err
}

func (r Repo) ListComments(ctx context.Context, projectID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,author_id,content,anonymous,posted_at
FROM comments WHERE project_id=? ORDER BY posted_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		var author sql.NullString
		var anon int
		if err := rows.Scan(&c.ID, &c.ProjectID, &author, &c.Content, &anon, &c.PostedAt); err != nil {
			return nil, err
		}
		if author.Valid {
			c.AuthorID = &author.String
		}
		c.Anonymous = anon != 0
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- ledger reads ---

type LedgerFilters struct {
	Actions []domain.ActionKind
	ActorID string
	Limit   int
	Cursor  int64
}

// ListLedger returns ledger entries newest first, optionally filtered to a set
// of action kinds.
func (r Repo) ListLedger(ctx context.Context, f LedgerFilters) ([]domain.LedgerEntry, error) {
	clauses := []string{"1=1"}
	var args []any
	if len(f.Actions) > 0 {
		placeholders := make([]string, len(f.Actions))
		for i, action := range f.Actions {
			placeholders[i] = "?"
			args = append(args, string(action))
		}
		clauses = append(clauses, "action IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT id,ts,actor_id,action,COALESCE(target,''),COALESCE(details,'') FROM ledger WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(clauses, " AND "))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedgerRows(rows)
}

// LedgerAfter returns entries with IDs greater than the cursor in ascending
// order, for the webhook dispatcher.
func (r Repo) LedgerAfter(ctx context.Context, limit int, cursor int64) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,actor_id,action,COALESCE(target,''),COALESCE(details,'') FROM ledger WHERE id>? ORDER BY id ASC LIMIT ?`,
		cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedgerRows(rows)
}

// LatestLedgerID returns the most recent ledger entry ID.
func (r Repo) LatestLedgerID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM ledger`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func scanLedgerRows(rows *sql.Rows) ([]domain.LedgerEntry, error) {
	var res []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TS, &e.ActorID, &e.Action, &e.Target, &e.Details); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
