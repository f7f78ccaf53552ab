package repo

import (
	"context"
	"database/sql"

	"fundtrail/internal/domain"
)

func (r Repo) InsertVoteTx(ctx context.Context, tx *sql.Tx, v domain.Vote) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO votes(id,request_id,admin_id,choice,remarks,cast_at) VALUES (?,?,?,?,?,?)`,
		v.ID, v.RequestID, v.AdminID, string(v.Choice), nullable(v.Remarks), v.CastAt)
	return err
}

func (r Repo) GetVoteTx(ctx context.Context, tx *sql.Tx, requestID, adminID string) (domain.Vote, error) {
	var v domain.Vote
	row := tx.QueryRowContext(ctx, `SELECT id,request_id,admin_id,choice,COALESCE(remarks,''),cast_at
FROM votes WHERE request_id=? AND admin_id=?`, requestID, adminID)
	err := row.Scan(&v.ID, &v.RequestID, &v.AdminID, &v.Choice, &v.Remarks, &v.CastAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	return v, err
}

func (r Repo) ListVotes(ctx context.Context, requestID string) ([]domain.Vote, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,request_id,admin_id,choice,COALESCE(remarks,''),cast_at
FROM votes WHERE request_id=? ORDER BY cast_at ASC, id ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Vote
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.ID, &v.RequestID, &v.AdminID, &v.Choice, &v.Remarks, &v.CastAt); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// TallyVotes counts approve and reject votes for a request. Tallies are
// advisory; decisions never derive from them automatically.
func (r Repo) TallyVotes(ctx context.Context, requestID string) (domain.Tally, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT admin_id,choice FROM votes WHERE request_id=? ORDER BY cast_at ASC, id ASC`, requestID)
	if err != nil {
		return domain.Tally{}, err
	}
	defer rows.Close()
	var t domain.Tally
	for rows.Next() {
		var adminID, choice string
		if err := rows.Scan(&adminID, &choice); err != nil {
			return domain.Tally{}, err
		}
		switch domain.VoteChoice(choice) {
		case domain.VoteApprove:
			t.Approve++
		case domain.VoteReject:
			t.Reject++
		}
		t.VoterIDs = append(t.VoterIDs, adminID)
	}
	return t, rows.Err()
}
