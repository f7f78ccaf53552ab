package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"

	"fundtrail/internal/domain"
)

const actorColumns = `id,username,name,role,active,password_hash,created_at,updated_at`

func scanActor(scan func(dest ...any) error) (domain.Actor, error) {
	var a domain.Actor
	var active int
	err := scan(&a.ID, &a.Username, &a.Name, &a.Role, &active, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Active = active != 0
	return a, nil
}

func (r Repo) InsertActorTx(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO actors(id,username,name,role,active,password_hash,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.Username, a.Name, string(a.Role), boolToInt(a.Active), a.PasswordHash, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateActorTx(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	res, err := tx.ExecContext(ctx, `UPDATE actors SET username=?,name=?,role=?,active=?,password_hash=?,updated_at=? WHERE id=?`,
		a.Username, a.Name, string(a.Role), boolToInt(a.Active), a.PasswordHash, a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE id=?`, id)
	return scanActor(row.Scan)
}

func (r Repo) GetActorTx(ctx context.Context, tx *sql.Tx, id string) (domain.Actor, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE id=?`, id)
	return scanActor(row.Scan)
}

func (r Repo) GetActorByUsername(ctx context.Context, username string) (domain.Actor, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE username=?`, username)
	return scanActor(row.Scan)
}

func (r Repo) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+actorColumns+` FROM actors ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		a, err := scanActor(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountActorsTx is used at bootstrap: the first actor may be created without
// an authenticated principal.
func (r Repo) CountActorsTx(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM actors`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountActiveChiefsTx backs the single-active-chief rule. The partial unique
// index on actors is the storage-level backstop.
func (r Repo) CountActiveChiefsTx(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM actors WHERE role=? AND active=1`,
		string(domain.RoleChiefAdmin)).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// --- API keys ---

// HashAPIKey returns the hex SHA-256 of a raw key. Only hashes are stored.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (r Repo) InsertAPIKey(ctx context.Context, k domain.APIKey) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO api_keys(id,actor_id,name,key_hash,created_at) VALUES (?,?,?,?,?)`,
		k.ID, k.ActorID, k.Name, k.KeyHash, k.CreatedAt)
	return err
}

func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	var k domain.APIKey
	row := r.DB.QueryRowContext(ctx, `SELECT id,actor_id,name,key_hash,created_at FROM api_keys WHERE key_hash=?`, hash)
	err := row.Scan(&k.ID, &k.ActorID, &k.Name, &k.KeyHash, &k.CreatedAt)
	if err == sql.ErrNoRows {
		return k, ErrNotFound
	}
	return k, err
}

func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,actor_id,name,key_hash,created_at FROM api_keys WHERE actor_id=? ORDER BY created_at ASC`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		if err := rows.Scan(&k.ID, &k.ActorID, &k.Name, &k.KeyHash, &k.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, k)
	}
	return res, rows.Err()
}

func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
