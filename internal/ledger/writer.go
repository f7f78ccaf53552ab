// Package ledger appends entries to the append-only audit log. Writing an
// entry is always part of the transaction that performs the audited mutation;
// the log has no update or delete operation.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fundtrail/internal/domain"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append inserts one ledger entry inside the caller's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, actorID string, action domain.ActionKind, target, details string) error {
	if actorID == "" {
		return fmt.Errorf("ledger append: actor required")
	}
	if !action.Valid() {
		return fmt.Errorf("ledger append: unknown action %q", action)
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO ledger(ts,actor_id,action,target,details) VALUES (?,?,?,?,?)`,
		ts, actorID, string(action), nullable(target), nullable(details))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
