// Package migrate brings the workspace database up to date from the SQL
// files embedded under sql/. Each file is named NNN_description.sql and
// carries every statement for that version.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var schemaFS embed.FS

type step struct {
	version int
	name    string
	stmts   string
}

func steps() ([]step, error) {
	names, err := fs.Glob(schemaFS, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	seen := make(map[int]string, len(names))
	out := make([]step, 0, len(names))
	for _, name := range names {
		base := path.Base(name)
		prefix, _, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s has no version prefix", base)
		}
		v, err := strconv.Atoi(prefix)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("bad version prefix in migration %s", base)
		}
		if prev, dup := seen[v]; dup {
			return nil, fmt.Errorf("version %d claimed by both %s and %s", v, prev, base)
		}
		seen[v] = base
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		out = append(out, step{version: v, name: base, stmts: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// Migrate applies every pending step inside a single transaction.
// schema_version keeps one row; stray extra rows left behind by an
// interrupted older binary are collapsed to the highest version first.
func Migrate(db *sql.DB) error {
	pending, err := steps()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	var count int
	var current sql.NullInt64
	if err := tx.QueryRow(`SELECT COUNT(*), MAX(version) FROM schema_version`).Scan(&count, &current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	switch {
	case count == 0:
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
	case count > 1:
		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			return fmt.Errorf("collapse schema_version: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (?)`, current.Int64); err != nil {
			return fmt.Errorf("collapse schema_version: %w", err)
		}
	}

	for _, s := range pending {
		if int64(s.version) <= current.Int64 {
			continue
		}
		if _, err := tx.Exec(s.stmts); err != nil {
			return fmt.Errorf("apply %s: %w", s.name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, s.version); err != nil {
			return fmt.Errorf("record %s: %w", s.name, err)
		}
	}
	return tx.Commit()
}
