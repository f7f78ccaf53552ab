// Package app wires the storage, config and engine layers for the CLI and
// the HTTP server.
package app

import (
	"database/sql"
	"fmt"

	"fundtrail/internal/config"
	"fundtrail/internal/db"
	"fundtrail/internal/engine"
	"fundtrail/internal/migrate"
)

// App is the assembled runtime: an open migrated database, the loaded
// workspace config and an engine on top of both.
type App struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open ensures the workspace exists, opens the database, runs pending
// migrations and loads the config file (defaults when absent).
func Open(workspace string) (*App, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &App{
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, cfg),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
