package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) the SQLite database at path. Use ":memory:"
// for a throwaway database. Caller should call db.Close().
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// one writer; also keeps a ":memory:" database on a single connection
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys=ON;", "PRAGMA busy_timeout=5000;"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL;")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", p, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return db, nil
}
