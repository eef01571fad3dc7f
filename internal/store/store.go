package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var sqliteMigrations embed.FS

// DBPath is the SQLite file used for a Mission Control home.
func DBPath(home string) string {
	return filepath.Join(home, "protected", "db.sqlite")
}

// sqliteStore is the default Store, one SQLite file per home.
type sqliteStore struct {
	DB *sql.DB

	// hot paths of the webhook (session lookup, heartbeat, activity append)
	stmtAgentBySessionKey *sql.Stmt
	stmtGetAgent          *sql.Stmt
	stmtGetTask           *sql.Stmt
	stmtAppendActivity    *sql.Stmt
	stmtTouchHeartbeat    *sql.Stmt
}

// Open opens (creating if needed) the SQLite store for home and applies pending migrations.
// PostgreSQL lives in the postgres subpackage, which imports this one.
func Open(home string) (Store, error) {
	if home == "" {
		return nil, fmt.Errorf("sqlite store: home directory required")
	}
	dbPath := DBPath(home)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	s := &sqliteStore{DB: db}
	for _, step := range []func(context.Context) error{s.tune, s.migrate, s.prepare} {
		if err := step(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// EnsureSchema opens the store at home once so the schema exists, then closes it.
func EnsureSchema(home string) error {
	s, err := Open(home)
	if err != nil {
		return err
	}
	return s.Close()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	for _, st := range s.statements() {
		if *st != nil {
			_ = (*st).Close()
		}
	}
	return s.DB.Close()
}

func (s *sqliteStore) statements() []**sql.Stmt {
	return []**sql.Stmt{&s.stmtAgentBySessionKey, &s.stmtGetAgent, &s.stmtGetTask, &s.stmtAppendActivity, &s.stmtTouchHeartbeat}
}

func (s *sqliteStore) prepare(ctx context.Context) error {
	queries := []string{
		`SELECT ` + agentColumns + ` FROM agents WHERE session_key = ? ORDER BY created_at ASC, rowid ASC LIMIT 1`,
		`SELECT ` + agentColumns + ` FROM agents WHERE agent_id = ?`,
		`SELECT ` + taskColumns + ` FROM tasks WHERE task_id = ?`,
		`INSERT INTO activities(activity_id, type, agent_id, message, timestamp) VALUES(?, ?, ?, ?, ?)`,
		`UPDATE agents SET last_heartbeat = ? WHERE agent_id = ?`,
	}
	for i, dest := range s.statements() {
		st, err := s.DB.PrepareContext(ctx, queries[i])
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		*dest = st
	}
	return nil
}

// tune sets connection pragmas. WAL keeps dashboard reads from blocking webhook writes.
func (s *sqliteStore) tune(ctx context.Context) error {
	for _, p := range []string{
		"journal_mode=WAL",
		"synchronous=NORMAL",
		"foreign_keys=ON",
		"temp_store=MEMORY",
		"cache_size=-20000", // KiB
	} {
		if _, err := s.DB.ExecContext(ctx, "PRAGMA "+p); err != nil {
			return fmt.Errorf("pragma %s: %w", p, err)
		}
	}
	return nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at INTEGER NOT NULL
)`); err != nil {
		return err
	}
	applied := map[int]bool{}
	rows, err := s.DB.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	all, err := LoadMigrations(sqliteMigrations, "migrations")
	if err != nil {
		return err
	}
	for _, m := range Pending(all, applied) {
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
	}
	return nil
}

func (s *sqliteStore) apply(ctx context.Context, m Migration) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`, m.Version, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}
