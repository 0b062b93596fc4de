package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/map-veto-backend/internal/engine"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (or creates) the database file at path and migrates it.
func OpenSQLite(path string, log *zap.Logger) (*SQLite, error) {
	log.Info("connecting to sqlite", zap.String("path", path))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)

	if err := optimizeSQLite(db, log); err != nil {
		db.Close()
		return nil, err
	}
	if err := runMigrations(db, log); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db, log: log}, nil
}

func optimizeSQLite(db *sql.DB, log *zap.Logger) error {
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "ON"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("set PRAGMA %s: %w", p.name, err)
		}
		log.Debug("sqlite pragma set", zap.String("pragma", p.name), zap.String("value", p.value))
	}
	return nil
}

func runMigrations(db *sql.DB, log *zap.Logger) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run goose migrations: %w", err)
	}
	log.Info("sqlite migrations completed")
	return nil
}

func (s *SQLite) Create(ctx context.Context, st engine.State) error {
	data, err := encodeState(st)
	if err != nil {
		return err
	}
	ts := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO veto_sessions (id, format, version, finished, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		st.ID, string(st.Format), st.Version, st.Finished(), string(data), ts, ts)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", st.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionExists
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (engine.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM veto_sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.State{}, ErrSessionNotFound
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("select session %s: %w", id, err)
	}
	return decodeState(id, []byte(data))
}

func (s *SQLite) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM veto_sessions WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("count session %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLite) Update(ctx context.Context, next engine.State, expectedVersion int) error {
	data, err := encodeState(next)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE veto_sessions SET version = ?, finished = ?, data = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		next.Version, next.Finished(), string(data), time.Now().UnixMilli(), next.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update session %s: %w", next.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	ok, err := s.Exists(ctx, next.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	s.log.Debug("version conflict", zap.String("session_id", next.ID), zap.Int("expected_version", expectedVersion))
	return ErrVersionConflict
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM veto_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
