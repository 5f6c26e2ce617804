package sessions

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"snapshelf/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite stores sessions in a local database file so drafts survive process
// restarts.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies any
// pending schema migrations.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	// SQLite allows one writer at a time; a single pooled connection keeps
	// concurrent puts from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping session database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	drv, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("failed to set up migrations: %w", err)
	}
	// Closing m would close the *sql.DB we were handed, so leave it open.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state, draft, updated_at FROM capture_sessions WHERE id = ?`, id)
	var (
		state   string
		draft   sql.NullString
		updated string
	)
	if err := row.Scan(&state, &draft, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	rec := &Record{ID: id, State: state}
	if draft.Valid {
		var d domain.Draft
		if err := json.Unmarshal([]byte(draft.String), &d); err != nil {
			return nil, fmt.Errorf("failed to decode draft for session %s: %w", id, err)
		}
		rec.Draft = &d
	}
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		rec.UpdatedAt = ts
	}
	return rec, nil
}

func (s *SQLite) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return errors.New("session record requires an id")
	}
	var draft any
	if rec.Draft != nil {
		buf, err := json.Marshal(rec.Draft)
		if err != nil {
			return fmt.Errorf("failed to encode draft for session %s: %w", rec.ID, err)
		}
		draft = string(buf)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO capture_sessions (id, state, draft, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     state = excluded.state,
		     draft = excluded.draft,
		     updated_at = excluded.updated_at`,
		rec.ID, rec.State, draft, now)
	if err != nil {
		return fmt.Errorf("failed to store session %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM capture_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}
