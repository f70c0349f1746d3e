package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"rollcall.org/internal/roster"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
)

var errNoDB = errors.New("database connection unavailable")

// Store persists roster configuration and activity records in PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ roster.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errNoDB
	}
	return s.db.PingContext(ctx)
}

func (s *Store) PutSettings(ctx context.Context, orgID string, raw []byte) error {
	if s.db == nil {
		return errNoDB
	}
	if !json.Valid(raw) {
		return fmt.Errorf("%w: settings must be a JSON document", roster.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		insert into org_settings (organization_id, settings, updated_at)
		values ($1, $2, now())
		on conflict (organization_id) do update
		set settings = excluded.settings, updated_at = excluded.updated_at
	`, orgID, raw)
	return err
}

func (s *Store) GetSettings(ctx context.Context, orgID string) ([]byte, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx, `select settings from org_settings where organization_id = $1`, orgID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// mapWriteError translates constraint violations into roster sentinels.
func mapWriteError(err error, what string) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s already exists", roster.ErrConflict, what)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s references a missing record", roster.ErrNotFound, what)
		case pgErrCheckViolation:
			return fmt.Errorf("%w: %s violates %s", roster.ErrInvalidInput, what, pgErr.ConstraintName)
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func decodeJSONList[T any](raw []byte, what string) ([]T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return out, nil
}
