package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"feedlog/backend/internal/feeding"
	"feedlog/backend/internal/logging"
)

// SQLiteStore keeps timestamps as unix milliseconds so range filters and
// ordering stay numeric.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLite opens or creates the database at path and migrates it.
func NewSQLite(path string, logger logging.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer keeps WAL mode free of SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warnf("failed to close sqlite store: %v", err)
	}
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS feedings (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		side       TEXT NOT NULL CHECK (side IN ('left', 'right', 'bottle')),
		fed_at     INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feedings_user_fed_at ON feedings(user_id, fed_at);
	CREATE TABLE IF NOT EXISTS baby_profiles (
		user_id    TEXT PRIMARY KEY,
		birth_date TEXT,
		timezone   TEXT NOT NULL DEFAULT 'UTC',
		updated_at INTEGER NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, userID string, q Query) ([]feeding.Event, error) {
	query := `SELECT id, user_id, side, fed_at FROM feedings WHERE user_id = ?`
	args := []any{userID}
	if q.From != nil {
		query += " AND fed_at >= ?"
		args = append(args, q.From.UnixMilli())
	}
	if q.To != nil {
		query += " AND fed_at <= ?"
		args = append(args, q.To.UnixMilli())
	}
	query += " ORDER BY fed_at " + orderDirection(q.Descending) + ", id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Errorf("failed to query feedings: %v", err)
		return nil, err
	}
	defer rows.Close()

	events := make([]feeding.Event, 0)
	for rows.Next() {
		event, err := scanSQLiteEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedings WHERE user_id = ?`, userID).Scan(&total)
	return total, err
}

func (s *SQLiteStore) Get(ctx context.Context, userID, id string) (feeding.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, side, fed_at FROM feedings WHERE user_id = ? AND id = ?`, userID, id)
	event, err := scanSQLiteEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return feeding.Event{}, ErrNotFound
	}
	return event, err
}

func (s *SQLiteStore) Insert(ctx context.Context, event feeding.Event) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO feedings (id, user_id, side, fed_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		event.ID,
		event.UserID,
		string(event.Side),
		event.Timestamp.UnixMilli(),
		time.Now().UnixMilli(),
	)
	if err != nil {
		if isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
			return ErrConflict
		}
		s.logger.Errorf("failed to insert feeding: %v", err)
		return err
	}
	return nil
}

func (s *SQLiteStore) UpdateTimestamp(ctx context.Context, userID, id string, ts time.Time) (feeding.Event, error) {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE feedings SET fed_at = ? WHERE user_id = ? AND id = ?`,
		ts.UnixMilli(),
		userID,
		id,
	)
	if err != nil {
		s.logger.Errorf("failed to update feeding %s: %v", id, err)
		return feeding.Event{}, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return feeding.Event{}, ErrNotFound
	}
	return s.Get(ctx, userID, id)
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM feedings WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		s.logger.Errorf("failed to delete feeding %s: %v", id, err)
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var birth sql.NullString
	var updated int64
	profile := Profile{UserID: userID}
	err := s.db.QueryRowContext(
		ctx,
		`SELECT birth_date, timezone, updated_at FROM baby_profiles WHERE user_id = ?`,
		userID,
	).Scan(&birth, &profile.Timezone, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	if birth.Valid && birth.String != "" {
		parsed, err := time.Parse(birthDateLayout, birth.String)
		if err != nil {
			return Profile{}, fmt.Errorf("parse birth_date: %w", err)
		}
		profile.BirthDate = &parsed
	}
	profile.UpdatedAt = time.UnixMilli(updated).UTC()
	return profile, nil
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, profile Profile) (Profile, error) {
	var birth any
	if profile.BirthDate != nil {
		birth = profile.BirthDate.Format(birthDateLayout)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO baby_profiles (user_id, birth_date, timezone, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE
		 SET birth_date = excluded.birth_date,
		     timezone = excluded.timezone,
		     updated_at = excluded.updated_at`,
		profile.UserID,
		birth,
		profile.Timezone,
		time.Now().UnixMilli(),
	)
	if err != nil {
		s.logger.Errorf("failed to upsert profile: %v", err)
		return Profile{}, err
	}
	return s.GetProfile(ctx, profile.UserID)
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (User, error) {
	var user User
	var created int64
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	user.CreatedAt = time.UnixMilli(created).UTC()
	return user, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO users (id, name, created_at) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		user.ID,
		user.Name,
		time.Now().UnixMilli(),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEvent(row rowScanner) (feeding.Event, error) {
	var event feeding.Event
	var side string
	var millis int64
	if err := row.Scan(&event.ID, &event.UserID, &side, &millis); err != nil {
		return feeding.Event{}, err
	}
	event.Side = feeding.Side(side)
	event.Timestamp = time.UnixMilli(millis).UTC()
	return event, nil
}

// isSQLiteConstraint matches the extended code, or the primary code when the
// driver reports extended codes as disabled.
func isSQLiteConstraint(err error, code int) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == code || sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT
}
