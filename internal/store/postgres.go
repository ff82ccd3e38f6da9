package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"feedlog/backend/internal/feeding"
	"feedlog/backend/internal/logging"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger logging.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS feedings (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		side       TEXT NOT NULL CHECK (side IN ('left', 'right', 'bottle')),
		fed_at     TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_feedings_user_fed_at ON feedings(user_id, fed_at);
	CREATE TABLE IF NOT EXISTS baby_profiles (
		user_id    TEXT PRIMARY KEY,
		birth_date DATE,
		timezone   TEXT NOT NULL DEFAULT 'UTC',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`)
	if err != nil {
		p.logger.Errorf("failed to ensure postgres schema: %v", err)
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, userID string, q Query) ([]feeding.Event, error) {
	sql := `SELECT id, user_id, side, fed_at FROM feedings WHERE user_id = $1`
	args := []any{userID}
	if q.From != nil {
		args = append(args, q.From.UTC())
		sql += fmt.Sprintf(" AND fed_at >= $%d", len(args))
	}
	if q.To != nil {
		args = append(args, q.To.UTC())
		sql += fmt.Sprintf(" AND fed_at <= $%d", len(args))
	}
	sql += " ORDER BY fed_at " + orderDirection(q.Descending) + ", id"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		p.logger.Errorf("failed to query feedings: %v", err)
		return nil, err
	}
	defer rows.Close()

	events := make([]feeding.Event, 0)
	for rows.Next() {
		event, err := scanPgEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (p *PostgresStore) Count(ctx context.Context, userID string) (int, error) {
	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM feedings WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (p *PostgresStore) Get(ctx context.Context, userID, id string) (feeding.Event, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, user_id, side, fed_at FROM feedings WHERE user_id = $1 AND id = $2`, userID, id)
	event, err := scanPgEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return feeding.Event{}, ErrNotFound
	}
	return event, err
}

func (p *PostgresStore) Insert(ctx context.Context, event feeding.Event) error {
	_, err := p.pool.Exec(
		ctx,
		`INSERT INTO feedings (id, user_id, side, fed_at, created_at) VALUES ($1, $2, $3, $4, NOW())`,
		event.ID,
		event.UserID,
		string(event.Side),
		event.Timestamp.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrConflict
		}
		p.logger.Errorf("failed to insert feeding: %v", err)
		return err
	}
	return nil
}

func (p *PostgresStore) UpdateTimestamp(ctx context.Context, userID, id string, ts time.Time) (feeding.Event, error) {
	row := p.pool.QueryRow(
		ctx,
		`UPDATE feedings SET fed_at = $3 WHERE user_id = $1 AND id = $2
		 RETURNING id, user_id, side, fed_at`,
		userID,
		id,
		ts.UTC(),
	)
	event, err := scanPgEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return feeding.Event{}, ErrNotFound
	}
	if err != nil {
		p.logger.Errorf("failed to update feeding %s: %v", id, err)
	}
	return event, err
}

func (p *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM feedings WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		p.logger.Errorf("failed to delete feeding %s: %v", id, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	profile := Profile{UserID: userID}
	err := p.pool.QueryRow(
		ctx,
		`SELECT birth_date, timezone, updated_at FROM baby_profiles WHERE user_id = $1`,
		userID,
	).Scan(&profile.BirthDate, &profile.Timezone, &profile.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

func (p *PostgresStore) UpsertProfile(ctx context.Context, profile Profile) (Profile, error) {
	var birth any
	if profile.BirthDate != nil {
		birth = dateOnly(*profile.BirthDate)
	}
	err := p.pool.QueryRow(
		ctx,
		`INSERT INTO baby_profiles (user_id, birth_date, timezone, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET birth_date = EXCLUDED.birth_date,
		     timezone = EXCLUDED.timezone,
		     updated_at = NOW()
		 RETURNING birth_date, timezone, updated_at`,
		profile.UserID,
		birth,
		profile.Timezone,
	).Scan(&profile.BirthDate, &profile.Timezone, &profile.UpdatedAt)
	if err != nil {
		p.logger.Errorf("failed to upsert profile: %v", err)
		return Profile{}, err
	}
	return profile, nil
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	user := User{}
	err := p.pool.QueryRow(ctx, `SELECT id, name, created_at FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Name, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

func (p *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := p.pool.Exec(
		ctx,
		`INSERT INTO users (id, name, created_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (id) DO NOTHING`,
		user.ID,
		user.Name,
	)
	return err
}

// ValidateSchema fails fast when a required column is missing.
func ValidateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("database pool is nil")
	}

	requiredColumns := []struct {
		table  string
		column string
	}{
		{table: "feedings", column: "side"},
		{table: "feedings", column: "fed_at"},
		{table: "baby_profiles", column: "birth_date"},
		{table: "baby_profiles", column: "timezone"},
		{table: "users", column: "name"},
	}
	for _, item := range requiredColumns {
		ok, err := columnExists(ctx, pool, item.table, item.column)
		if err != nil {
			return fmt.Errorf("failed checking schema for %s.%s: %w", item.table, item.column, err)
		}
		if !ok {
			return fmt.Errorf("required column %s.%s is missing", item.table, item.column)
		}
	}
	return nil
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	table := strings.TrimSpace(tableName)
	column := strings.TrimSpace(columnName)
	if table == "" || column == "" {
		return false, fmt.Errorf("table/column must not be empty")
	}
	var exists bool
	err := pool.QueryRow(
		ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM information_schema.columns
		   WHERE table_schema = current_schema()
		     AND lower(table_name) = lower($1)
		     AND lower(column_name) = lower($2)
		 )`,
		table,
		column,
	).Scan(&exists)
	return exists, err
}

func scanPgEvent(row pgx.Row) (feeding.Event, error) {
	var event feeding.Event
	var side string
	if err := row.Scan(&event.ID, &event.UserID, &side, &event.Timestamp); err != nil {
		return feeding.Event{}, err
	}
	event.Side = feeding.Side(side)
	event.Timestamp = event.Timestamp.UTC()
	return event, nil
}

func orderDirection(descending bool) string {
	if descending {
		return "DESC"
	}
	return "ASC"
}
