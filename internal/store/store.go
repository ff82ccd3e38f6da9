// Package store persists feeding events and baby profiles. Postgres backs
// the deployed API; SQLite backs local runs, the CLI and tests.
package store

import (
	"context"
	"errors"
	"time"

	"feedlog/backend/internal/feeding"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Query narrows List. Zero values mean unbounded; Limit <= 0 returns all rows.
type Query struct {
	From       *time.Time
	To         *time.Time
	Descending bool
	Limit      int
}

type Profile struct {
	UserID    string     `json:"user_id"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Timezone  string     `json:"timezone"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type FeedingStore interface {
	List(ctx context.Context, userID string, q Query) ([]feeding.Event, error)
	Count(ctx context.Context, userID string) (int, error)
	Get(ctx context.Context, userID, id string) (feeding.Event, error)
	Insert(ctx context.Context, event feeding.Event) error
	UpdateTimestamp(ctx context.Context, userID, id string, ts time.Time) (feeding.Event, error)
	Delete(ctx context.Context, userID, id string) error
	EnsureSchema(ctx context.Context) error
}

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	UpsertProfile(ctx context.Context, profile Profile) (Profile, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, user User) error
}

type Store interface {
	FeedingStore
	ProfileStore
	UserStore
	Close()
}

const birthDateLayout = "2006-01-02"

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
