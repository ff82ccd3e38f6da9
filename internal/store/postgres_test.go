package store

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"feedlog/backend/internal/db"
	"feedlog/backend/internal/logging"
)

func TestPostgresStore(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn, 2)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s := NewPostgres(pool, logging.Nop())
	t.Cleanup(s.Close)

	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := ValidateSchema(ctx, pool); err != nil {
		t.Fatalf("validate schema: %v", err)
	}

	userID := "test-" + uuid.NewString()
	t.Cleanup(func() {
		cleanup := context.Background()
		_, _ = pool.Exec(cleanup, `DELETE FROM feedings WHERE user_id LIKE $1`, userID+"%")
		_, _ = pool.Exec(cleanup, `DELETE FROM baby_profiles WHERE user_id = $1`, userID)
		_, _ = pool.Exec(cleanup, `DELETE FROM users WHERE id = $1`, userID)
	})
	exerciseStore(t, s, userID)
}
