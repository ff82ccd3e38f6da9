package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"feedlog/backend/internal/feeding"
)

func mustInsert(t *testing.T, s FeedingStore, event feeding.Event) {
	t.Helper()
	if err := s.Insert(context.Background(), event); err != nil {
		t.Fatalf("insert %s: %v", event.ID, err)
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store, userID string) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	mustInsert(t, s, feeding.Event{ID: userID + "-a", UserID: userID, Side: feeding.SideLeft, Timestamp: base})
	mustInsert(t, s, feeding.Event{ID: userID + "-b", UserID: userID, Side: feeding.SideRight, Timestamp: base.Add(2 * time.Hour)})
	mustInsert(t, s, feeding.Event{ID: userID + "-c", UserID: userID, Side: feeding.SideBottle, Timestamp: base.Add(5 * time.Hour)})
	mustInsert(t, s, feeding.Event{ID: userID + "-other", UserID: userID + "-x", Side: feeding.SideLeft, Timestamp: base})

	if err := s.Insert(ctx, feeding.Event{ID: userID + "-a", UserID: userID, Side: feeding.SideLeft, Timestamp: base}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate id, got %v", err)
	}

	all, err := s.List(ctx, userID, Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != userID+"-a" || all[2].ID != userID+"-c" {
		t.Fatalf("expected 3 ascending events, got %+v", all)
	}
	if !all[1].Timestamp.Equal(base.Add(2*time.Hour)) || all[1].Side != feeding.SideRight {
		t.Fatalf("unexpected round trip: %+v", all[1])
	}

	from := base.Add(time.Hour)
	latest, err := s.List(ctx, userID, Query{From: &from, Descending: true, Limit: 1})
	if err != nil {
		t.Fatalf("list latest: %v", err)
	}
	if len(latest) != 1 || latest[0].ID != userID+"-c" {
		t.Fatalf("expected newest event, got %+v", latest)
	}

	to := base.Add(2 * time.Hour)
	bounded, err := s.List(ctx, userID, Query{From: &from, To: &to})
	if err != nil {
		t.Fatalf("list bounded: %v", err)
	}
	if len(bounded) != 1 || bounded[0].ID != userID+"-b" {
		t.Fatalf("expected inclusive bounds, got %+v", bounded)
	}

	total, err := s.Count(ctx, userID)
	if err != nil || total != 3 {
		t.Fatalf("expected count 3, got %d (%v)", total, err)
	}

	moved := base.Add(90 * time.Minute)
	updated, err := s.UpdateTimestamp(ctx, userID, userID+"-b", moved)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Timestamp.Equal(moved) {
		t.Fatalf("expected moved timestamp, got %v", updated.Timestamp)
	}
	if _, err := s.UpdateTimestamp(ctx, userID+"-x", userID+"-b", moved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign update, got %v", err)
	}

	if err := s.Delete(ctx, userID, userID+"-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, userID, userID+"-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := s.Get(ctx, userID, userID+"-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if _, err := s.GetProfile(ctx, userID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected missing profile, got %v", err)
	}
	birth := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	profile, err := s.UpsertProfile(ctx, Profile{UserID: userID, BirthDate: &birth, Timezone: "Asia/Seoul"})
	if err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	if profile.BirthDate == nil || profile.BirthDate.Format(birthDateLayout) != "2026-01-05" || profile.Timezone != "Asia/Seoul" {
		t.Fatalf("unexpected profile %+v", profile)
	}
	profile, err = s.UpsertProfile(ctx, Profile{UserID: userID, Timezone: "UTC"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if profile.BirthDate != nil || profile.Timezone != "UTC" {
		t.Fatalf("expected cleared birth date, got %+v", profile)
	}

	if _, err := s.GetUser(ctx, userID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected missing user, got %v", err)
	}
	if err := s.CreateUser(ctx, User{ID: userID, Name: "parent"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, User{ID: userID, Name: "again"}); err != nil {
		t.Fatalf("create user twice: %v", err)
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil || user.Name != "parent" {
		t.Fatalf("expected first name kept, got %+v (%v)", user, err)
	}
}
