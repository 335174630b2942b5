package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/thread-commands/internal/domain"
)

func TestGetIdempotency_BlankKey_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t)
	rec, err := GetIdempotency(context.Background(), db, "g1", "u1", "   ", time.Now().UTC())
	if rec != nil || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected (nil, ErrNotFound), got (%v, %v)", rec, err)
	}
}

func TestCreateIdempotency_SuccessAndDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "g1", "u1", "k1", 9, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || rec.RuleID != 9 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, err := CreateIdempotency(ctx, db, "g1", "u1", "k1", 10, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// A different actor may reuse the same key.
	if _, err := CreateIdempotency(ctx, db, "g1", "u2", "k1", 11, time.Hour); err != nil {
		t.Fatalf("other actor: %v", err)
	}

	got, err := GetIdempotency(ctx, db, "g1", "u1", "k1", time.Now().UTC())
	if err != nil || got.RuleID != 9 {
		t.Fatalf("GetIdempotency = %+v, %v", got, err)
	}
}

func TestGetIdempotency_Expired(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	exp := &domain.Idempotency{ID: "x", TenantID: "g1", ActorID: "u1", Key: "k1", RuleID: 1, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "g1", "u1", "k1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired record, got %v", err)
	}
	n, err := DeleteExpiredIdempotency(ctx, db, now)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredIdempotency = %d, %v", n, err)
	}
}

func TestCreateIdempotency_Error_NoTable(t *testing.T) {
	db := newBareDB(t)
	if _, err := CreateIdempotency(context.Background(), db, "g1", "u1", "k", 1, time.Minute); err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected raw error without table, got %v", err)
	}
}
