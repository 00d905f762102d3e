package db

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/store"
)

// setupTestStore connects to TEST_DATABASE_URL, which must already carry the
// migrations. Each test gets a fresh account id so runs never collide.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	db := &DB{pool: pool, logger: zap.NewNop()}
	s := NewStore(db, zap.NewNop(), "test-"+uuid.NewString())

	return s, func() {
		_ = s.Delete(ctx, "queue")
		_ = s.Delete(ctx, "count")
		pool.Close()
	}
}

func TestStore_Counters(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := s.GetInt(ctx, "count"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if v, err := s.Incr(ctx, "count"); err != nil || v != 1 {
		t.Fatalf("expected 1, got %d (err %v)", v, err)
	}
	if err := s.PutInt(ctx, "count", 7); err != nil {
		t.Fatalf("put: %v", err)
	}
	if v, _ := s.Incr(ctx, "count"); v != 8 {
		t.Errorf("expected 8, got %d", v)
	}
}

func TestStore_ListOrder(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if err := s.PushBack(ctx, "queue", []byte("a"), []byte("b")); err != nil {
		t.Fatalf("push back: %v", err)
	}
	if err := s.PushFront(ctx, "queue", []byte("front")); err != nil {
		t.Fatalf("push front: %v", err)
	}
	if err := s.PushBack(ctx, "queue", []byte("c")); err != nil {
		t.Fatalf("push back: %v", err)
	}

	if n, _ := s.Len(ctx, "queue"); n != 4 {
		t.Fatalf("expected 4 items, got %d", n)
	}

	for _, want := range []string{"front", "a", "b", "c"} {
		got, err := s.PopFront(ctx, "queue")
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if string(got) != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}

	if _, err := s.PopFront(ctx, "queue"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
