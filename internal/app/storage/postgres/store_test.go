package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/roastrush/game-server/internal/app/domain/player"
	"github.com/roastrush/game-server/internal/app/storage"
)

// openTestStore connects to the database named by TEST_DATABASE_DSN. Tests
// are skipped when the variable is unset so the suite stays runnable without
// a database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	store, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	identity := "it-" + uuid.NewString()

	if _, err := store.Get(ctx, identity); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	res, err := store.RunAtomic(ctx, identity, func(rec player.Record, exists bool) storage.Result {
		if !exists {
			rec = player.NewRecord(identity)
		}
		rec.Balance = 42
		return storage.Result{Record: rec, Commit: true, Status: "ok"}
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !res.Commit {
		t.Fatalf("create did not commit: %+v", res)
	}

	rec, err := store.Get(ctx, identity)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Balance != 42 || rec.Identity != identity {
		t.Fatalf("unexpected record: %+v", rec)
	}

	res, err = store.RunAtomic(ctx, identity, func(rec player.Record, exists bool) storage.Result {
		rec.Balance += 8
		return storage.Result{Record: rec, Commit: true, Status: "ok"}
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Record.Balance != 50 {
		t.Fatalf("balance = %d, want 50", res.Record.Balance)
	}
}

func TestStoreRejectionWritesNothing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	identity := "it-" + uuid.NewString()

	_, err := store.RunAtomic(ctx, identity, func(rec player.Record, exists bool) storage.Result {
		return storage.Result{Record: rec, Commit: false, Status: "no_account"}
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := store.Get(ctx, identity); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
