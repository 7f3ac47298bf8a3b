package economy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/roastrush/game-server/internal/app/domain/payment"
	"github.com/roastrush/game-server/internal/app/domain/player"
	"github.com/roastrush/game-server/internal/app/storage"
	"github.com/roastrush/game-server/internal/app/storage/memory"
)

func newTestService(t *testing.T) (*Service, storage.PlayerStore) {
	t.Helper()
	store := memory.New()
	return New(store, nil), store
}

func seedPlayer(t *testing.T, store storage.PlayerStore, identity string, balance int64) {
	t.Helper()
	_, err := store.RunAtomic(context.Background(), identity, func(rec player.Record, exists bool) storage.Result {
		if !exists {
			rec = player.NewRecord(identity)
		}
		rec.Balance = balance
		return storage.Result{Record: rec, Commit: true, Status: StatusOK}
	})
	if err != nil {
		t.Fatalf("seed %s: %v", identity, err)
	}
}

func TestCreditPayment(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedPlayer(t, store, "payer", 0)

	out, err := svc.CreditPayment(ctx, payment.Receipt{Payer: "payer", PackageID: 1, TxID: "tx-1"})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if !out.Committed || out.Record.Balance != 250 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestCreditPayment_NoAccount(t *testing.T) {
	svc, _ := newTestService(t)

	out, err := svc.CreditPayment(context.Background(), payment.Receipt{Payer: "ghost", PackageID: 0})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if out.Committed || out.Status != StatusNoAccount {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestCreditPayment_UnknownPackage(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CreditPayment(context.Background(), payment.Receipt{Payer: "payer", PackageID: 99}); err == nil {
		t.Fatal("expected unknown package error")
	}
}

func TestPurchasePowerUp_UnknownID(t *testing.T) {
	svc, store := newTestService(t)
	seedPlayer(t, store, "payer", 1000)

	_, err := svc.PurchasePowerUp(context.Background(), "payer", "jetpack", "s1")
	if !errors.Is(err, ErrUnknownPowerUp) {
		t.Fatalf("expected ErrUnknownPowerUp, got %v", err)
	}
}

// Concurrent purchases against one balance must never overdraw it.
func TestPurchasePowerUp_ConcurrentNeverNegative(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// Enough for exactly three shields.
	seedPlayer(t, store, "payer", 600)

	const attempts = 12
	var wg sync.WaitGroup
	committed := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.PurchasePowerUp(ctx, "payer", "shield", "s1")
			if err != nil {
				if errors.Is(err, storage.ErrRetryExhausted) {
					committed <- false
					return
				}
				t.Errorf("purchase: %v", err)
				return
			}
			committed <- out.Committed
		}()
	}
	wg.Wait()
	close(committed)

	var wins int
	for ok := range committed {
		if ok {
			wins++
		}
	}
	if wins > 3 {
		t.Fatalf("%d purchases committed off a balance worth 3", wins)
	}

	rec, err := store.Get(ctx, "payer")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Balance < 0 {
		t.Fatalf("balance went negative: %d", rec.Balance)
	}
	if rec.Balance != 600-int64(wins)*200 {
		t.Fatalf("balance %d does not match %d committed purchases", rec.Balance, wins)
	}
	if rec.PowerUps["shield"] != wins {
		t.Fatalf("shield count %d, want %d", rec.PowerUps["shield"], wins)
	}
}

func TestSubmitLevel_RateLimitAndProgress(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedPlayer(t, store, "runner", 0)

	base := time.Now()

	out, err := svc.SubmitLevel(ctx, "runner", 0, 5000, 2, "s1", base)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !out.Committed {
		t.Fatalf("first submission rejected: %+v", out)
	}

	out, err = svc.SubmitLevel(ctx, "runner", 1, 6000, 1, "s1", base.Add(5*time.Second))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Committed || out.Status != StatusRateLimited {
		t.Fatalf("expected rate_limited, got %+v", out)
	}

	out, err = svc.SubmitLevel(ctx, "runner", 1, 6000, 1, "s1", base.Add(16*time.Second))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !out.Committed {
		t.Fatalf("submission after the window rejected: %+v", out)
	}
	if got := out.Record.MasterScore.Global; got != 11000 {
		t.Fatalf("global score = %d, want 11000", got)
	}
	if got := out.Record.MasterScore.Seasons["s1"]; got != 11000 {
		t.Fatalf("season score = %d, want 11000", got)
	}
}

func TestSubmitLevel_LockedLevel(t *testing.T) {
	svc, store := newTestService(t)
	seedPlayer(t, store, "runner", 0)

	out, err := svc.SubmitLevel(context.Background(), "runner", 2, 1000, 1, "s1", time.Now())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Committed || out.Status != StatusLevelLocked {
		t.Fatalf("expected level_locked, got %+v", out)
	}
}

func TestSubmitLevel_InvalidArguments(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SubmitLevel(ctx, "runner", -1, 100, 0, "s1", time.Now()); err == nil {
		t.Fatal("expected error for negative level")
	}
	if _, err := svc.SubmitLevel(ctx, "runner", 0, -1, 0, "s1", time.Now()); err == nil {
		t.Fatal("expected error for negative score")
	}
}

func TestClaimTask_Idempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedPlayer(t, store, "claimer", 0)

	out, err := svc.ClaimTask(ctx, "claimer", "daily_login", 50, "s1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !out.Committed || out.Record.MasterScore.Global != 50 {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	out, err = svc.ClaimTask(ctx, "claimer", "daily_login", 50, "s1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if out.Committed || out.Status != StatusAlreadyClaimed {
		t.Fatalf("expected already_claimed, got %+v", out)
	}
	if out.Record.MasterScore.Global != 50 {
		t.Fatalf("score changed on repeat claim: %d", out.Record.MasterScore.Global)
	}
}
