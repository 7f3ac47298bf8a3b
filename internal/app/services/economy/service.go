// Package economy implements the domain state transitions over player
// records: payment credits, power-up purchases, level submissions and task
// claims. Every mutation goes through the store's optimistic atomic
// primitive; the mutate functions themselves are pure.
package economy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roastrush/game-server/internal/app/domain/payment"
	"github.com/roastrush/game-server/internal/app/domain/player"
	"github.com/roastrush/game-server/internal/app/metrics"
	"github.com/roastrush/game-server/internal/app/storage"
	"github.com/roastrush/game-server/pkg/logger"
)

// ErrUnknownPowerUp is returned for a power-up id missing from the catalog.
var ErrUnknownPowerUp = errors.New("unknown power-up")

// Outcome is the tagged result of an economy operation. Committed reports
// whether the ledger actually changed; Status carries the domain reason when
// it did not. Rejections are outcomes, not errors.
type Outcome struct {
	Status    string
	Committed bool
	Record    player.Record
}

// Service applies economy state transitions through the player store.
type Service struct {
	store storage.PlayerStore
	log   *logger.Logger
}

// New constructs the economy service.
func New(store storage.PlayerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("economy")
	}
	return &Service{store: store, log: log}
}

func (s *Service) run(ctx context.Context, op, identity string, mutate storage.Mutation) (Outcome, error) {
	res, err := s.store.RunAtomic(ctx, identity, mutate)
	if err != nil {
		metrics.RecordEconomyOp(op, "error")
		return Outcome{}, err
	}
	metrics.RecordEconomyOp(op, res.Status)
	return Outcome{Status: res.Status, Committed: res.Commit, Record: res.Record}, nil
}

// CreditPayment credits the package award for a verified payment to the
// payer's balance. This layer does not defend against payment replay; see
// the reconciliation journal in the payments service.
func (s *Service) CreditPayment(ctx context.Context, receipt payment.Receipt) (Outcome, error) {
	pkg, err := payment.PackageByID(receipt.PackageID)
	if err != nil {
		return Outcome{}, err
	}

	out, err := s.run(ctx, "credit_payment", receipt.Payer, func(rec player.Record, exists bool) storage.Result {
		return creditFromPayment(rec, exists, pkg.TokenAward)
	})
	if err != nil {
		return out, err
	}
	if out.Committed {
		s.log.WithFields(map[string]interface{}{
			"identity": receipt.Payer,
			"package":  receipt.PackageID,
			"award":    pkg.TokenAward,
			"txid":     receipt.TxID,
		}).Info("payment credited")
	}
	return out, nil
}

// PurchasePowerUp debits the catalog cost and applies the power-up effect.
func (s *Service) PurchasePowerUp(ctx context.Context, identity, powerUpID, season string) (Outcome, error) {
	pu, ok := PowerUpCatalog[powerUpID]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownPowerUp, powerUpID)
	}

	return s.run(ctx, "purchase_powerup", identity, func(rec player.Record, exists bool) storage.Result {
		return purchasePowerUp(rec, exists, pu.ID, pu.Cost, season)
	})
}

// SubmitLevel records a level completion, subject to the unlock, rate and
// score-cap guards. A rejected submission still returns the failing status
// so the caller can branch.
func (s *Service) SubmitLevel(ctx context.Context, identity string, levelID int, score int64, stars int, season string, now time.Time) (Outcome, error) {
	if levelID < 0 {
		return Outcome{}, fmt.Errorf("invalid level %d", levelID)
	}
	if score < 0 {
		return Outcome{}, fmt.Errorf("invalid score %d", score)
	}

	return s.run(ctx, "submit_level", identity, func(rec player.Record, exists bool) storage.Result {
		return recordLevelCompletion(rec, exists, levelID, score, stars, season, now)
	})
}

// ClaimTask sets the one-time task flag and pays the reward into the score
// totals. Claiming twice is not an error: the second call commits nothing
// and reports StatusAlreadyClaimed.
func (s *Service) ClaimTask(ctx context.Context, identity, taskID string, reward int64, season string) (Outcome, error) {
	if taskID == "" {
		return Outcome{}, fmt.Errorf("task id required")
	}

	return s.run(ctx, "claim_task", identity, func(rec player.Record, exists bool) storage.Result {
		return claimTask(rec, exists, taskID, reward, season)
	})
}
