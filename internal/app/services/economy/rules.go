package economy

import (
	"time"

	"github.com/roastrush/game-server/internal/app/domain/player"
	"github.com/roastrush/game-server/internal/app/storage"
)

// Domain statuses reported by the mutate functions. They are data, not
// errors: the ledger store may re-evaluate a mutation on every retry, and
// the HTTP layer maps them to machine-readable conflict responses.
const (
	StatusOK                = "ok"
	StatusNoAccount         = "no_account"
	StatusInsufficientFunds = "insufficient_funds"
	StatusRateLimited       = "rate_limited"
	StatusLevelLocked       = "level_locked"
	StatusScoreTooHigh      = "score_too_high"
	StatusAlreadyClaimed    = "already_claimed"
)

// BurnEffect is the distinguished power-up that converts its cost into score
// instead of a consumable counter.
const BurnEffect = "burn"

// BurnBonus is the score added to the global and seasonal totals when the
// burn effect is purchased.
const BurnBonus int64 = 500

// PowerUp is a catalog entry purchasable with ledger balance.
type PowerUp struct {
	ID   string
	Cost int64
}

// PowerUpCatalog is the fixed lineup of purchasable boosts.
var PowerUpCatalog = map[string]PowerUp{
	"x2_roast":   {ID: "x2_roast", Cost: 150},
	"shield":     {ID: "shield", Cost: 200},
	"extra_time": {ID: "extra_time", Cost: 120},
	BurnEffect:   {ID: BurnEffect, Cost: 400},
}

// SubmitInterval is the minimum spacing between level submissions from one
// identity.
const SubmitInterval = 15 * time.Second

// ScoreCap is the maximum accepted score for a level.
func ScoreCap(levelID int) int64 {
	return int64(levelID+1)*9000 + 3000
}

// The mutate functions below are pure: record in, record plus status out.
// They must not touch anything outside their arguments because RunAtomic may
// invoke them several times for one logical operation.

func ensureMaps(rec *player.Record) {
	if rec.Levels == nil {
		rec.Levels = make(map[int]player.LevelResult)
	}
	if rec.PowerUps == nil {
		rec.PowerUps = make(map[string]int)
	}
	if rec.Tasks == nil {
		rec.Tasks = make(map[string]bool)
	}
	if rec.MasterScore.Seasons == nil {
		rec.MasterScore.Seasons = make(map[string]int64)
	}
}

func addScore(rec *player.Record, amount int64, season string) {
	rec.MasterScore.Global += amount
	if season != "" {
		rec.MasterScore.Seasons[season] += amount
	}
}

// creditFromPayment adds the package award to the balance. A missing record
// aborts: payments only credit identities that already registered.
func creditFromPayment(rec player.Record, exists bool, award int64) storage.Result {
	if !exists {
		return storage.Result{Record: rec, Commit: false, Status: StatusNoAccount}
	}
	ensureMaps(&rec)
	rec.Balance += award
	return storage.Result{Record: rec, Commit: true, Status: StatusOK}
}

// purchasePowerUp debits the cost and either increments the counter or, for
// the burn effect, converts the purchase into a score bonus.
func purchasePowerUp(rec player.Record, exists bool, id string, cost int64, season string) storage.Result {
	if !exists {
		return storage.Result{Record: rec, Commit: false, Status: StatusNoAccount}
	}
	ensureMaps(&rec)

	if rec.Balance < cost {
		return storage.Result{Record: rec, Commit: false, Status: StatusInsufficientFunds}
	}
	rec.Balance -= cost

	if id == BurnEffect {
		addScore(&rec, BurnBonus, season)
	} else {
		rec.PowerUps[id]++
	}
	return storage.Result{Record: rec, Commit: true, Status: StatusOK}
}

// recordLevelCompletion applies the submission guards in order (unlock, rate,
// cap) and on success raises the level bests, consumes power-ups and adds the
// score to the cumulative totals.
func recordLevelCompletion(rec player.Record, exists bool, levelID int, score int64, stars int, season string, now time.Time) storage.Result {
	if !exists {
		return storage.Result{Record: rec, Commit: false, Status: StatusNoAccount}
	}
	ensureMaps(&rec)

	if levelID > 0 {
		if prev, ok := rec.Levels[levelID-1]; !ok || prev.HighScore <= 0 {
			return storage.Result{Record: rec, Commit: false, Status: StatusLevelLocked}
		}
	}
	if !rec.LastSubmitAt.IsZero() && now.Sub(rec.LastSubmitAt) <= SubmitInterval {
		return storage.Result{Record: rec, Commit: false, Status: StatusRateLimited}
	}
	if score > ScoreCap(levelID) {
		return storage.Result{Record: rec, Commit: false, Status: StatusScoreTooHigh}
	}

	result := rec.Levels[levelID]
	if score > result.HighScore {
		result.HighScore = score
	}
	if stars > result.Stars {
		result.Stars = stars
	}
	rec.Levels[levelID] = result

	// A run consumes one of each owned consumable; the burn effect is
	// permanent and never decremented.
	for id, count := range rec.PowerUps {
		if id == BurnEffect || count <= 0 {
			continue
		}
		rec.PowerUps[id] = count - 1
	}

	addScore(&rec, score, season)
	rec.LastSubmitAt = now

	return storage.Result{Record: rec, Commit: true, Status: StatusOK}
}

// claimTask sets the one-time task flag and pays the reward. Claiming an
// already-claimed task commits nothing and reports StatusAlreadyClaimed.
func claimTask(rec player.Record, exists bool, taskID string, reward int64, season string) storage.Result {
	if !exists {
		return storage.Result{Record: rec, Commit: false, Status: StatusNoAccount}
	}
	ensureMaps(&rec)

	if rec.Tasks[taskID] {
		return storage.Result{Record: rec, Commit: false, Status: StatusAlreadyClaimed}
	}
	rec.Tasks[taskID] = true
	addScore(&rec, reward, season)
	return storage.Result{Record: rec, Commit: true, Status: StatusOK}
}
