package economy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roastrush/game-server/internal/app/domain/player"
)

func seededRecord() player.Record {
	rec := player.NewRecord("tester")
	rec.Balance = 1000
	rec.Levels[0] = player.LevelResult{HighScore: 4200, Stars: 2}
	return rec
}

func TestScoreCap(t *testing.T) {
	require.EqualValues(t, 12000, ScoreCap(0))
	require.EqualValues(t, 21000, ScoreCap(1))
	require.EqualValues(t, 30000, ScoreCap(2))
}

func TestPurchasePowerUpRules(t *testing.T) {
	tests := []struct {
		name       string
		balance    int64
		id         string
		cost       int64
		wantStatus string
		wantCommit bool
	}{
		{"affordable consumable", 1000, "shield", 200, StatusOK, true},
		{"exact balance", 200, "shield", 200, StatusOK, true},
		{"insufficient funds", 199, "shield", 200, StatusInsufficientFunds, false},
		{"burn effect", 1000, BurnEffect, 400, StatusOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := seededRecord()
			rec.Balance = tt.balance

			res := purchasePowerUp(rec, true, tt.id, tt.cost, "s1")
			require.Equal(t, tt.wantStatus, res.Status)
			require.Equal(t, tt.wantCommit, res.Commit)

			if !tt.wantCommit {
				return
			}
			require.Equal(t, tt.balance-tt.cost, res.Record.Balance)
			if tt.id == BurnEffect {
				require.Zero(t, res.Record.PowerUps[BurnEffect])
				require.Equal(t, BurnBonus, res.Record.MasterScore.Global)
				require.Equal(t, BurnBonus, res.Record.MasterScore.Seasons["s1"])
			} else {
				require.Equal(t, 1, res.Record.PowerUps[tt.id])
				require.Zero(t, res.Record.MasterScore.Global)
			}
		})
	}

	t.Run("missing record", func(t *testing.T) {
		res := purchasePowerUp(player.Record{}, false, "shield", 200, "s1")
		require.Equal(t, StatusNoAccount, res.Status)
		require.False(t, res.Commit)
	})
}

func TestRecordLevelCompletionRules(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		mutate     func(*player.Record)
		levelID    int
		score      int64
		wantStatus string
	}{
		{"first level always unlocked", nil, 0, 5000, StatusOK},
		{"next level unlocked by previous clear", nil, 1, 5000, StatusOK},
		{
			"level locked without previous clear",
			func(rec *player.Record) { delete(rec.Levels, 0) },
			1, 5000, StatusLevelLocked,
		},
		{
			"rate limited inside the window",
			func(rec *player.Record) { rec.LastSubmitAt = now.Add(-10 * time.Second) },
			0, 5000, StatusRateLimited,
		},
		{
			"boundary of the window still limited",
			func(rec *player.Record) { rec.LastSubmitAt = now.Add(-SubmitInterval) },
			0, 5000, StatusRateLimited,
		},
		{
			"outside the window accepted",
			func(rec *player.Record) { rec.LastSubmitAt = now.Add(-SubmitInterval - time.Millisecond) },
			0, 5000, StatusOK,
		},
		{"score at the cap accepted", nil, 1, 21000, StatusOK},
		{"score over the cap rejected", nil, 1, 21001, StatusScoreTooHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := seededRecord()
			if tt.mutate != nil {
				tt.mutate(&rec)
			}
			res := recordLevelCompletion(rec, true, tt.levelID, tt.score, 1, "s1", now)
			require.Equal(t, tt.wantStatus, res.Status)
			require.Equal(t, tt.wantStatus == StatusOK, res.Commit)
		})
	}
}

func TestRecordLevelCompletion_BestsAreMonotonic(t *testing.T) {
	rec := seededRecord()
	rec.Levels[0] = player.LevelResult{HighScore: 8000, Stars: 3}

	res := recordLevelCompletion(rec, true, 0, 5000, 1, "s1", time.Now())
	require.True(t, res.Commit)
	require.EqualValues(t, 8000, res.Record.Levels[0].HighScore)
	require.Equal(t, 3, res.Record.Levels[0].Stars)
	// The cumulative total still grows even when the best does not.
	require.EqualValues(t, 5000, res.Record.MasterScore.Global)
}

func TestRecordLevelCompletion_ConsumesPowerUps(t *testing.T) {
	rec := seededRecord()
	rec.PowerUps["shield"] = 2
	rec.PowerUps["x2_roast"] = 1
	rec.PowerUps[BurnEffect] = 1

	res := recordLevelCompletion(rec, true, 0, 5000, 1, "s1", time.Now())
	require.True(t, res.Commit)
	require.Equal(t, 1, res.Record.PowerUps["shield"])
	require.Equal(t, 0, res.Record.PowerUps["x2_roast"])
	require.Equal(t, 1, res.Record.PowerUps[BurnEffect])
}

func TestClaimTaskRules(t *testing.T) {
	rec := seededRecord()

	res := claimTask(rec, true, "daily_login", 50, "s1")
	require.True(t, res.Commit)
	require.Equal(t, StatusOK, res.Status)
	require.EqualValues(t, 50, res.Record.MasterScore.Global)
	require.EqualValues(t, 50, res.Record.MasterScore.Seasons["s1"])
	require.Equal(t, rec.Balance, res.Record.Balance)

	again := claimTask(res.Record, true, "daily_login", 50, "s1")
	require.False(t, again.Commit)
	require.Equal(t, StatusAlreadyClaimed, again.Status)
	require.EqualValues(t, 50, again.Record.MasterScore.Global)
}
