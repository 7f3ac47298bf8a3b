// Package leaderboard produces ranked snapshots over all player records for
// a scoring scope. Reads are unsynchronized with concurrent writers and may
// observe slightly stale totals.
package leaderboard

import (
	"context"
	"sort"

	"github.com/roastrush/game-server/internal/app/storage"
	"github.com/roastrush/game-server/pkg/logger"
)

// Size is the number of rows in a snapshot.
const Size = 10

// Entry is one ranked row.
type Entry struct {
	Rank     int    `json:"rank"`
	Identity string `json:"identity"`
	Score    int64  `json:"score"`
	IsYou    bool   `json:"is_you"`
}

// Service ranks player records.
type Service struct {
	store storage.PlayerStore
	log   *logger.Logger
}

// New constructs the aggregator.
func New(store storage.PlayerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("leaderboard")
	}
	return &Service{store: store, log: log}
}

// Top returns up to Size entries for the scope, ordered by score descending.
// Ties are broken by identity ascending so the ordering is deterministic.
// requester's own row, when present, is flagged IsYou.
func (s *Service) Top(ctx context.Context, scope, requester string) ([]Entry, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, Entry{
			Identity: rec.Identity,
			Score:    rec.ScoreFor(scope),
			IsYou:    rec.Identity == requester,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Identity < entries[j].Identity
	})

	if len(entries) > Size {
		entries = entries[:Size]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
