// Package memory is an in-memory implementation of the player store. It is
// safe for concurrent use and is primarily intended for tests and local
// development; it mirrors the version-checked commit protocol of the
// postgres store so retry behaviour is identical.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/roastrush/game-server/internal/app/domain/player"
	"github.com/roastrush/game-server/internal/app/metrics"
	"github.com/roastrush/game-server/internal/app/storage"
)

type versioned struct {
	rec     player.Record
	version int64
}

// Store keeps one versioned record per identity.
type Store struct {
	mu      sync.RWMutex
	records map[string]versioned
}

var _ storage.PlayerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]versioned)}
}

func (s *Store) Get(_ context.Context, identity string) (player.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.records[identity]
	if !ok {
		return player.Record{}, storage.ErrNotFound
	}
	return v.rec.Clone(), nil
}

func (s *Store) List(_ context.Context) ([]player.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]player.Record, 0, len(s.records))
	for _, v := range s.records {
		out = append(out, v.rec.Clone())
	}
	return out, nil
}

// RunAtomic implements the optimistic read-mutate-commit cycle. The mutation
// runs outside any lock against a deep copy; the commit re-checks the version
// under the write lock and the whole cycle restarts when another writer won.
func (s *Store) RunAtomic(ctx context.Context, identity string, mutate storage.Mutation) (storage.Result, error) {
	for attempt := 0; attempt <= storage.MaxCommitRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return storage.Result{}, err
		}

		s.mu.RLock()
		cur, exists := s.records[identity]
		s.mu.RUnlock()

		var snapshot player.Record
		if exists {
			snapshot = cur.rec.Clone()
		}

		res := mutate(snapshot, exists)
		if !res.Commit {
			return res, nil
		}

		s.mu.Lock()
		latest, stillExists := s.records[identity]
		if stillExists != exists || (exists && latest.version != cur.version) {
			s.mu.Unlock()
			metrics.LedgerCommitRetries.Inc()
			continue
		}

		now := time.Now().UTC()
		rec := res.Record.Clone()
		if !exists {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now

		next := versioned{rec: rec, version: cur.version + 1}
		s.records[identity] = next
		s.mu.Unlock()

		res.Record = rec
		return res, nil
	}
	return storage.Result{}, storage.ErrRetryExhausted
}

func (s *Store) Close() error { return nil }
