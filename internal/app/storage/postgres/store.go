// Package postgres implements the player store backed by PostgreSQL. Each
// identity maps to one JSONB document guarded by a version column; commits
// are conditioned on the version observed at read time.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/roastrush/game-server/internal/app/domain/player"
	"github.com/roastrush/game-server/internal/app/metrics"
	"github.com/roastrush/game-server/internal/app/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS player_records (
    identity   TEXT PRIMARY KEY,
    record     JSONB NOT NULL,
    version    BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`

// Store implements storage.PlayerStore on a PostgreSQL database.
type Store struct {
	db *sqlx.DB
}

var _ storage.PlayerStore = (*Store)(nil)

// Open connects to the database, applies the schema and returns a Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing database handle, applying the schema.
func New(ctx context.Context, db *sqlx.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

type row struct {
	Identity string          `db:"identity"`
	Record   json.RawMessage `db:"record"`
	Version  int64           `db:"version"`
}

func (r row) decode() (player.Record, error) {
	var rec player.Record
	if err := json.Unmarshal(r.Record, &rec); err != nil {
		return player.Record{}, fmt.Errorf("decode record %s: %w", r.Identity, err)
	}
	return rec, nil
}

func (s *Store) Get(ctx context.Context, identity string) (player.Record, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `
		SELECT identity, record, version FROM player_records WHERE identity = $1
	`, identity)
	if errors.Is(err, sql.ErrNoRows) {
		return player.Record{}, storage.ErrNotFound
	}
	if err != nil {
		return player.Record{}, err
	}
	return r.decode()
}

func (s *Store) List(ctx context.Context) ([]player.Record, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT identity, record, version FROM player_records
	`); err != nil {
		return nil, err
	}

	out := make([]player.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// RunAtomic loads the record, applies mutate and commits with a version
// check. An insert racing another creator, or an update whose version moved,
// restarts the whole cycle.
func (s *Store) RunAtomic(ctx context.Context, identity string, mutate storage.Mutation) (storage.Result, error) {
	for attempt := 0; attempt <= storage.MaxCommitRetries; attempt++ {
		var (
			snapshot player.Record
			version  int64
			exists   bool
		)

		var r row
		err := s.db.GetContext(ctx, &r, `
			SELECT identity, record, version FROM player_records WHERE identity = $1
		`, identity)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			exists = false
		case err != nil:
			return storage.Result{}, err
		default:
			exists = true
			version = r.Version
			if snapshot, err = r.decode(); err != nil {
				return storage.Result{}, err
			}
		}

		res := mutate(snapshot, exists)
		if !res.Commit {
			return res, nil
		}

		now := time.Now().UTC()
		rec := res.Record
		if !exists {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now

		payload, err := json.Marshal(rec)
		if err != nil {
			return storage.Result{}, fmt.Errorf("encode record %s: %w", identity, err)
		}

		var committed bool
		if exists {
			committed, err = s.update(ctx, identity, payload, version, now)
		} else {
			committed, err = s.insert(ctx, identity, payload, now)
		}
		if err != nil {
			return storage.Result{}, err
		}
		if committed {
			res.Record = rec
			return res, nil
		}
		metrics.LedgerCommitRetries.Inc()
	}
	return storage.Result{}, storage.ErrRetryExhausted
}

func (s *Store) insert(ctx context.Context, identity string, payload []byte, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO player_records (identity, record, version, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (identity) DO NOTHING
	`, identity, payload, now)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

func (s *Store) update(ctx context.Context, identity string, payload []byte, version int64, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE player_records
		SET record = $2, version = version + 1, updated_at = $3
		WHERE identity = $1 AND version = $4
	`, identity, payload, now, version)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
