// Package storage defines the persistence interfaces consumed by the
// services, most importantly the optimistic read-modify-write primitive that
// is the sole mutation path for player records.
package storage

import (
	"context"
	"errors"

	"github.com/roastrush/game-server/internal/app/domain/player"
)

var (
	// ErrNotFound is returned when no record exists for an identity.
	ErrNotFound = errors.New("player record not found")
	// ErrRetryExhausted is returned when an atomic mutation kept losing the
	// commit race and the retry budget ran out.
	ErrRetryExhausted = errors.New("ledger transaction retry budget exhausted")
)

// MaxCommitRetries bounds how often RunAtomic re-runs a mutation after a
// conflicting concurrent commit before giving up.
const MaxCommitRetries = 8

// Result is the tagged outcome of a mutation. Commit false means the store
// wrote nothing and Record echoes the state the mutation observed; Status
// carries the domain reason either way.
type Result struct {
	Record player.Record
	Commit bool
	Status string
}

// Mutation transforms one player record. It must be pure: the store may call
// it several times per RunAtomic invocation, so it cannot have side effects
// beyond its return value. exists is false when no record is stored yet; rec
// is then the zero Record and the mutation decides whether to create one.
type Mutation func(rec player.Record, exists bool) Result

// PlayerStore persists one record per identity.
type PlayerStore interface {
	// Get returns a copy of the stored record or ErrNotFound.
	Get(ctx context.Context, identity string) (player.Record, error)
	// List returns copies of all records. Iteration order is unspecified.
	List(ctx context.Context) ([]player.Record, error)
	// RunAtomic loads the current record, applies mutate to a copy and
	// commits conditioned on the record being unchanged since the read.
	// Lost races retry the whole cycle up to MaxCommitRetries times before
	// failing with ErrRetryExhausted.
	RunAtomic(ctx context.Context, identity string, mutate Mutation) (Result, error)
	// Close releases the underlying resources.
	Close() error
}
