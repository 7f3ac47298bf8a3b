// Package player holds the per-identity game state persisted by the ledger
// store. Records are pure data; all business rules live in the services.
package player

import "time"

// Identity is the base58-encoded public key of a player's wallet. It is the
// primary key for all per-player state.
type Identity = string

// LevelResult is the best recorded outcome for a single level.
type LevelResult struct {
	HighScore int64 `json:"high_score"`
	Stars     int   `json:"stars"`
}

// MasterScore tracks cumulative score totals. Global accumulates forever;
// seasonal buckets are keyed by season identifier (e.g. "season3").
type MasterScore struct {
	Global  int64            `json:"global"`
	Seasons map[string]int64 `json:"seasons,omitempty"`
}

// Record is the single persisted document for one player. Balance never goes
// negative, level results never regress, and task flags are never unset once
// true. All mutation happens through the store's atomic primitive.
type Record struct {
	Identity     Identity             `json:"identity"`
	Balance      int64                `json:"balance"`
	Levels       map[int]LevelResult  `json:"levels,omitempty"`
	PowerUps     map[string]int       `json:"power_ups,omitempty"`
	MasterScore  MasterScore          `json:"master_score"`
	Tasks        map[string]bool      `json:"tasks,omitempty"`
	LastSubmitAt time.Time            `json:"last_submit_at"`
	Nonce        string               `json:"nonce,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// NewRecord returns an empty record for an identity. It carries no balance
// and no progress; first contact with the server creates it lazily.
func NewRecord(identity Identity) Record {
	return Record{
		Identity:    identity,
		Levels:      make(map[int]LevelResult),
		PowerUps:    make(map[string]int),
		MasterScore: MasterScore{Seasons: make(map[string]int64)},
		Tasks:       make(map[string]bool),
	}
}

// Clone returns a deep copy so mutate callbacks can never alias stored state.
func (r Record) Clone() Record {
	out := r
	out.Levels = make(map[int]LevelResult, len(r.Levels))
	for k, v := range r.Levels {
		out.Levels[k] = v
	}
	out.PowerUps = make(map[string]int, len(r.PowerUps))
	for k, v := range r.PowerUps {
		out.PowerUps[k] = v
	}
	out.Tasks = make(map[string]bool, len(r.Tasks))
	for k, v := range r.Tasks {
		out.Tasks[k] = v
	}
	out.MasterScore.Seasons = make(map[string]int64, len(r.MasterScore.Seasons))
	for k, v := range r.MasterScore.Seasons {
		out.MasterScore.Seasons[k] = v
	}
	return out
}

// ScoreFor resolves a leaderboard scope against the record's totals. The
// scope "global" reads the lifetime total; anything else reads the matching
// seasonal bucket, defaulting to zero.
func (r Record) ScoreFor(scope string) int64 {
	if scope == "global" {
		return r.MasterScore.Global
	}
	return r.MasterScore.Seasons[scope]
}
