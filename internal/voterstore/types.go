// Package voterstore defines the durable voter identity and vote status
// records and the storage contract their implementations satisfy.
package voterstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAlreadyRegistered is returned when a voter name is registered twice.
	ErrAlreadyRegistered = errors.New("voter already registered")

	// ErrAlreadyVoted is returned when a vote status transition loses the
	// has-voted compare-and-set.
	ErrAlreadyVoted = errors.New("voter has already voted")
)

// VoterIdentity is the durable record created once at registration. The name
// is the immutable key; templates are only ever appended, never mutated.
type VoterIdentity struct {
	Name         string      `json:"name"`
	Templates    [][]float32 `json:"templates"`
	RegisteredAt time.Time   `json:"registered_at"`
}

// VoteStatus tracks the one-way not-voted to voted transition for a voter.
// A missing record means the voter has not voted yet.
type VoteStatus struct {
	Name            string     `json:"name"`
	HasVoted        bool       `json:"has_voted"`
	CastAt          *time.Time `json:"cast_at,omitempty"`
	CandidateID     string     `json:"candidate_id,omitempty"`
	LedgerReference string     `json:"ledger_reference,omitempty"`
	Fallback        bool       `json:"fallback,omitempty"`
}

// Stats summarizes election progress.
type Stats struct {
	Registered int `json:"registered"`
	Voted      int `json:"voted"`
	Remaining  int `json:"remaining"`
}

// Store is the durable persistence contract. Implementations must make
// Register and MarkVoted atomic compare-and-set operations (no window in
// which two concurrent callers both succeed) and must not acknowledge a
// write before it is durable.
type Store interface {
	// Register creates the identity record for name with its first
	// template. Fails with ErrAlreadyRegistered if the name exists.
	Register(ctx context.Context, name string, template []float32) error

	// IsRegistered reports whether the name has an identity record.
	IsRegistered(ctx context.Context, name string) (bool, error)

	// LoadAllTemplates materializes every voter's templates in
	// registration order, for warming the in-memory pool.
	LoadAllTemplates(ctx context.Context) ([]VoterIdentity, error)

	// GetVoteStatus returns the vote status for name. Voters without a
	// record get a zero status with HasVoted false.
	GetVoteStatus(ctx context.Context, name string) (VoteStatus, error)

	// MarkVoted atomically flips HasVoted from false to true, recording
	// the candidate, the optional ledger reference, and whether the vote
	// was recorded via local fallback. Fails with ErrAlreadyVoted when
	// the voter already voted.
	MarkVoted(ctx context.Context, name, candidateID, ledgerReference string, fallback bool) error

	// Stats returns registered/voted/remaining counts.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any underlying resources.
	Close() error
}
