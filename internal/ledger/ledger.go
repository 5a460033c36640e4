// Package ledger submits cast votes to the distributed ledger. The gateway
// is allowed to fail: callers treat every error here as a signal to fall
// back to local durable recording, never as a user-visible failure.
package ledger

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned when the ledger is unreachable or not
	// configured.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrTimeout is returned when a submission exceeded its deadline.
	ErrTimeout = errors.New("ledger submission timed out")
)

// Receipt is the ledger's acknowledgement of a submitted vote.
type Receipt struct {
	// TxHash uniquely references the transaction on the ledger.
	TxHash string
	// BlockNumber is the containing block, 0 while the transaction is
	// accepted but not yet mined.
	BlockNumber uint64
}

// Tally is the on-ledger vote count for a single candidate.
type Tally struct {
	CandidateID string `json:"candidate_id"`
	Votes       uint64 `json:"votes"`
}

// Status describes the gateway's current wiring, for the operator endpoint.
type Status struct {
	Configured      bool   `json:"configured"`
	Connected       bool   `json:"connected"`
	ContractAddress string `json:"contract_address"`
}

// Gateway submits votes to the ledger.
type Gateway interface {
	// Submit records the vote on the ledger, bounded by ctx. A returned
	// Receipt means the ledger accepted the transaction.
	Submit(ctx context.Context, voterID, candidateID string) (*Receipt, error)

	// Status reports whether the gateway is configured and reachable.
	Status(ctx context.Context) Status
}
