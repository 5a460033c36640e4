// Package voting coordinates the one-time vote cast: the already-voted
// admission check, the bounded ledger submission, and the authoritative
// durable compare-and-set that makes double voting impossible.
package voting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/securevote/backend/internal/ledger"
	"github.com/securevote/backend/internal/voterstore"
)

// RecordedVia says which path durably recorded a vote.
type RecordedVia string

const (
	ViaLedger        RecordedVia = "ledger"
	ViaLocalFallback RecordedVia = "local_fallback"
)

// Outcome describes a successfully cast vote.
type Outcome struct {
	VoteID          string
	RecordedVia     RecordedVia
	LedgerReference string
	BlockNumber     uint64
}

// Orchestrator runs the cast-vote state machine. The ledger round-trip is
// never inside a lock; correctness comes from the store's MarkVoted
// compare-and-set being the single authoritative gate.
type Orchestrator struct {
	store         voterstore.Store
	gateway       ledger.Gateway
	audit         *AuditLog
	submitTimeout time.Duration
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(store voterstore.Store, gateway ledger.Gateway, audit *AuditLog, submitTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		store:         store,
		gateway:       gateway,
		audit:         audit,
		submitTimeout: submitTimeout,
	}
}

// CastVote records one vote for name, exactly once. Ledger failures and
// timeouts are absorbed into the local fallback path and never surface to
// the caller; the only caller-visible error for a well-formed request is
// voterstore.ErrAlreadyVoted.
func (o *Orchestrator) CastVote(ctx context.Context, name, candidateID string) (*Outcome, error) {
	// Admission check. Purely advisory: it cuts off repeat voters before
	// paying for a ledger round-trip, but the CAS below is what decides.
	status, err := o.store.GetVoteStatus(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking vote status: %w", err)
	}
	if status.HasVoted {
		return nil, voterstore.ErrAlreadyVoted
	}

	submitCtx, cancel := context.WithTimeout(ctx, o.submitTimeout)
	receipt, submitErr := o.gateway.Submit(submitCtx, name, candidateID)
	cancel()

	if submitErr == nil && receipt != nil {
		if err := o.store.MarkVoted(ctx, name, candidateID, receipt.TxHash, false); err != nil {
			if errors.Is(err, voterstore.ErrAlreadyVoted) {
				// Lost the race after the ledger accepted the vote.
				// The ledger-side transaction is now an orphan the
				// operator has to reconcile.
				log.Printf("Warning: orphaned ledger vote for %q, tx %s lost the recording race", name, receipt.TxHash)
				return nil, voterstore.ErrAlreadyVoted
			}
			return nil, fmt.Errorf("recording ledger vote: %w", err)
		}
		if err := o.audit.Append(name, candidateID, receipt.TxHash); err != nil {
			log.Printf("Warning: failed to append audit line for %q: %v", name, err)
		}
		return &Outcome{
			VoteID:          uuid.NewString(),
			RecordedVia:     ViaLedger,
			LedgerReference: receipt.TxHash,
			BlockNumber:     receipt.BlockNumber,
		}, nil
	}

	// Ledger failed, timed out, or is unconfigured. Local recording keeps
	// the election available; this path must not depend on the ledger at
	// all.
	log.Printf("Ledger submission failed for %q, recording locally: %v", name, submitErr)
	if err := o.store.MarkVoted(ctx, name, candidateID, "", true); err != nil {
		if errors.Is(err, voterstore.ErrAlreadyVoted) {
			return nil, voterstore.ErrAlreadyVoted
		}
		return nil, fmt.Errorf("recording fallback vote: %w", err)
	}
	if err := o.audit.Append(name, candidateID, ""); err != nil {
		log.Printf("Warning: failed to append audit line for %q: %v", name, err)
	}
	return &Outcome{
		VoteID:      uuid.NewString(),
		RecordedVia: ViaLocalFallback,
	}, nil
}
