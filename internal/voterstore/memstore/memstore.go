// Package memstore provides an in-memory Store implementation for testing.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/securevote/backend/internal/voterstore"
)

// Store is an in-memory voterstore.Store with error injection hooks.
type Store struct {
	mu       sync.Mutex
	voters   []voterstore.VoterIdentity
	index    map[string]int
	statuses map[string]voterstore.VoteStatus

	// Error injection
	RegisterError      error
	IsRegisteredError  error
	LoadTemplatesError error
	GetStatusError     error
	MarkVotedError     error
	StatsError         error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		index:    make(map[string]int),
		statuses: make(map[string]voterstore.VoteStatus),
	}
}

// Register creates a voter record or fails with ErrAlreadyRegistered.
func (s *Store) Register(ctx context.Context, name string, template []float32) error {
	if s.RegisterError != nil {
		return s.RegisterError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[name]; exists {
		return voterstore.ErrAlreadyRegistered
	}
	s.voters = append(s.voters, voterstore.VoterIdentity{
		Name:         name,
		Templates:    [][]float32{template},
		RegisteredAt: time.Now().UTC(),
	})
	s.index[name] = len(s.voters) - 1
	return nil
}

// IsRegistered reports whether name is registered.
func (s *Store) IsRegistered(ctx context.Context, name string) (bool, error) {
	if s.IsRegisteredError != nil {
		return false, s.IsRegisteredError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[name]
	return ok, nil
}

// LoadAllTemplates returns all voters in registration order.
func (s *Store) LoadAllTemplates(ctx context.Context) ([]voterstore.VoterIdentity, error) {
	if s.LoadTemplatesError != nil {
		return nil, s.LoadTemplatesError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]voterstore.VoterIdentity, len(s.voters))
	copy(out, s.voters)
	return out, nil
}

// GetVoteStatus returns the vote status for name.
func (s *Store) GetVoteStatus(ctx context.Context, name string) (voterstore.VoteStatus, error) {
	if s.GetStatusError != nil {
		return voterstore.VoteStatus{}, s.GetStatusError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[name]
	if !ok {
		return voterstore.VoteStatus{Name: name}, nil
	}
	return status, nil
}

// MarkVoted atomically flips the has-voted flag.
func (s *Store) MarkVoted(ctx context.Context, name, candidateID, ledgerReference string, fallback bool) error {
	if s.MarkVotedError != nil {
		return s.MarkVotedError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.statuses[name]; ok && existing.HasVoted {
		return voterstore.ErrAlreadyVoted
	}
	now := time.Now().UTC()
	s.statuses[name] = voterstore.VoteStatus{
		Name:            name,
		HasVoted:        true,
		CastAt:          &now,
		CandidateID:     candidateID,
		LedgerReference: ledgerReference,
		Fallback:        fallback,
	}
	return nil
}

// Stats returns registered/voted/remaining counts.
func (s *Store) Stats(ctx context.Context) (voterstore.Stats, error) {
	if s.StatsError != nil {
		return voterstore.Stats{}, s.StatsError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	voted := 0
	for _, st := range s.statuses {
		if st.HasVoted {
			voted++
		}
	}
	return voterstore.Stats{
		Registered: len(s.voters),
		Voted:      voted,
		Remaining:  len(s.voters) - voted,
	}, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
