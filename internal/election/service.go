// Package election implements voter enrollment and biometric authentication
// on top of the identity store and the similarity engine.
package election

import (
	"context"
	"fmt"
	"log"

	"github.com/securevote/backend/internal/facematch"
	"github.com/securevote/backend/internal/voterstore"
)

// DuplicateFaceError reports that a candidate face is already registered
// under another name.
type DuplicateFaceError struct {
	MatchedName string
}

func (e *DuplicateFaceError) Error() string {
	return fmt.Sprintf("face already registered under the name %q", e.MatchedName)
}

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	Match         string
	Score         float64
	Authenticated bool
	HasVoted      bool
}

// Service owns the registration and authentication flows.
type Service struct {
	store voterstore.Store
	pool  *voterstore.Pool
	dim   int

	duplicateThreshold float64
	authThreshold      float64
}

// NewService wires the service. dim is the fixed template dimensionality all
// vectors must have.
func NewService(store voterstore.Store, pool *voterstore.Pool, dim int) *Service {
	return &Service{
		store:              store,
		pool:               pool,
		dim:                dim,
		duplicateThreshold: facematch.DefaultDuplicateThreshold,
		authThreshold:      facematch.DefaultAuthThreshold,
	}
}

// Warmup loads the authentication pool from the store.
func (s *Service) Warmup(ctx context.Context) error {
	if err := s.pool.Warmup(ctx, s.store); err != nil {
		return err
	}
	log.Printf("Authentication pool warmed with %d templates for %d voters", s.pool.Size(), s.pool.Voters())
	return nil
}

// checkVector validates dimensionality and rejects zero-norm vectors. The
// norm check matters most at registration: a degenerate template that made
// it into the pool would fail every subsequent scan for everyone.
func (s *Service) checkVector(vec []float32) error {
	if len(vec) != s.dim {
		return fmt.Errorf("%w: got %d, expected %d", facematch.ErrDimensionMismatch, len(vec), s.dim)
	}
	return facematch.CheckVector(vec)
}

// Register enrolls a new voter. Fails with voterstore.ErrAlreadyRegistered
// for a known name and with *DuplicateFaceError when the face is already
// registered under another name. On success the in-memory pool is appended
// after the store acknowledged durability.
func (s *Service) Register(ctx context.Context, name string, template []float32) error {
	if err := s.checkVector(template); err != nil {
		return err
	}

	// Cheap pre-check; the store's compare-and-set is the authority.
	registered, err := s.store.IsRegistered(ctx, name)
	if err != nil {
		return fmt.Errorf("checking registration: %w", err)
	}
	if registered {
		return voterstore.ErrAlreadyRegistered
	}

	matched, err := facematch.DetectDuplicate(template, s.pool.Registry(), s.duplicateThreshold)
	if err != nil {
		return fmt.Errorf("duplicate scan: %w", err)
	}
	if matched != "" {
		return &DuplicateFaceError{MatchedName: matched}
	}

	if err := s.store.Register(ctx, name, template); err != nil {
		return err
	}
	s.pool.Append(name, template)
	log.Printf("Registered voter %q (%d voters total)", name, s.pool.Voters())
	return nil
}

// Authenticate matches the probe against the whole template pool and, when a
// voter is identified, reports whether they already voted.
func (s *Service) Authenticate(ctx context.Context, probe []float32) (AuthResult, error) {
	if err := s.checkVector(probe); err != nil {
		return AuthResult{}, err
	}

	match, err := facematch.Authenticate(probe, s.pool.Snapshot(), s.authThreshold)
	if err != nil {
		return AuthResult{}, err
	}

	result := AuthResult{
		Match:         match.Match,
		Score:         match.Score,
		Authenticated: match.Authenticated,
	}
	if !match.Authenticated {
		return result, nil
	}

	status, err := s.store.GetVoteStatus(ctx, match.Match)
	if err != nil {
		return AuthResult{}, fmt.Errorf("checking vote status: %w", err)
	}
	result.HasVoted = status.HasVoted
	return result, nil
}

// Stats returns election progress counts.
func (s *Service) Stats(ctx context.Context) (voterstore.Stats, error) {
	return s.store.Stats(ctx)
}

// SimilarVoters returns the k approximate nearest registered voters for a
// probe. Diagnostic only; empty when the neighbor index is disabled.
func (s *Service) SimilarVoters(probe []float32, k int) ([]voterstore.Neighbor, error) {
	if err := s.checkVector(probe); err != nil {
		return nil, err
	}
	return s.pool.Nearest(probe, k), nil
}
