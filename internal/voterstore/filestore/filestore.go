// Package filestore is the zero-infrastructure Store implementation: JSON
// documents in a data directory, written to a temp file and atomically
// renamed before any call acknowledges success. It is the default backend
// when no DATABASE_URL is configured.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/securevote/backend/internal/voterstore"
)

const (
	votersFile   = "voters.json"
	statusesFile = "vote_status.json"
)

// Store keeps the full data set in memory and persists every mutation
// before acknowledging it. The single mutex makes Register and MarkVoted
// compare-and-set sections.
type Store struct {
	mu       sync.Mutex
	dir      string
	voters   []voterstore.VoterIdentity
	index    map[string]int // name -> position in voters
	statuses map[string]voterstore.VoteStatus
}

// New opens or initializes a file store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{
		dir:      dir,
		index:    make(map[string]int),
		statuses: make(map[string]voterstore.VoteStatus),
	}

	if err := loadJSON(filepath.Join(dir, votersFile), &s.voters); err != nil {
		return nil, fmt.Errorf("failed to load voters: %w", err)
	}
	for i, v := range s.voters {
		s.index[v.Name] = i
	}

	if err := loadJSON(filepath.Join(dir, statusesFile), &s.statuses); err != nil {
		return nil, fmt.Errorf("failed to load vote statuses: %w", err)
	}
	if s.statuses == nil {
		s.statuses = make(map[string]voterstore.VoteStatus)
	}

	return s, nil
}

func loadJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	return nil
}

// saveJSON writes to a temporary file first and renames it into place so a
// crash mid-write never leaves a truncated document behind.
func saveJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Register creates the voter record, or fails with ErrAlreadyRegistered.
func (s *Store) Register(ctx context.Context, name string, template []float32) error {
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
	if err := saveJSON(filepath.Join(s.dir, votersFile), s.voters); err != nil {
		// Durability failed; the registration must not be visible.
		s.voters = s.voters[:len(s.voters)-1]
		return err
	}
	s.index[name] = len(s.voters) - 1
	return nil
}

// IsRegistered reports whether name has an identity record.
func (s *Store) IsRegistered(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[name]
	return ok, nil
}

// LoadAllTemplates returns every voter in registration order.
func (s *Store) LoadAllTemplates(ctx context.Context) ([]voterstore.VoterIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]voterstore.VoterIdentity, len(s.voters))
	copy(out, s.voters)
	return out, nil
}

// GetVoteStatus returns the status for name, zero-valued when absent.
func (s *Store) GetVoteStatus(ctx context.Context, name string) (voterstore.VoteStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.statuses[name]
	if !ok {
		return voterstore.VoteStatus{Name: name}, nil
	}
	return status, nil
}

// MarkVoted flips the has-voted flag under the store mutex: exactly one of
// any number of concurrent callers for the same name wins.
func (s *Store) MarkVoted(ctx context.Context, name, candidateID, ledgerReference string, fallback bool) error {
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
	if err := saveJSON(filepath.Join(s.dir, statusesFile), s.statuses); err != nil {
		delete(s.statuses, name)
		return err
	}
	return nil
}

// Stats counts registered and voted voters.
func (s *Store) Stats(ctx context.Context) (voterstore.Stats, error) {
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

// Close is a no-op; every write is already durable.
func (s *Store) Close() error {
	return nil
}
