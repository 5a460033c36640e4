// Package facematch implements face embedding comparison: duplicate
// detection at registration time and nearest-match authentication at login
// time. All vectors are cosine-compared; embeddings come from the external
// embedding service and are never produced here.
package facematch

import (
	"errors"
	"fmt"
	"math"
)

// Default similarity thresholds. Duplicate detection is deliberately
// stricter (similarity > 0.7) than authentication (similarity > 0.6):
// authentication has to tolerate capture variance across sessions.
const (
	DefaultDuplicateThreshold = 0.3
	DefaultAuthThreshold      = 0.4
)

var (
	// ErrDimensionMismatch is returned when two vectors of different
	// lengths are compared.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrDegenerateVector is returned when a vector has zero norm and
	// cosine similarity is undefined.
	ErrDegenerateVector = errors.New("degenerate zero-norm embedding")
)

// Entry is one named embedding in a comparison pool. Order matters: both
// duplicate detection and tie-breaking follow the order entries appear in.
type Entry struct {
	Name     string
	Template []float32
}

// Result is the outcome of an authentication scan.
type Result struct {
	// Match is the best-matching voter name, empty when not authenticated.
	Match string
	// Score is the best cosine similarity found, in [-1, 1]. Zero for an
	// empty pool.
	Score float64
	// Authenticated is true iff Score exceeds the threshold.
	Authenticated bool
}

// CosineSimilarity computes dot(a,b) / (|a| * |b|), clamped to [-1, 1] to
// absorb floating point error. Fails on length mismatch and on zero-norm
// input rather than dividing by zero.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, ErrDegenerateVector
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, ErrDegenerateVector
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return similarity, nil
}

// CheckVector rejects vectors cosine similarity is undefined for: empty or
// zero-norm input. Run at every enrollment and probe boundary so a
// degenerate vector is refused up front instead of poisoning every later
// scan of the pool it would have joined.
func CheckVector(vec []float32) error {
	for _, v := range vec {
		if v != 0 {
			return nil
		}
	}
	return ErrDegenerateVector
}

// DetectDuplicate scans the registry in order and returns the name of the
// first entry whose similarity to candidate exceeds 1-threshold, or empty
// when no entry does. The early exit on the first match (rather than the
// best match overall) is long-standing observable behavior; see
// TestDetectDuplicateFirstMatchWins before changing it.
func DetectDuplicate(candidate []float32, registry []Entry, threshold float64) (string, error) {
	for _, entry := range registry {
		similarity, err := CosineSimilarity(candidate, entry.Template)
		if err != nil {
			return "", fmt.Errorf("comparing against %q: %w", entry.Name, err)
		}
		if similarity > 1-threshold {
			return entry.Name, nil
		}
	}
	return "", nil
}

// Authenticate compares probe against every template in the pool and picks
// the single highest similarity across the whole pool, ties going to the
// earlier entry. The match is accepted only when the best score strictly
// exceeds 1-threshold. An empty pool authenticates nobody with score 0.
func Authenticate(probe []float32, pool []Entry, threshold float64) (Result, error) {
	if len(pool) == 0 {
		return Result{}, nil
	}

	best := Result{Score: math.Inf(-1)}
	for _, entry := range pool {
		similarity, err := CosineSimilarity(probe, entry.Template)
		if err != nil {
			return Result{}, fmt.Errorf("comparing against %q: %w", entry.Name, err)
		}
		if similarity > best.Score {
			best.Score = similarity
			best.Match = entry.Name
		}
	}

	if best.Score > 1-threshold {
		best.Authenticated = true
	} else {
		best.Match = ""
	}
	return best, nil
}
