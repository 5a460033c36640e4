package facematch

import (
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"identical scaled", []float32{2, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"halfway", []float32{1, 1, 1, 1}, []float32{1, 1, -1, 1}, 0.5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CosineSimilarity(tc.a, tc.b)
			if err != nil {
				t.Fatalf("CosineSimilarity failed: %v", err)
			}
			if math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("CosineSimilarity(%v, %v) = %v; want %v", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	pairs := [][2][]float32{
		{{1, 2, 3}, {4, 5, 6}},
		{{0.5, -0.25, 0.75}, {1, 1, 1}},
		{{-1, 2, -3, 4}, {4, -3, 2, -1}},
	}

	for _, p := range pairs {
		ab, err := CosineSimilarity(p[0], p[1])
		if err != nil {
			t.Fatalf("CosineSimilarity failed: %v", err)
		}
		ba, err := CosineSimilarity(p[1], p[0])
		if err != nil {
			t.Fatalf("CosineSimilarity failed: %v", err)
		}
		if ab != ba {
			t.Errorf("sim(%v, %v) = %v but sim reversed = %v", p[0], p[1], ab, ba)
		}
	}
}

func TestCosineSimilarityErrors(t *testing.T) {
	tests := []struct {
		name    string
		a       []float32
		b       []float32
		wantErr error
	}{
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, ErrDimensionMismatch},
		{"zero norm left", []float32{0, 0, 0}, []float32{1, 0, 0}, ErrDegenerateVector},
		{"zero norm right", []float32{1, 0, 0}, []float32{0, 0, 0}, ErrDegenerateVector},
		{"both empty", nil, nil, ErrDegenerateVector},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CosineSimilarity(tc.a, tc.b)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("CosineSimilarity(%v, %v) error = %v; want %v", tc.a, tc.b, err, tc.wantErr)
			}
		})
	}
}

func TestCheckVector(t *testing.T) {
	tests := []struct {
		name    string
		vec     []float32
		wantErr error
	}{
		{"unit vector", []float32{1, 0, 0, 0}, nil},
		{"negative components", []float32{0, 0, -0.5, 0}, nil},
		{"zero norm", []float32{0, 0, 0, 0}, ErrDegenerateVector},
		{"empty", nil, ErrDegenerateVector},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckVector(tc.vec)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("CheckVector(%v) error = %v; want %v", tc.vec, err, tc.wantErr)
			}
		})
	}
}

func TestDetectDuplicate(t *testing.T) {
	registry := []Entry{
		{Name: "alice", Template: []float32{1, 0, 0, 0}},
		{Name: "bob", Template: []float32{0, 1, 0, 0}},
	}

	t.Run("close face is flagged", func(t *testing.T) {
		name, err := DetectDuplicate([]float32{0.99, 0.01, 0, 0}, registry, DefaultDuplicateThreshold)
		if err != nil {
			t.Fatalf("DetectDuplicate failed: %v", err)
		}
		if name != "alice" {
			t.Errorf("DetectDuplicate = %q; want alice", name)
		}
	})

	t.Run("distinct face passes", func(t *testing.T) {
		name, err := DetectDuplicate([]float32{0, 0, 1, 0}, registry, DefaultDuplicateThreshold)
		if err != nil {
			t.Fatalf("DetectDuplicate failed: %v", err)
		}
		if name != "" {
			t.Errorf("DetectDuplicate = %q; want no match", name)
		}
	})

	t.Run("empty registry", func(t *testing.T) {
		name, err := DetectDuplicate([]float32{1, 0, 0, 0}, nil, DefaultDuplicateThreshold)
		if err != nil {
			t.Fatalf("DetectDuplicate failed: %v", err)
		}
		if name != "" {
			t.Errorf("DetectDuplicate = %q; want no match", name)
		}
	})

	t.Run("dimension mismatch surfaces", func(t *testing.T) {
		_, err := DetectDuplicate([]float32{1, 0}, registry, DefaultDuplicateThreshold)
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("DetectDuplicate error = %v; want ErrDimensionMismatch", err)
		}
	})
}

// TestDetectDuplicateFirstMatchWins pins the early-exit scan: when several
// registered faces exceed the threshold, the one registered first is
// reported, even if a later one is strictly closer to the probe.
func TestDetectDuplicateFirstMatchWins(t *testing.T) {
	registry := []Entry{
		{Name: "first", Template: []float32{0.9, 0.1, 0, 0}},
		{Name: "closer", Template: []float32{1, 0, 0, 0}},
	}

	name, err := DetectDuplicate([]float32{1, 0, 0, 0}, registry, DefaultDuplicateThreshold)
	if err != nil {
		t.Fatalf("DetectDuplicate failed: %v", err)
	}
	if name != "first" {
		t.Errorf("DetectDuplicate = %q; want first (insertion order wins over score)", name)
	}
}

func TestAuthenticate(t *testing.T) {
	pool := []Entry{
		{Name: "alice", Template: []float32{1, 0, 0, 0}},
		{Name: "alice", Template: []float32{0.95, 0.05, 0, 0}},
		{Name: "bob", Template: []float32{0, 1, 0, 0}},
	}

	t.Run("matches best voter across whole pool", func(t *testing.T) {
		result, err := Authenticate([]float32{0.99, 0.01, 0, 0}, pool, DefaultAuthThreshold)
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if !result.Authenticated {
			t.Fatal("expected authentication to succeed")
		}
		if result.Match != "alice" {
			t.Errorf("Match = %q; want alice", result.Match)
		}
		if result.Score <= 0.6 {
			t.Errorf("Score = %v; want > 0.6", result.Score)
		}
	})

	t.Run("unknown face is rejected with score reported", func(t *testing.T) {
		result, err := Authenticate([]float32{0, 0, 0, 1}, pool, DefaultAuthThreshold)
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if result.Authenticated {
			t.Error("expected authentication to fail")
		}
		if result.Match != "" {
			t.Errorf("Match = %q; want empty", result.Match)
		}
	})

	t.Run("empty pool", func(t *testing.T) {
		result, err := Authenticate([]float32{1, 0, 0, 0}, nil, DefaultAuthThreshold)
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if result.Authenticated || result.Match != "" || result.Score != 0 {
			t.Errorf("Authenticate on empty pool = %+v; want zero result", result)
		}
	})

	t.Run("degenerate probe surfaces", func(t *testing.T) {
		_, err := Authenticate([]float32{0, 0, 0, 0}, pool, DefaultAuthThreshold)
		if !errors.Is(err, ErrDegenerateVector) {
			t.Errorf("Authenticate error = %v; want ErrDegenerateVector", err)
		}
	})
}

// TestAuthenticateGlobalMaximum verifies the scan picks the single best
// template in the flattened pool rather than aggregating per voter: one of
// bob's several templates beating alice's single one is enough for bob to win.
func TestAuthenticateGlobalMaximum(t *testing.T) {
	pool := []Entry{
		{Name: "alice", Template: []float32{0.8, 0.2, 0, 0}},
		{Name: "bob", Template: []float32{0, 1, 0, 0}},
		{Name: "bob", Template: []float32{1, 0, 0, 0}},
	}

	result, err := Authenticate([]float32{1, 0, 0, 0}, pool, DefaultAuthThreshold)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if result.Match != "bob" {
		t.Errorf("Match = %q; want bob (global max, not per-voter vote)", result.Match)
	}
}

// TestAuthenticateStrictThreshold pins the strict > comparison: a score
// landing exactly on 1-threshold must not authenticate. The vectors are
// integer-valued so the similarity of 0.5 is exact in floating point.
func TestAuthenticateStrictThreshold(t *testing.T) {
	pool := []Entry{
		{Name: "alice", Template: []float32{1, 1, -1, 1}},
	}

	result, err := Authenticate([]float32{1, 1, 1, 1}, pool, 0.5)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if result.Score != 0.5 {
		t.Fatalf("Score = %v; want exactly 0.5", result.Score)
	}
	if result.Authenticated {
		t.Error("score equal to the threshold must not authenticate")
	}

	// Ties on the boundary still report the score to the caller.
	if result.Match != "" {
		t.Errorf("Match = %q; want empty on rejection", result.Match)
	}
}
