package election

import (
	"context"
	"errors"
	"testing"

	"github.com/securevote/backend/internal/facematch"
	"github.com/securevote/backend/internal/voterstore"
	"github.com/securevote/backend/internal/voterstore/memstore"
)

func newTestService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	pool := voterstore.NewPool()
	svc := NewService(store, pool, 4)
	if err := svc.Warmup(context.Background()); err != nil {
		t.Fatalf("Warmup failed: %v", err)
	}
	return svc, store
}

func TestRegister(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	registered, err := store.IsRegistered(ctx, "alice")
	if err != nil {
		t.Fatalf("IsRegistered failed: %v", err)
	}
	if !registered {
		t.Error("alice should be registered in the store")
	}
}

func TestRegisterDimensionMismatch(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Register(context.Background(), "alice", []float32{1, 0, 0})
	if !errors.Is(err, facematch.ErrDimensionMismatch) {
		t.Fatalf("Register error = %v; want ErrDimensionMismatch", err)
	}
}

func TestRegisterZeroNormTemplate(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// A zero-norm template must be refused even against an empty pool,
	// where no duplicate comparison would catch it. Once persisted it would
	// make every later scan fail for everyone.
	err := svc.Register(ctx, "mallory", []float32{0, 0, 0, 0})
	if !errors.Is(err, facematch.ErrDegenerateVector) {
		t.Fatalf("Register error = %v; want ErrDegenerateVector", err)
	}
	registered, err := store.IsRegistered(ctx, "mallory")
	if err != nil {
		t.Fatalf("IsRegistered failed: %v", err)
	}
	if registered {
		t.Error("degenerate template must not be persisted")
	}

	// The pool stays clean: registration and authentication keep working.
	if err := svc.Register(ctx, "alice", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Register after rejected template failed: %v", err)
	}
	result, err := svc.Authenticate(ctx, []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("Authenticate after rejected template failed: %v", err)
	}
	if !result.Authenticated || result.Match != "alice" {
		t.Errorf("result = %+v; want authenticated as alice", result)
	}
}

func TestAuthenticateZeroNormProbe(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_, err := svc.Authenticate(ctx, []float32{0, 0, 0, 0})
	if !errors.Is(err, facematch.ErrDegenerateVector) {
		t.Fatalf("Authenticate error = %v; want ErrDegenerateVector", err)
	}
}

func TestRegisterNameTaken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	// Orthogonal face, same name.
	err := svc.Register(ctx, "alice", []float32{0, 0, 1, 0})
	if !errors.Is(err, voterstore.ErrAlreadyRegistered) {
		t.Fatalf("Register error = %v; want ErrAlreadyRegistered", err)
	}
}

func TestRegisterDuplicateFace(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Nearly identical face under a different name.
	err := svc.Register(ctx, "mallory", []float32{0.99, 0.01, 0, 0})
	var dup *DuplicateFaceError
	if !errors.As(err, &dup) {
		t.Fatalf("Register error = %v; want DuplicateFaceError", err)
	}
	if dup.MatchedName != "alice" {
		t.Errorf("MatchedName = %q; want alice", dup.MatchedName)
	}
}

func TestRegisterDistinctFaces(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	// Orthogonal vector: similarity 0, well below the duplicate threshold.
	if err := svc.Register(ctx, "bob", []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("Register of a distinct face failed: %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := svc.Register(ctx, "bob", []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	result, err := svc.Authenticate(ctx, []float32{0.99, 0.01, 0, 0})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !result.Authenticated || result.Match != "alice" {
		t.Fatalf("result = %+v; want authenticated as alice", result)
	}
	if result.Score <= 0.6 {
		t.Errorf("Score = %v; want above the acceptance line", result.Score)
	}
	if result.HasVoted {
		t.Error("alice has not voted yet")
	}

	if err := store.MarkVoted(ctx, "alice", "cand1", "0xabc", false); err != nil {
		t.Fatalf("MarkVoted failed: %v", err)
	}
	result, err = svc.Authenticate(ctx, []float32{0.99, 0.01, 0, 0})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !result.HasVoted {
		t.Error("HasVoted should be true after the vote was recorded")
	}
}

func TestAuthenticateUnknownFace(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	result, err := svc.Authenticate(ctx, []float32{0, 0, 0, 1})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if result.Authenticated {
		t.Errorf("result = %+v; an orthogonal probe must not authenticate", result)
	}
}

func TestAuthenticateEmptyPool(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Authenticate(context.Background(), []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if result.Authenticated || result.Match != "" {
		t.Errorf("result = %+v; want a non-match against an empty pool", result)
	}
}

func TestAuthenticateDimensionMismatch(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Authenticate(context.Background(), []float32{1, 0})
	if !errors.Is(err, facematch.ErrDimensionMismatch) {
		t.Fatalf("Authenticate error = %v; want ErrDimensionMismatch", err)
	}
}

func TestRegisterStoreFailureLeavesPoolUntouched(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	store.RegisterError = errors.New("disk full")
	if err := svc.Register(ctx, "alice", []float32{1, 0, 0, 0}); err == nil {
		t.Fatal("Register should propagate the store error")
	}
	store.RegisterError = nil

	// A failed registration must not leave a phantom pool entry that would
	// block the retry as a duplicate face.
	if err := svc.Register(ctx, "alice", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("retry after store failure failed: %v", err)
	}
}

func TestStats(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := svc.Register(ctx, "bob", []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := store.MarkVoted(ctx, "alice", "cand1", "", true); err != nil {
		t.Fatalf("MarkVoted failed: %v", err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	want := voterstore.Stats{Registered: 2, Voted: 1, Remaining: 1}
	if stats != want {
		t.Errorf("Stats = %+v; want %+v", stats, want)
	}
}
