package core

import (
	"context"
	"errors"
	"testing"
)

func TestFormatMatricule(t *testing.T) {
	if got := FormatMatricule(2024, 7); got != "MAT-2024-0007" {
		t.Errorf("FormatMatricule = %q", got)
	}
	if got := FormatMatricule(2024, 9999); got != "MAT-2024-9999" {
		t.Errorf("FormatMatricule = %q", got)
	}
}

func TestMatriculeAllocator_DistinctWithoutCommits(t *testing.T) {
	store := newFakeStore()
	alloc := NewMatriculeAllocator(store, 0)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		m, err := alloc.NextAvailable(ctx, "ecole-1", 2024)
		if err != nil {
			t.Fatalf("NextAvailable: %v", err)
		}
		if seen[m] {
			t.Fatalf("duplicate matricule %s after %d calls", m, i)
		}
		seen[m] = true
	}
	if got := alloc.Reserved("ecole-1"); got != 50 {
		t.Errorf("Reserved = %d, want 50", got)
	}
}

func TestMatriculeAllocator_InterleavedCommits(t *testing.T) {
	store := newFakeStore()
	alloc := NewMatriculeAllocator(store, 0)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		m, err := alloc.NextAvailable(ctx, "ecole-1", 2024)
		if err != nil {
			t.Fatalf("NextAvailable: %v", err)
		}
		if seen[m] {
			t.Fatalf("duplicate matricule %s", m)
		}
		seen[m] = true

		if i%2 == 0 {
			if _, err := store.CreateStudent(ctx, StudentDraft{EcoleID: "ecole-1", Matricule: m}); err != nil {
				t.Fatalf("CreateStudent: %v", err)
			}
		}
		alloc.Release("ecole-1", m)

		if i%2 == 1 {
			// Released without commit: the same value comes back.
			again, err := alloc.NextAvailable(ctx, "ecole-1", 2024)
			if err != nil || again != m {
				t.Fatalf("uncommitted %s not reused, got %s (%v)", m, again, err)
			}
			alloc.Release("ecole-1", again)
			delete(seen, m)
		}
	}
}

func TestMatriculeAllocator_SkipsExisting(t *testing.T) {
	store := newFakeStore()
	store.takenMatricules["MAT-2024-0001"] = true
	store.takenMatricules["MAT-2024-0002"] = true
	store.takenMatricules["MAT-2024-0004"] = true
	alloc := NewMatriculeAllocator(store, 0)

	got, err := alloc.NextAvailable(context.Background(), "ecole-1", 2024)
	if err != nil {
		t.Fatal(err)
	}
	if got != "MAT-2024-0003" {
		t.Errorf("NextAvailable = %s, want MAT-2024-0003", got)
	}
}

func TestMatriculeAllocator_ScopedByYearAndTenant(t *testing.T) {
	store := newFakeStore()
	alloc := NewMatriculeAllocator(store, 0)
	ctx := context.Background()

	a, _ := alloc.NextAvailable(ctx, "ecole-1", 2024)
	b, _ := alloc.NextAvailable(ctx, "ecole-2", 2024)
	c, _ := alloc.NextAvailable(ctx, "ecole-1", 2025)

	if a != "MAT-2024-0001" || b != "MAT-2024-0001" || c != "MAT-2025-0001" {
		t.Errorf("got %s, %s, %s", a, b, c)
	}
}

func TestMatriculeAllocator_Exhausted(t *testing.T) {
	store := newFakeStore()
	for seq := 1; seq <= 3; seq++ {
		store.takenMatricules[FormatMatricule(2024, seq)] = true
	}
	alloc := NewMatriculeAllocator(store, 3)

	_, err := alloc.NextAvailable(context.Background(), "ecole-1", 2024)
	if !errors.Is(err, ErrMatriculeExhausted) {
		t.Fatalf("err = %v, want ErrMatriculeExhausted", err)
	}
	if store.probes != 3 {
		t.Errorf("probes = %d, want 3", store.probes)
	}
}

func TestMatriculeAllocator_StoreError(t *testing.T) {
	alloc := NewMatriculeAllocator(errLookup{}, 0)

	_, err := alloc.NextAvailable(context.Background(), "ecole-1", 2024)
	if err == nil || errors.Is(err, ErrMatriculeExhausted) {
		t.Fatalf("err = %v, want the store error", err)
	}
	if alloc.Reserved("ecole-1") != 0 {
		t.Error("failed probe must not reserve")
	}
}

func TestMatriculeAllocator_CancelledContext(t *testing.T) {
	alloc := NewMatriculeAllocator(newFakeStore(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := alloc.NextAvailable(ctx, "ecole-1", 2024); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestMatriculeAllocator_Claim(t *testing.T) {
	store := newFakeStore()
	store.takenMatricules["EXT-1"] = true
	alloc := NewMatriculeAllocator(store, 0)
	ctx := context.Background()

	if err := alloc.Claim(ctx, "ecole-1", "EXT-1"); !errors.Is(err, ErrMatriculeTaken) {
		t.Errorf("Claim existing = %v, want ErrMatriculeTaken", err)
	}
	if err := alloc.Claim(ctx, "ecole-1", "EXT-2"); err != nil {
		t.Fatalf("Claim free: %v", err)
	}
	if err := alloc.Claim(ctx, "ecole-1", "EXT-2"); !errors.Is(err, ErrMatriculeTaken) {
		t.Errorf("Claim pending = %v, want ErrMatriculeTaken", err)
	}

	// A claimed sheet value is skipped by generation too.
	if err := alloc.Claim(ctx, "ecole-1", "MAT-2024-0001"); err != nil {
		t.Fatal(err)
	}
	if got, _ := alloc.NextAvailable(ctx, "ecole-1", 2024); got != "MAT-2024-0002" {
		t.Errorf("NextAvailable = %s, want MAT-2024-0002", got)
	}
}

type errLookup struct{}

func (errLookup) FindStudentByMatricule(context.Context, string, string) (*Student, error) {
	return nil, errors.New("connection refused")
}
