package core

import (
	"context"
	"fmt"
	"sync"
)

// DefaultMaxMatriculeSeq is the highest sequence probed for one year.
const DefaultMaxMatriculeSeq = 9999

// MatriculeLookup is the store capability the allocator probes.
type MatriculeLookup interface {
	FindStudentByMatricule(ctx context.Context, tenantID, matricule string) (*Student, error)
}

// FormatMatricule builds MAT-{year}-{seq} with seq zero-padded to 4 digits.
func FormatMatricule(year, seq int) string {
	return fmt.Sprintf("MAT-%d-%04d", year, seq)
}

// MatriculeAllocator hands out year-scoped student identifiers by probing
// the store from sequence 1 upwards. There is no persisted counter, so a
// failed row never burns an identifier.
//
// Values handed out but not yet committed are held in a per-tenant
// reservation set; Release drops a reservation once the student has been
// created (the store then answers for it) or the row has been abandoned.
type MatriculeAllocator struct {
	lookup MatriculeLookup
	maxSeq int

	mu       sync.Mutex
	reserved map[string]map[string]struct{}
}

// NewMatriculeAllocator creates an allocator probing at most maxSeq
// sequences per year.
func NewMatriculeAllocator(lookup MatriculeLookup, maxSeq int) *MatriculeAllocator {
	if maxSeq <= 0 || maxSeq > DefaultMaxMatriculeSeq {
		maxSeq = DefaultMaxMatriculeSeq
	}
	return &MatriculeAllocator{
		lookup:   lookup,
		maxSeq:   maxSeq,
		reserved: make(map[string]map[string]struct{}),
	}
}

// NextAvailable returns the first free matricule of year for the tenant
// and reserves it. It fails with ErrMatriculeExhausted past the ceiling.
func (a *MatriculeAllocator) NextAvailable(ctx context.Context, tenantID string, year int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for seq := 1; seq <= a.maxSeq; seq++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		matricule := FormatMatricule(year, seq)
		if a.isReserved(tenantID, matricule) {
			continue
		}

		existing, err := a.lookup.FindStudentByMatricule(ctx, tenantID, matricule)
		if err != nil {
			return "", fmt.Errorf("probe matricule %s: %w", matricule, err)
		}
		if existing != nil {
			continue
		}

		a.reserve(tenantID, matricule)
		return matricule, nil
	}

	return "", fmt.Errorf("%w: no free sequence up to %s", ErrMatriculeExhausted, FormatMatricule(year, a.maxSeq))
}

// Claim reserves an explicit matricule taken from the sheet. It fails
// with ErrMatriculeTaken when a student or a pending row already holds it.
func (a *MatriculeAllocator) Claim(ctx context.Context, tenantID, matricule string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isReserved(tenantID, matricule) {
		return fmt.Errorf("%w: %s", ErrMatriculeTaken, matricule)
	}
	existing, err := a.lookup.FindStudentByMatricule(ctx, tenantID, matricule)
	if err != nil {
		return fmt.Errorf("probe matricule %s: %w", matricule, err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrMatriculeTaken, matricule)
	}

	a.reserve(tenantID, matricule)
	return nil
}

// Release drops the reservation of matricule.
func (a *MatriculeAllocator) Release(tenantID, matricule string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := a.reserved[tenantID]
	delete(set, matricule)
	if len(set) == 0 {
		delete(a.reserved, tenantID)
	}
}

// Reserved returns the number of pending reservations for the tenant.
func (a *MatriculeAllocator) Reserved(tenantID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reserved[tenantID])
}

func (a *MatriculeAllocator) isReserved(tenantID, matricule string) bool {
	_, ok := a.reserved[tenantID][matricule]
	return ok
}

func (a *MatriculeAllocator) reserve(tenantID, matricule string) {
	set, ok := a.reserved[tenantID]
	if !ok {
		set = make(map[string]struct{})
		a.reserved[tenantID] = set
	}
	set[matricule] = struct{}{}
}
