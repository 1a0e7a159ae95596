package core

// resolver.go maps the free-text class and guardian names of a row onto
// stored entities, creating them when nothing matches.

import (
	"context"
	"fmt"
	"strings"
)

// DefaultSection is appended to the niveau of a lazily created class.
const DefaultSection = "A"

// Matcher reports whether a candidate key matches the query.
type Matcher func(candidate, query string) bool

// ExactNiveau matches identical strings.
func ExactNiveau(candidate, query string) bool {
	return candidate == query
}

// FoldedSubstring matches when either string contains the other,
// ignoring case.
func FoldedSubstring(candidate, query string) bool {
	c, q := foldText(candidate), foldText(query)
	if c == "" || q == "" {
		return false
	}
	return strings.Contains(q, c) || strings.Contains(c, q)
}

// ResolveOrDefault returns the id of the first class matching query.
// Matchers are tried in order; within one matcher, candidates keep their
// order. It returns ("", false) when nothing matches.
func ResolveOrDefault(candidates []Class, query string, matchers ...Matcher) (string, bool) {
	for _, match := range matchers {
		for _, c := range candidates {
			if match(c.Niveau, query) {
				return c.ID, true
			}
		}
	}
	return "", false
}

// Resolver resolves or creates the classes and guardians of import rows.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver backed by store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveClass returns the id of the tenant's class for niveau: exact
// niveau first, then a case-insensitive substring scan over all classes,
// else a new class named "{niveau} A". created reports the last case.
func (r *Resolver) ResolveClass(ctx context.Context, tenantID, niveau string) (id string, created bool, err error) {
	class, err := r.store.FindClassByNiveau(ctx, tenantID, niveau)
	if err != nil {
		return "", false, fmt.Errorf("find class %q: %w", niveau, err)
	}
	if class != nil {
		return class.ID, false, nil
	}

	classes, err := r.store.ListClasses(ctx, tenantID)
	if err != nil {
		return "", false, fmt.Errorf("list classes: %w", err)
	}
	if id, ok := ResolveOrDefault(classes, niveau, FoldedSubstring); ok {
		return id, false, nil
	}

	draft := ClassDraft{
		EcoleID:    tenantID,
		Niveau:     niveau,
		NomComplet: niveau + " " + DefaultSection,
	}
	if err := validateDraft(draft); err != nil {
		return "", false, fmt.Errorf("classe %q: %w", niveau, err)
	}
	newClass, err := r.store.CreateClass(ctx, draft)
	if err != nil {
		return "", false, fmt.Errorf("create class %q: %w", niveau, err)
	}
	return newClass.ID, true, nil
}

// ResolveGuardian reuses the tenant's guardian with the same first and
// last name, or creates one linked to studentID. The student must exist
// before the call since guardians reference it.
func (r *Resolver) ResolveGuardian(ctx context.Context, studentID string, draft GuardianDraft) (id string, reused bool, err error) {
	existing, err := r.store.FindGuardianByName(ctx, draft.EcoleID, draft.Prenom, draft.Nom)
	if err != nil {
		return "", false, fmt.Errorf("find guardian: %w", err)
	}
	if existing != nil {
		return existing.ID, true, nil
	}

	if err := validateDraft(draft); err != nil {
		return "", false, fmt.Errorf("parent: %w", err)
	}
	guardian, err := r.store.CreateGuardian(ctx, draft, studentID)
	if err != nil {
		return "", false, fmt.Errorf("create guardian: %w", err)
	}
	return guardian.ID, false, nil
}
