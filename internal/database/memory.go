package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/eleves/internal/core"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory core.Store. The operator CLI uses it for
// dry runs; tests use it as a real store without a database.
type MemoryStore struct {
	mu        sync.RWMutex
	students  map[string]*core.Student
	order     []string
	guardians []core.Guardian
	classes   []core.Class
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{students: make(map[string]*core.Student)}
}

var _ core.Store = (*MemoryStore)(nil)

// SeedClass stores a class as if it had been created earlier.
func (m *MemoryStore) SeedClass(tenantID, niveau, nomComplet string) core.Class {
	c, _ := m.CreateClass(context.Background(), core.ClassDraft{EcoleID: tenantID, Niveau: niveau, NomComplet: nomComplet})
	return c
}

func (m *MemoryStore) FindStudentByMatricule(ctx context.Context, tenantID, matricule string) (*core.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		if s := m.students[id]; s.EcoleID == tenantID && s.Matricule == matricule {
			found := *s
			return &found, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) CreateStudent(ctx context.Context, d core.StudentDraft) (core.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.students {
		if s.EcoleID == d.EcoleID && s.Matricule == d.Matricule {
			return core.Student{}, fmt.Errorf("duplicate key value violates unique constraint (matricule %s)", d.Matricule)
		}
	}

	s := &core.Student{
		ID:              uuid.NewString(),
		EcoleID:         d.EcoleID,
		Nom:             d.Nom,
		Prenom:          d.Prenom,
		Matricule:       d.Matricule,
		DateNaissance:   d.DateNaissance,
		Sexe:            d.Sexe,
		DateInscription: d.DateInscription,
		Statut:          d.Statut,
	}
	m.students[s.ID] = s
	m.order = append(m.order, s.ID)
	return *s, nil
}

func (m *MemoryStore) UpdateStudent(ctx context.Context, id string, patch core.StudentPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.students[id]
	if !ok {
		return fmt.Errorf("student %s not found", id)
	}
	if patch.ClasseID != nil {
		classID := *patch.ClasseID
		s.ClasseID = &classID
	}
	if patch.ParentID != nil {
		parentID := *patch.ParentID
		s.ParentID = &parentID
	}
	return nil
}

func (m *MemoryStore) ListStudents(ctx context.Context, tenantID string) ([]core.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []core.Student
	for _, id := range m.order {
		if s := m.students[id]; s.EcoleID == tenantID {
			out = append(out, *s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Nom != out[j].Nom {
			return out[i].Nom < out[j].Nom
		}
		return out[i].Prenom < out[j].Prenom
	})
	return out, nil
}

func (m *MemoryStore) FindGuardianByName(ctx context.Context, tenantID, prenom, nom string) (*core.Guardian, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, g := range m.guardians {
		s, ok := m.students[g.EleveID]
		if ok && s.EcoleID == tenantID && g.Prenom == prenom && g.Nom == nom {
			found := g
			return &found, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) CreateGuardian(ctx context.Context, d core.GuardianDraft, studentID string) (core.Guardian, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.students[studentID]; !ok {
		return core.Guardian{}, fmt.Errorf("insert violates foreign key constraint: student %s", studentID)
	}

	g := core.Guardian{
		ID:        uuid.NewString(),
		EleveID:   studentID,
		Nom:       d.Nom,
		Prenom:    d.Prenom,
		Telephone: d.Telephone,
		Email:     d.Email,
		Relation:  d.Relation,
	}
	m.guardians = append(m.guardians, g)
	return g, nil
}

func (m *MemoryStore) FindClassByNiveau(ctx context.Context, tenantID, niveau string) (*core.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.classes {
		if c.EcoleID == tenantID && c.Niveau == niveau {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListClasses(ctx context.Context, tenantID string) ([]core.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []core.Class
	for _, c := range m.classes {
		if c.EcoleID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateClass(ctx context.Context, d core.ClassDraft) (core.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := core.Class{
		ID:         uuid.NewString(),
		EcoleID:    d.EcoleID,
		Niveau:     d.Niveau,
		NomComplet: d.NomComplet,
	}
	m.classes = append(m.classes, c)
	return c, nil
}

func (m *MemoryStore) ListStudentRecords(ctx context.Context, tenantID string) ([]core.StudentRecord, error) {
	students, err := m.ListStudents(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]core.StudentRecord, len(students))
	for i, s := range students {
		r := core.StudentRecord{Student: s}
		if s.ClasseID != nil {
			for _, c := range m.classes {
				if c.ID == *s.ClasseID {
					r.ClasseNom = c.NomComplet
				}
			}
		}
		if s.ParentID != nil {
			for _, g := range m.guardians {
				if g.ID == *s.ParentID {
					r.ParentNom, r.ParentPrenom = g.Nom, g.Prenom
					r.ParentRelation = string(g.Relation)
					if g.Telephone != nil {
						r.ParentTel = *g.Telephone
					}
					if g.Email != nil {
						r.ParentEmail = *g.Email
					}
				}
			}
		}
		records[i] = r
	}
	return records, nil
}

// Counts returns the number of students, guardians and classes stored.
func (m *MemoryStore) Counts() (students, guardians, classes int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.students), len(m.guardians), len(m.classes)
}
