package core

import (
	"context"
	"fmt"
	"sync"
)

// fakeStore is an in-memory Store whose calls can be made to fail.
type fakeStore struct {
	mu        sync.Mutex
	nextID    int
	students  []Student
	guardians []Guardian
	classes   []Class

	probes int

	// failCreate makes CreateStudent fail for students with this Prenom.
	failCreate map[string]error
	// failUpdate makes UpdateStudent fail for students with this Prenom.
	failUpdate map[string]error
	// takenMatricules answer as existing in FindStudentByMatricule.
	takenMatricules map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		failCreate:      make(map[string]error),
		failUpdate:      make(map[string]error),
		takenMatricules: make(map[string]bool),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) FindStudentByMatricule(_ context.Context, tenantID, matricule string) (*Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++

	if f.takenMatricules[matricule] {
		return &Student{EcoleID: tenantID, Matricule: matricule}, nil
	}
	for _, s := range f.students {
		if s.EcoleID == tenantID && s.Matricule == matricule {
			found := s
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateStudent(_ context.Context, d StudentDraft) (Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failCreate[d.Prenom]; err != nil {
		return Student{}, err
	}
	for _, s := range f.students {
		if s.EcoleID == d.EcoleID && s.Matricule == d.Matricule {
			return Student{}, fmt.Errorf("duplicate key value violates unique constraint")
		}
	}
	s := Student{
		ID: f.id("eleve"), EcoleID: d.EcoleID, Nom: d.Nom, Prenom: d.Prenom,
		Matricule: d.Matricule, DateNaissance: d.DateNaissance, Sexe: d.Sexe,
		DateInscription: d.DateInscription, Statut: d.Statut,
	}
	f.students = append(f.students, s)
	return s, nil
}

func (f *fakeStore) UpdateStudent(_ context.Context, id string, patch StudentPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.students {
		s := &f.students[i]
		if s.ID != id {
			continue
		}
		if err := f.failUpdate[s.Prenom]; err != nil {
			return err
		}
		if patch.ClasseID != nil {
			s.ClasseID = patch.ClasseID
		}
		if patch.ParentID != nil {
			s.ParentID = patch.ParentID
		}
		return nil
	}
	return fmt.Errorf("student %s not found", id)
}

func (f *fakeStore) ListStudents(_ context.Context, tenantID string) ([]Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Student
	for _, s := range f.students {
		if s.EcoleID == tenantID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) FindGuardianByName(_ context.Context, _, prenom, nom string) (*Guardian, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, g := range f.guardians {
		if g.Prenom == prenom && g.Nom == nom {
			found := g
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateGuardian(_ context.Context, d GuardianDraft, studentID string) (Guardian, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	exists := false
	for _, s := range f.students {
		if s.ID == studentID {
			exists = true
		}
	}
	if !exists {
		return Guardian{}, fmt.Errorf("violates foreign key constraint: student %q", studentID)
	}

	g := Guardian{
		ID: f.id("parent"), EleveID: studentID, Nom: d.Nom, Prenom: d.Prenom,
		Telephone: d.Telephone, Email: d.Email, Relation: d.Relation,
	}
	f.guardians = append(f.guardians, g)
	return g, nil
}

func (f *fakeStore) FindClassByNiveau(_ context.Context, tenantID, niveau string) (*Class, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.classes {
		if c.EcoleID == tenantID && c.Niveau == niveau {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListClasses(_ context.Context, tenantID string) ([]Class, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Class
	for _, c := range f.classes {
		if c.EcoleID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateClass(_ context.Context, d ClassDraft) (Class, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := Class{ID: f.id("classe"), EcoleID: d.EcoleID, Niveau: d.Niveau, NomComplet: d.NomComplet}
	f.classes = append(f.classes, c)
	return c, nil
}

func (f *fakeStore) ListStudentRecords(ctx context.Context, tenantID string) ([]StudentRecord, error) {
	students, _ := f.ListStudents(ctx, tenantID)

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]StudentRecord, len(students))
	for i, s := range students {
		out[i] = StudentRecord{Student: s}
		for _, c := range f.classes {
			if s.ClasseID != nil && c.ID == *s.ClasseID {
				out[i].ClasseNom = c.NomComplet
			}
		}
	}
	return out, nil
}
