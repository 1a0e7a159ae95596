package core

import "context"

// Store is the persistence collaborator of the import pipeline.
//
// Find methods return (nil, nil) when nothing matches. Each write is
// expected to be atomic on its own; the pipeline never spans a
// transaction over several calls.
type Store interface {
	FindStudentByMatricule(ctx context.Context, tenantID, matricule string) (*Student, error)
	CreateStudent(ctx context.Context, draft StudentDraft) (Student, error)
	UpdateStudent(ctx context.Context, id string, patch StudentPatch) error
	ListStudents(ctx context.Context, tenantID string) ([]Student, error)

	// FindGuardianByName matches first and last name exactly among the
	// guardians of the tenant's students. Among duplicates the oldest wins.
	FindGuardianByName(ctx context.Context, tenantID, prenom, nom string) (*Guardian, error)
	CreateGuardian(ctx context.Context, draft GuardianDraft, studentID string) (Guardian, error)

	FindClassByNiveau(ctx context.Context, tenantID, niveau string) (*Class, error)
	// ListClasses returns the tenant's classes in creation order.
	ListClasses(ctx context.Context, tenantID string) ([]Class, error)
	CreateClass(ctx context.Context, draft ClassDraft) (Class, error)

	ListStudentRecords(ctx context.Context, tenantID string) ([]StudentRecord, error)
}
