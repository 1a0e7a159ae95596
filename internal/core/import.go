package core

// import.go commits validated rows one at a time.
//
// Each row is committed in two phases because a guardian must reference an
// existing student:
//  1. createStudentShell allocates the matricule, normalizes the row and
//     creates the student with no class and no guardian.
//  2. attachRelations resolves or creates the guardian, then the class,
//     and updates the student with both ids.
//
// A failing row is recorded as "Ligne {n}: {message}" and the loop moves
// on. Nothing already written is rolled back. Rows run strictly in sheet
// order so that each row sees the matricules, guardians and classes of the
// rows before it.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RunImport validates sheet and commits its rows synchronously. It returns
// the validation gate error without writing anything when any row is
// invalid. onProgress may be nil.
func (s *Service) RunImport(ctx context.Context, tenantID string, sheet *Sheet, onProgress ProgressCallback) (*ImportOutcome, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if report := ValidateRows(sheet.Header, sheet.Rows); !report.OK() {
		return nil, report.Err()
	}

	if err := s.limiter.Acquire(ctx, tenantID); err != nil {
		return nil, err
	}
	defer s.limiter.Release(tenantID)

	outcome := s.runRows(ctx, s.log.With("tenant_id", tenantID), tenantID, sheet.Rows, onProgress)
	return &outcome, nil
}

// runRows is the commit loop. Progress is reported after every row
// whatever its outcome; cancellation is checked between rows.
func (s *Service) runRows(ctx context.Context, log *slog.Logger, tenantID string, rows []ImportRow, onProgress ProgressCallback) ImportOutcome {
	start := time.Now()
	year := s.matriculeYear()

	outcome := ImportOutcome{
		State:     StateCompleted,
		Total:     len(rows),
		Successes: make([]string, 0, len(rows)),
		Errors:    make([]string, 0),
	}
	progress := ImportProgress{State: StateImporting, Total: len(rows)}
	report := func() {
		if onProgress != nil {
			onProgress(progress)
		}
	}
	report()

	log.Info("import started", "rows", len(rows), "matricule_year", year)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			outcome.State = StateCancelled
			outcome.Error = err.Error()
			log.Warn("import stopped", "row", row.Line, "error", err)
			break
		}

		rowLog := log.With("row", row.Line)
		student, err := s.importRow(ctx, rowLog, tenantID, year, row)
		if err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("Ligne %d: %s", row.Line, err))
			progress.Errors++
			rowLog.Warn("import row failed", "error", err)
		} else {
			outcome.Successes = append(outcome.Successes, student.DisplayName())
			progress.Successes++
			rowLog.Debug("import row committed", "student_id", student.ID, "matricule", student.Matricule)
		}

		progress.Current++
		report()
	}

	outcome.SuccessCount = len(outcome.Successes)
	outcome.ErrorCount = len(outcome.Errors)
	outcome.Duration = time.Since(start)

	if outcome.SuccessCount > 0 {
		// Fresh context: the run context may be the reason we stopped.
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		students, err := s.store.ListStudents(refreshCtx, tenantID)
		cancel()
		if err != nil {
			log.Warn("refresh student list failed", "error", err)
		} else {
			outcome.Students = students
		}
	}

	log.Info("import finished",
		"state", outcome.State,
		"successes", outcome.SuccessCount,
		"errors", outcome.ErrorCount,
		"duration_ms", outcome.Duration.Milliseconds(),
	)
	return outcome
}

func (s *Service) importRow(ctx context.Context, log *slog.Logger, tenantID string, year int, row ImportRow) (Student, error) {
	student, err := s.createStudentShell(ctx, log, tenantID, year, row)
	if err != nil {
		return Student{}, err
	}
	if err := s.attachRelations(ctx, log, student, row); err != nil {
		return student, err
	}
	return student, nil
}

// createStudentShell creates the student of row without class or guardian.
func (s *Service) createStudentShell(ctx context.Context, log *slog.Logger, tenantID string, year int, row ImportRow) (Student, error) {
	matricule := row.Get(ColMatricule)
	if matricule != "" {
		if err := s.allocator.Claim(ctx, tenantID, matricule); err != nil {
			return Student{}, err
		}
	} else {
		var err error
		matricule, err = s.allocator.NextAvailable(ctx, tenantID, year)
		if err != nil {
			return Student{}, err
		}
	}
	// Once created the store answers for the matricule.
	defer s.allocator.Release(tenantID, matricule)

	draft := StudentDraft{
		EcoleID:   tenantID,
		Nom:       row.Get(ColNom),
		Prenom:    row.Get(ColPrenom),
		Matricule: matricule,
		Statut:    StatutActif,
	}

	if raw := row.Get(ColDateNaissance); raw != "" {
		if d, ok := NormalizeDate(raw); ok {
			draft.DateNaissance = &d
		} else {
			log.Info("birth date unreadable, left empty", "value", raw)
		}
	}

	today := s.cfg.Now().Format(DateLayout)
	switch raw := row.Get(ColDateInscription); {
	case raw == "":
		draft.DateInscription = today
	default:
		if d, ok := NormalizeDate(raw); ok {
			draft.DateInscription = d
		} else {
			log.Info("enrolment date unreadable, using today", "value", raw, "default", today)
			draft.DateInscription = today
		}
	}

	if raw := row.Get(ColSexe); raw != "" {
		if sexe, ok := NormalizeSexe(raw); ok {
			draft.Sexe = &sexe
		}
	}

	if err := validateDraft(draft); err != nil {
		return Student{}, fmt.Errorf("élève: %w", err)
	}

	student, err := s.store.CreateStudent(ctx, draft)
	if err != nil {
		return Student{}, fmt.Errorf("create student: %w", err)
	}
	return student, nil
}

// attachRelations resolves the guardian then the class of row and links
// them to student. student must already be stored.
func (s *Service) attachRelations(ctx context.Context, log *slog.Logger, student Student, row ImportRow) error {
	if student.ID == "" {
		return errors.New("attach relations: student has no id")
	}

	var patch StudentPatch

	if nom, prenom := row.Get(ColParentNom), row.Get(ColParentPrenom); nom != "" && prenom != "" {
		relation, defaulted := NormalizeRelation(row.Get(ColParentRelation))
		if defaulted {
			log.Info("guardian relation defaulted", "value", row.Get(ColParentRelation), "relation", relation)
		}

		draft := GuardianDraft{
			EcoleID:  student.EcoleID,
			Nom:      nom,
			Prenom:   prenom,
			Relation: relation,
		}
		if tel := NormalizePhone(row.Get(ColParentTel)); tel != "" {
			draft.Telephone = &tel
		}
		if email := row.Get(ColParentEmail); email != "" {
			draft.Email = &email
		}

		id, reused, err := s.resolver.ResolveGuardian(ctx, student.ID, draft)
		if err != nil {
			return err
		}
		if reused {
			log.Debug("guardian reused", "guardian_id", id)
		}
		patch.ParentID = &id
	}

	classID, created, err := s.resolver.ResolveClass(ctx, student.EcoleID, row.Get(ColClasse))
	if err != nil {
		return err
	}
	if created {
		log.Info("class created", "class_id", classID, "niveau", row.Get(ColClasse))
	}
	patch.ClasseID = &classID

	if err := s.store.UpdateStudent(ctx, student.ID, patch); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

func (s *Service) matriculeYear() int {
	if s.cfg.MatriculeYear > 0 {
		return s.cfg.MatriculeYear
	}
	return s.cfg.Now().Year()
}
