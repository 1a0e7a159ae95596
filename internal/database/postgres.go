// Package database implements core.Store on PostgreSQL and in memory.
package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/JonMunkholm/eleves/internal/config"
	"github.com/JonMunkholm/eleves/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tables read and written by PGStore. The schema is managed outside this
// service:
//
//	classes(id uuid, ecole_id uuid, niveau text, nom_complet text, created_at timestamptz)
//	eleves(id uuid, ecole_id uuid, nom text, prenom text, matricule text,
//	       date_naissance date, sexe text, date_inscription date,
//	       classe_id uuid, parent_id uuid, statut text, created_at timestamptz)
//	parents_tuteurs(id uuid, eleve_id uuid not null references eleves,
//	       nom text, prenom text, telephone text, email text, relation text,
//	       created_at timestamptz)
const (
	studentsTable  = "eleves"
	guardiansTable = "parents_tuteurs"
	classesTable   = "classes"
)

// Connect opens a pgx pool configured from cfg and pings it.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// DatabaseName returns the database named in a connection URL, for logs.
func DatabaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// PGStore is the PostgreSQL implementation of core.Store. Every method is
// a single statement; no transaction spans several calls.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a store on pool.
func NewPGStore(pool *pgxpool.Pool) (*PGStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &PGStore{pool: pool}, nil
}

var _ core.Store = (*PGStore)(nil)

const studentColumns = `id::text, ecole_id::text, nom, prenom, matricule,
	date_naissance::text, sexe, date_inscription::text,
	classe_id::text, parent_id::text, statut`

func scanStudent(row pgx.Row) (core.Student, error) {
	var s core.Student
	err := row.Scan(
		&s.ID, &s.EcoleID, &s.Nom, &s.Prenom, &s.Matricule,
		&s.DateNaissance, &s.Sexe, &s.DateInscription,
		&s.ClasseID, &s.ParentID, &s.Statut,
	)
	return s, err
}

func (s *PGStore) FindStudentByMatricule(ctx context.Context, tenantID, matricule string) (*core.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE ecole_id = $1 AND matricule = $2`, studentColumns, studentsTable)

	student, err := scanStudent(s.pool.QueryRow(ctx, query, tenantID, matricule))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (s *PGStore) CreateStudent(ctx context.Context, d core.StudentDraft) (core.Student, error) {
	query := fmt.Sprintf(`
        INSERT INTO %s (
            id, ecole_id, nom, prenom, matricule, date_naissance, sexe,
            date_inscription, statut, created_at
        ) VALUES (
            gen_random_uuid(), $1, $2, $3, $4, $5::date, $6, $7::date, $8, now()
        )
        RETURNING %s`, studentsTable, studentColumns)

	return scanStudent(s.pool.QueryRow(ctx, query,
		d.EcoleID, d.Nom, d.Prenom, d.Matricule, d.DateNaissance, d.Sexe,
		d.DateInscription, d.Statut,
	))
}

func (s *PGStore) UpdateStudent(ctx context.Context, id string, patch core.StudentPatch) error {
	query := fmt.Sprintf(`
        UPDATE %s
        SET classe_id = COALESCE($2::uuid, classe_id),
            parent_id = COALESCE($3::uuid, parent_id)
        WHERE id = $1`, studentsTable)

	tag, err := s.pool.Exec(ctx, query, id, patch.ClasseID, patch.ParentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("student %s not found", id)
	}
	return nil
}

func (s *PGStore) ListStudents(ctx context.Context, tenantID string) ([]core.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE ecole_id = $1 ORDER BY nom, prenom`, studentColumns, studentsTable)

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []core.Student
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, student)
	}
	return students, rows.Err()
}

func (s *PGStore) FindGuardianByName(ctx context.Context, tenantID, prenom, nom string) (*core.Guardian, error) {
	query := fmt.Sprintf(`
        SELECT p.id::text, p.eleve_id::text, p.nom, p.prenom, p.telephone, p.email, p.relation
        FROM %s p
        JOIN %s e ON e.id = p.eleve_id
        WHERE e.ecole_id = $1 AND p.prenom = $2 AND p.nom = $3
        ORDER BY p.created_at, p.id
        LIMIT 1`, guardiansTable, studentsTable)

	var g core.Guardian
	err := s.pool.QueryRow(ctx, query, tenantID, prenom, nom).Scan(
		&g.ID, &g.EleveID, &g.Nom, &g.Prenom, &g.Telephone, &g.Email, &g.Relation,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *PGStore) CreateGuardian(ctx context.Context, d core.GuardianDraft, studentID string) (core.Guardian, error) {
	query := fmt.Sprintf(`
        INSERT INTO %s (id, eleve_id, nom, prenom, telephone, email, relation, created_at)
        VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, now())
        RETURNING id::text, eleve_id::text, nom, prenom, telephone, email, relation`, guardiansTable)

	var g core.Guardian
	err := s.pool.QueryRow(ctx, query,
		studentID, d.Nom, d.Prenom, d.Telephone, d.Email, string(d.Relation),
	).Scan(&g.ID, &g.EleveID, &g.Nom, &g.Prenom, &g.Telephone, &g.Email, &g.Relation)
	return g, err
}

const classColumns = `id::text, ecole_id::text, niveau, nom_complet`

func (s *PGStore) FindClassByNiveau(ctx context.Context, tenantID, niveau string) (*core.Class, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE ecole_id = $1 AND niveau = $2 ORDER BY created_at LIMIT 1`,
		classColumns, classesTable)

	var c core.Class
	err := s.pool.QueryRow(ctx, query, tenantID, niveau).Scan(&c.ID, &c.EcoleID, &c.Niveau, &c.NomComplet)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PGStore) ListClasses(ctx context.Context, tenantID string) ([]core.Class, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE ecole_id = $1 ORDER BY created_at`, classColumns, classesTable)

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Class, error) {
		var c core.Class
		err := row.Scan(&c.ID, &c.EcoleID, &c.Niveau, &c.NomComplet)
		return c, err
	})
}

func (s *PGStore) CreateClass(ctx context.Context, d core.ClassDraft) (core.Class, error) {
	query := fmt.Sprintf(`
        INSERT INTO %s (id, ecole_id, niveau, nom_complet, created_at)
        VALUES (gen_random_uuid(), $1, $2, $3, now())
        RETURNING %s`, classesTable, classColumns)

	var c core.Class
	err := s.pool.QueryRow(ctx, query, d.EcoleID, d.Niveau, d.NomComplet).
		Scan(&c.ID, &c.EcoleID, &c.Niveau, &c.NomComplet)
	return c, err
}

func (s *PGStore) ListStudentRecords(ctx context.Context, tenantID string) ([]core.StudentRecord, error) {
	query := fmt.Sprintf(`
        SELECT e.id::text, e.ecole_id::text, e.nom, e.prenom, e.matricule,
               e.date_naissance::text, e.sexe, e.date_inscription::text,
               e.classe_id::text, e.parent_id::text, e.statut,
               COALESCE(c.nom_complet, ''), COALESCE(p.nom, ''), COALESCE(p.prenom, ''),
               COALESCE(p.telephone, ''), COALESCE(p.email, ''), COALESCE(p.relation, '')
        FROM %s e
        LEFT JOIN %s c ON c.id = e.classe_id
        LEFT JOIN %s p ON p.id = e.parent_id
        WHERE e.ecole_id = $1
        ORDER BY e.nom, e.prenom`, studentsTable, classesTable, guardiansTable)

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.StudentRecord, error) {
		var r core.StudentRecord
		err := row.Scan(
			&r.ID, &r.EcoleID, &r.Nom, &r.Prenom, &r.Matricule,
			&r.DateNaissance, &r.Sexe, &r.DateInscription,
			&r.ClasseID, &r.ParentID, &r.Statut,
			&r.ClasseNom, &r.ParentNom, &r.ParentPrenom,
			&r.ParentTel, &r.ParentEmail, &r.ParentRelation,
		)
		return r, err
	})
}
