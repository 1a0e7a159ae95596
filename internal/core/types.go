package core

import (
	"strings"
	"time"
)

// Column labels recognised in an import sheet. Matching is exact
// (case and accent sensitive) after trimming and NFC normalization.
const (
	ColNom             = "Nom"
	ColPrenom          = "Prénom"
	ColClasse          = "Classe"
	ColDateNaissance   = "Date naissance"
	ColSexe            = "Sexe"
	ColMatricule       = "Matricule"
	ColDateInscription = "Date inscription"
	ColParentNom       = "Parent Nom"
	ColParentPrenom    = "Parent Prénom"
	ColParentTel       = "Parent Tél"
	ColParentRelation  = "Parent Relation"
	ColParentEmail     = "Parent Email"
)

// RequiredColumns must all be present in the header row.
var RequiredColumns = []string{ColNom, ColPrenom, ColClasse}

// ImportColumns is the full header written to the import template.
var ImportColumns = []string{
	ColNom, ColPrenom, ColClasse, ColDateNaissance, ColSexe, ColMatricule,
	ColDateInscription, ColParentNom, ColParentPrenom, ColParentTel,
	ColParentRelation, ColParentEmail,
}

// ImportRow is one data row of the sheet keyed by header label.
// Line is the spreadsheet line number (the header is line 1).
type ImportRow struct {
	Line   int               `json:"line"`
	Fields map[string]string `json:"fields"`
}

// Get returns the trimmed value of column, or "" when absent.
func (r ImportRow) Get(column string) string {
	return strings.TrimSpace(r.Fields[column])
}

// Sheet is the decoded first worksheet of an import file.
type Sheet struct {
	Header []string
	Rows   []ImportRow
}

// HasColumn reports whether the header contains column.
func (s *Sheet) HasColumn(column string) bool {
	for _, h := range s.Header {
		if h == column {
			return true
		}
	}
	return false
}

// Student statuses.
const (
	StatutActif   = "actif"
	StatutInactif = "inactif"
)

// Student is a durable student record. Matricule is unique per tenant.
type Student struct {
	ID              string  `json:"id"`
	EcoleID         string  `json:"ecoleId"`
	Nom             string  `json:"nom"`
	Prenom          string  `json:"prenom"`
	Matricule       string  `json:"matricule"`
	DateNaissance   *string `json:"dateNaissance,omitempty"`
	Sexe            *string `json:"sexe,omitempty"`
	DateInscription string  `json:"dateInscription"`
	ClasseID        *string `json:"classeId,omitempty"`
	ParentID        *string `json:"parentId,omitempty"`
	Statut          string  `json:"statut"`
}

// DisplayName is the name reported in import successes.
func (s Student) DisplayName() string {
	return strings.TrimSpace(s.Prenom + " " + s.Nom)
}

// Guardian (parent_tuteur) is linked to the student it was created for
// and reused by later rows whose guardian name matches exactly.
type Guardian struct {
	ID        string   `json:"id"`
	EleveID   string   `json:"eleveId"`
	Nom       string   `json:"nom"`
	Prenom    string   `json:"prenom"`
	Telephone *string  `json:"telephone,omitempty"`
	Email     *string  `json:"email,omitempty"`
	Relation  Relation `json:"relation"`
}

// Class (classe) of a school.
type Class struct {
	ID         string `json:"id"`
	EcoleID    string `json:"ecoleId"`
	Niveau     string `json:"niveau"`
	NomComplet string `json:"nomComplet"`
}

// StudentDraft is the payload of a student creation.
type StudentDraft struct {
	EcoleID         string  `json:"ecoleId" validate:"required"`
	Nom             string  `json:"nom" validate:"required,max=100"`
	Prenom          string  `json:"prenom" validate:"required,max=100"`
	Matricule       string  `json:"matricule" validate:"required,max=32"`
	DateNaissance   *string `json:"dateNaissance" validate:"omitempty,datetime=2006-01-02"`
	Sexe            *string `json:"sexe" validate:"omitempty,oneof=M F"`
	DateInscription string  `json:"dateInscription" validate:"required,datetime=2006-01-02"`
	Statut          string  `json:"statut" validate:"required,oneof=actif inactif"`
}

// StudentPatch holds the relation ids set after the student exists.
// Nil fields are left untouched.
type StudentPatch struct {
	ClasseID *string
	ParentID *string
}

// GuardianDraft is the payload of a guardian creation.
type GuardianDraft struct {
	EcoleID   string   `json:"ecoleId" validate:"required"`
	Nom       string   `json:"nom" validate:"required,max=100"`
	Prenom    string   `json:"prenom" validate:"required,max=100"`
	Telephone *string  `json:"telephone" validate:"omitempty,max=20"`
	Email     *string  `json:"email" validate:"omitempty,email"`
	Relation  Relation `json:"relation" validate:"required,oneof=pere mere tuteur"`
}

// ClassDraft is the payload of a class creation.
type ClassDraft struct {
	EcoleID    string `json:"ecoleId" validate:"required"`
	Niveau     string `json:"niveau" validate:"required,max=50"`
	NomComplet string `json:"nomComplet" validate:"required,max=100"`
}

// StudentRecord is a student flattened with its class and guardian,
// as written by the export.
type StudentRecord struct {
	Student
	ClasseNom      string
	ParentNom      string
	ParentPrenom   string
	ParentTel      string
	ParentEmail    string
	ParentRelation string
}

// ImportState is the state of an import session.
type ImportState string

const (
	StateIdle       ImportState = "idle"
	StateValidating ImportState = "validating"
	StateBlocked    ImportState = "blocked"
	StateReady      ImportState = "ready"
	StateImporting  ImportState = "importing"
	StateCompleted  ImportState = "completed"
	StateCancelled  ImportState = "cancelled"
	StateFailed     ImportState = "failed"
)

// Terminal reports whether no further transition can happen.
func (s ImportState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// ImportProgress is a snapshot of a running import.
type ImportProgress struct {
	SessionID string      `json:"sessionId"`
	State     ImportState `json:"state"`
	Current   int         `json:"current"`
	Total     int         `json:"total"`
	Successes int         `json:"successes"`
	Errors    int         `json:"errors"`
}

// Percent returns the progress as a percentage (0-100).
func (p ImportProgress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return (p.Current * 100) / p.Total
}

// ImportOutcome is the aggregated result of an import run.
// Successes holds display names, Errors holds "Ligne {n}: ..." entries.
type ImportOutcome struct {
	SessionID    string        `json:"sessionId"`
	State        ImportState   `json:"state"`
	Total        int           `json:"total"`
	SuccessCount int           `json:"successCount"`
	ErrorCount   int           `json:"errorCount"`
	Successes    []string      `json:"successes"`
	Errors       []string      `json:"errors"`
	Students     []Student     `json:"students,omitempty"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// ProgressCallback is called after every processed row.
type ProgressCallback func(ImportProgress)
