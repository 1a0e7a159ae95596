package core

// validation.go checks an import sheet before anything is written.
//
// Validation happens at two levels:
//  1. Header validation: the required columns must be present. When one is
//     missing only column errors are returned.
//  2. Row validation: required values, the guardian name pair and the
//     formats of guardian phone, guardian email and sex.
//
// The report is a gate: the orchestrator refuses to start while it holds
// any error. Unparseable dates are only warnings since a default applies.

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxValidationErrors bounds the number of errors kept in a report.
const MaxValidationErrors = 10

// phonePattern is the national mobile format: optional + and 221
// country code, then 7 and eight digits.
var phonePattern = regexp.MustCompile(`^\+?(221)?7\d{8}$`)

// PhoneFormatHint is shown next to rejected phone numbers.
const PhoneFormatHint = "7XXXXXXXX ou +2217XXXXXXXX"

// ValidationError is a row-attributed problem. Row 0 denotes the header.
type ValidationError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("Ligne %d: %s", e.Row, e.Message)
	}
	return e.Message
}

// ValidationReport is the outcome of ValidateRows.
type ValidationReport struct {
	Errors     []ValidationError `json:"errors"`
	Warnings   []ValidationError `json:"warnings,omitempty"`
	Truncated  bool              `json:"truncated"`
	Structural bool              `json:"structural"`
}

// OK reports whether the import may proceed.
func (r ValidationReport) OK() bool {
	return len(r.Errors) == 0
}

// Err returns the gate error matching the report, or nil.
func (r ValidationReport) Err() error {
	switch {
	case r.OK():
		return nil
	case r.Structural:
		msgs := make([]string, len(r.Errors))
		for i, e := range r.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(msgs, "; "))
	case r.Truncated:
		return fmt.Errorf("%w: %d+ errors", ErrValidationBlocked, len(r.Errors))
	default:
		return fmt.Errorf("%w: %d errors", ErrValidationBlocked, len(r.Errors))
	}
}

func (r *ValidationReport) addError(row int, format string, args ...any) {
	if len(r.Errors) >= MaxValidationErrors {
		r.Truncated = true
		return
	}
	r.Errors = append(r.Errors, ValidationError{Row: row, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationReport) addWarning(row int, format string, args ...any) {
	if len(r.Warnings) >= MaxValidationErrors {
		return
	}
	r.Warnings = append(r.Warnings, ValidationError{Row: row, Message: fmt.Sprintf(format, args...)})
}

// ValidateRows checks the header then every row independently.
func ValidateRows(header []string, rows []ImportRow) ValidationReport {
	var report ValidationReport

	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	for _, col := range RequiredColumns {
		if !present[col] {
			report.Structural = true
			report.addError(0, "colonne obligatoire manquante: %s", col)
		}
	}
	if report.Structural {
		return report
	}

	for _, row := range rows {
		validateRow(&report, row)
	}
	return report
}

func validateRow(report *ValidationReport, row ImportRow) {
	for _, col := range RequiredColumns {
		if row.Get(col) == "" {
			report.addError(row.Line, "le champ %s est vide", col)
		}
	}

	if (row.Get(ColParentNom) == "") != (row.Get(ColParentPrenom) == "") {
		report.addError(row.Line, "%s et %s doivent être renseignés ensemble", ColParentNom, ColParentPrenom)
	}

	if raw := row.Get(ColParentTel); raw != "" {
		if !ValidPhone(raw) {
			report.addError(row.Line, "téléphone parent invalide %q (format attendu: %s)", raw, PhoneFormatHint)
		}
	}

	if raw := row.Get(ColParentEmail); raw != "" {
		if !ValidEmail(raw) {
			report.addError(row.Line, "email parent invalide %q", raw)
		}
	}

	if raw := row.Get(ColSexe); raw != "" {
		if _, ok := NormalizeSexe(raw); !ok {
			report.addError(row.Line, "sexe invalide %q (valeurs acceptées: M, Masculin, F, Féminin)", raw)
		}
	}

	for _, col := range []string{ColDateNaissance, ColDateInscription} {
		if raw := row.Get(col); raw != "" {
			if _, ok := NormalizeDate(raw); !ok {
				report.addWarning(row.Line, "%s illisible %q, valeur par défaut appliquée", col, raw)
			}
		}
	}
}

// NormalizePhone strips all whitespace from a phone number.
func NormalizePhone(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// ValidPhone reports whether s matches the national mobile pattern
// once whitespace is removed.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(NormalizePhone(s))
}

// NormalizeSexe maps M/Masculin and F/Féminin (any case) to "M" or "F".
func NormalizeSexe(s string) (string, bool) {
	switch foldText(s) {
	case "m", "masculin":
		return "M", true
	case "f", "féminin", "feminin":
		return "F", true
	}
	return "", false
}
