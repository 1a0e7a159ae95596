package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

var fullHeader = ImportColumns

func row(line int, kv ...string) ImportRow {
	fields := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	return ImportRow{Line: line, Fields: fields}
}

func student(line int, nom, prenom, classe string, kv ...string) ImportRow {
	return row(line, append([]string{ColNom, nom, ColPrenom, prenom, ColClasse, classe}, kv...)...)
}

func TestValidateRows_MissingColumnsShortCircuit(t *testing.T) {
	header := []string{ColNom, "Prenom"}
	rows := []ImportRow{row(2, ColNom, "")}

	report := ValidateRows(header, rows)

	if !report.Structural {
		t.Fatal("expected a structural report")
	}
	if len(report.Errors) != 2 {
		t.Fatalf("got %d errors, want 2 column errors: %v", len(report.Errors), report.Errors)
	}
	for _, e := range report.Errors {
		if e.Row != 0 {
			t.Errorf("column error attributed to row %d", e.Row)
		}
	}
	if !errors.Is(report.Err(), ErrMissingColumns) {
		t.Errorf("Err() = %v, want ErrMissingColumns", report.Err())
	}
	if !strings.Contains(report.Err().Error(), ColClasse) {
		t.Errorf("Err() should name the missing column: %v", report.Err())
	}
}

func TestValidateRows_RequiredFields(t *testing.T) {
	for _, col := range RequiredColumns {
		t.Run(col, func(t *testing.T) {
			r := student(2, "Diallo", "Awa", "CE1")
			r.Fields[col] = "   "

			report := ValidateRows(fullHeader, []ImportRow{r})

			if report.OK() {
				t.Fatal("empty required field must block the import")
			}
			if !errors.Is(report.Err(), ErrValidationBlocked) {
				t.Errorf("Err() = %v, want ErrValidationBlocked", report.Err())
			}
			if got := report.Errors[0].Error(); !strings.HasPrefix(got, "Ligne 2: ") || !strings.Contains(got, col) {
				t.Errorf("error %q should name row 2 and %s", got, col)
			}
		})
	}
}

func TestValidateRows_Phone(t *testing.T) {
	tests := []struct {
		phone string
		ok    bool
	}{
		{"77 123 45 67", true},
		{"771234567", true},
		{"+221771234567", true},
		{"221 77 123 45 67", true},
		{"+221 76 000 00 00", true},
		{"123", false},
		{"661234567", false},
		{"77123456", false},
		{"7712345678", false},
		{"77-123-45-67", false},
	}

	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			report := ValidateRows(fullHeader, []ImportRow{
				student(3, "Diallo", "Awa", "CE1", ColParentNom, "Diallo", ColParentPrenom, "Moussa", ColParentTel, tt.phone),
			})
			if report.OK() != tt.ok {
				t.Fatalf("phone %q: OK() = %v, want %v (%v)", tt.phone, report.OK(), tt.ok, report.Errors)
			}
			if !tt.ok {
				msg := report.Errors[0].Error()
				if !strings.HasPrefix(msg, "Ligne 3: ") || !strings.Contains(msg, PhoneFormatHint) {
					t.Errorf("message %q should carry the row and expected format", msg)
				}
			}
		})
	}
}

func TestValidateRows_ParentEmail(t *testing.T) {
	tests := []struct {
		email string
		ok    bool
	}{
		{"moussa@example.com", true},
		{" moussa.diallo@ecole.sn ", true},
		{"moussa", false},
		{"moussa@", false},
		{"@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			report := ValidateRows(fullHeader, []ImportRow{
				student(4, "Diallo", "Awa", "CE1", ColParentNom, "Diallo", ColParentPrenom, "Moussa", ColParentEmail, tt.email),
			})
			if report.OK() != tt.ok {
				t.Fatalf("email %q: OK() = %v, want %v (%v)", tt.email, report.OK(), tt.ok, report.Errors)
			}
			if !tt.ok && !strings.HasPrefix(report.Errors[0].Error(), "Ligne 4: ") {
				t.Errorf("message %q should carry the row", report.Errors[0].Error())
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone(" 77 123\t45 67 "); got != "771234567" {
		t.Errorf("NormalizePhone = %q, want 771234567", got)
	}
}

func TestValidateRows_Sexe(t *testing.T) {
	for _, v := range []string{"M", "m", "Masculin", "F", "féminin", "Feminin"} {
		if report := ValidateRows(fullHeader, []ImportRow{student(2, "A", "B", "CE1", ColSexe, v)}); !report.OK() {
			t.Errorf("sexe %q rejected: %v", v, report.Errors)
		}
	}
	if report := ValidateRows(fullHeader, []ImportRow{student(2, "A", "B", "CE1", ColSexe, "X")}); report.OK() {
		t.Error("sexe X accepted")
	}
}

func TestValidateRows_GuardianNamePair(t *testing.T) {
	report := ValidateRows(fullHeader, []ImportRow{student(2, "A", "B", "CE1", ColParentNom, "Fall")})
	if report.OK() {
		t.Fatal("guardian with only a last name should be rejected")
	}
}

func TestValidateRows_UnreadableDateIsWarning(t *testing.T) {
	report := ValidateRows(fullHeader, []ImportRow{student(2, "A", "B", "CE1", ColDateNaissance, "hier")})

	if !report.OK() {
		t.Fatalf("unreadable date must not block: %v", report.Errors)
	}
	if len(report.Warnings) != 1 || report.Warnings[0].Row != 2 {
		t.Errorf("Warnings = %v, want one warning on row 2", report.Warnings)
	}
}

func TestValidateRows_Cap(t *testing.T) {
	var rows []ImportRow
	for i := 0; i < 25; i++ {
		rows = append(rows, student(i+2, "", "Awa", "CE1"))
	}

	report := ValidateRows(fullHeader, rows)

	if len(report.Errors) != MaxValidationErrors {
		t.Errorf("got %d errors, want %d", len(report.Errors), MaxValidationErrors)
	}
	if !report.Truncated {
		t.Error("Truncated should be set when errors were dropped")
	}
	if report.Errors[0].Row != 2 {
		t.Errorf("first error row = %d, want 2", report.Errors[0].Row)
	}
	if !strings.Contains(report.Err().Error(), fmt.Sprintf("%d+", MaxValidationErrors)) {
		t.Errorf("Err() = %v, want a hint that more errors exist", report.Err())
	}
}

func TestValidateRows_ExactlyAtCapIsNotTruncated(t *testing.T) {
	var rows []ImportRow
	for i := 0; i < MaxValidationErrors; i++ {
		rows = append(rows, student(i+2, "", "Awa", "CE1"))
	}
	if report := ValidateRows(fullHeader, rows); report.Truncated {
		t.Error("Truncated set although no error was dropped")
	}
}

func TestValidateRows_Valid(t *testing.T) {
	report := ValidateRows(fullHeader, []ImportRow{
		student(2, "Diallo", "Awa", "CE1", ColDateNaissance, "15/03/2016", ColSexe, "F",
			ColParentNom, "Diallo", ColParentPrenom, "Moussa", ColParentTel, "77 123 45 67"),
	})
	if !report.OK() || report.Err() != nil {
		t.Errorf("valid row rejected: %v", report.Errors)
	}
}
