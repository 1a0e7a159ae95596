package core

// export.go writes students back to the tabular shape of the import.

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Élèves"

// ExportColumns is the fixed column order of the export.
var ExportColumns = []string{
	"Nom", "Prénom", "Matricule", "Date naissance", "Sexe", "Classe", "Statut",
	"Date inscription", "Parent Nom", "Parent Prénom", "Parent Téléphone",
	"Parent Email", "Parent Relation",
}

var exportColumnWidths = []float64{20, 20, 16, 15, 8, 15, 10, 16, 20, 20, 18, 28, 15}

// RecordLister is the store capability the export reads.
type RecordLister interface {
	ListStudentRecords(ctx context.Context, tenantID string) ([]StudentRecord, error)
}

// ExportFileName returns eleves_export_{YYYY-MM-DD}.xlsx for day.
func ExportFileName(day time.Time) string {
	return fmt.Sprintf("eleves_export_%s.xlsx", day.Format(DateLayout))
}

// ExportStudents writes the tenant's students to w as an .xlsx workbook
// and returns the number of students written.
func ExportStudents(ctx context.Context, store RecordLister, tenantID string, w io.Writer) (int, error) {
	records, err := store.ListStudentRecords(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("list students: %w", err)
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{
			r.Nom,
			r.Prenom,
			r.Matricule,
			deref(r.DateNaissance),
			deref(r.Sexe),
			r.ClasseNom,
			r.Statut,
			r.DateInscription,
			r.ParentNom,
			r.ParentPrenom,
			r.ParentTel,
			r.ParentEmail,
			r.ParentRelation,
		}
	}

	if err := writeWorkbook(w, ExportColumns, exportColumnWidths, rows); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ImportTemplate writes an empty import workbook: the recognised header
// and one example row.
func ImportTemplate(w io.Writer) error {
	example := []string{
		"Diallo", "Awa", "CE1", "15/03/2016", "F", "",
		"2024-09-02", "Diallo", "Moussa", "77 123 45 67", "Père", "",
	}
	widths := make([]float64, len(ImportColumns))
	for i := range widths {
		widths[i] = 18
	}
	return writeWorkbook(w, ImportColumns, widths, [][]string{example})
}

func writeWorkbook(w io.Writer, header []string, widths []float64, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}

	// Widths must be set before the first row is streamed.
	for i, width := range widths {
		if err := sw.SetColWidth(i+1, i+1, width); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}

	headerCells := make([]any, len(header))
	for i, h := range header {
		headerCells[i] = excelize.Cell{StyleID: bold, Value: h}
	}
	if err := sw.SetRow("A1", headerCells); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
