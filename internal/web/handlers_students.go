package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/eleves/internal/core"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// templateFileName is the download name of the empty import workbook.
const templateFileName = "modele_import_eleves.xlsx"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"imports": s.service.LimiterStatus(),
	})
}

// handleListStudents returns the school's students, the list the UI
// reloads after an import.
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.service.Store().ListStudents(r.Context(), tenantID(r))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if students == nil {
		students = []core.Student{}
	}
	writeJSON(w, http.StatusOK, students)
}

// handleExportStudents downloads the school's students as a workbook.
// The file is built in memory first so a store error still gets a proper
// error response.
func (s *Server) handleExportStudents(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := core.ExportStudents(r.Context(), s.service.Store(), tenantID(r), &buf)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("X-Export-Count", strconv.Itoa(n))
	writeAttachment(w, core.ExportFileName(time.Now()), buf.Bytes())
}

func (s *Server) handleImportTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := core.ImportTemplate(&buf); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeAttachment(w, templateFileName, buf.Bytes())
}

func writeAttachment(w http.ResponseWriter, fileName string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
