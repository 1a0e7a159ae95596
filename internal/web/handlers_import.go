package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/eleves/internal/core"
	"github.com/JonMunkholm/eleves/internal/web/templates"
	"github.com/go-chi/chi/v5"
)

// handleImportPreview reads and validates the uploaded file and opens a
// session. The response carries the preview rows and any validation errors.
func (s *Server) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		if isTooLarge(err) {
			err = fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize)
		} else {
			err = fmt.Errorf("%w: %v", core.ErrInvalidFile, err)
		}
		s.respondError(w, r, err, statusFor(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	sess, err := s.service.Prepare(r.Context(), tenantID(r), header.Filename, file)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		templates.ImportPreview(sess).Render(r.Context(), w)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleImportSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Session(tenantID(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDiscardImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Discard(tenantID(r), chi.URLParam(r, "sessionID")); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStartImport launches the import of a ready session and returns at
// once; progress is followed on the SSE stream.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	tenant, sessionID := tenantID(r), chi.URLParam(r, "sessionID")

	if err := s.service.StartImport(r.Context(), tenant, sessionID); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	progress, err := s.service.Progress(tenant, sessionID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusAccepted, progress)
}

// handleImportProgress streams progress as Server-Sent Events: one
// "progress" event per row, then a "complete" event carrying the outcome.
// The event id is the percentage, so a client reconnecting with
// lastEventId skips what it already saw.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	tenant, sessionID := tenantID(r), chi.URLParam(r, "sessionID")

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	if lastEventIDStr == "" {
		lastEventIDStr = r.Header.Get("Last-Event-ID")
	}
	lastEventID := -1
	if lastEventIDStr != "" {
		if n, err := strconv.Atoi(lastEventIDStr); err == nil {
			lastEventID = n
		}
	}

	progressCh, err := s.service.SubscribeProgress(tenant, sessionID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, fmt.Errorf("streaming not supported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				outcome, err := s.service.Result(r.Context(), tenant, sessionID)
				data := []byte("{}")
				if err == nil {
					data, _ = json.Marshal(outcome)
				}
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				flusher.Flush()
				return
			}

			percent := progress.Percent()
			if percent <= lastEventID && !progress.State.Terminal() {
				continue
			}
			lastEventID = percent

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult returns the outcome of a finished import. While the
// import runs it answers 202 with the current progress, unless ?wait=true
// asks to block until the end.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	tenant, sessionID := tenantID(r), chi.URLParam(r, "sessionID")

	progress, err := s.service.Progress(tenant, sessionID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if progress.State == core.StateImporting && !wait {
		writeJSON(w, http.StatusAccepted, progress)
		return
	}

	outcome, err := s.service.Result(r.Context(), tenant, sessionID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		templates.ImportSummary(outcome).Render(r.Context(), w)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelImport(tenantID(r), chi.URLParam(r, "sessionID")); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
