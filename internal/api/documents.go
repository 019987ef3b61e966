package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/invoicecraft/studio/internal/export"
)

func writeArtifact(w http.ResponseWriter, art export.Artifact) {
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	if art.Pages > 0 {
		w.Header().Set("X-Page-Count", strconv.Itoa(art.Pages))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
}

// downloadPDF matches GET /invoices/{id}/pdf and exports synchronously.
func (s *Server) downloadPDF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inv, err := s.deps.Store.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	art, err := s.deps.Renderer.Export(ctx, inv)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLogger(r).Info("pdf downloaded", "invoice", inv.InvoiceNumber, "pages", art.Pages)
	writeArtifact(w, art)
}

// downloadUBL matches GET /invoices/{id}/ubl
func (s *Server) downloadUBL(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	art, err := s.deps.Renderer.ExportUBL(inv)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeArtifact(w, art)
}

// enqueueExport matches POST /invoices/{id}/exports. The invoice is
// snapshotted at enqueue time.
func (s *Server) enqueueExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeCode(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "background exports are disabled", false)
		return
	}
	inv, err := s.deps.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job := s.deps.Jobs.Enqueue(inv)
	s.requestLogger(r).Info("export job enqueued", "jobId", job.ID, "invoice", inv.InvoiceNumber)
	w.Header().Set("Location", "/exports/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

// getExport matches GET /exports/{jobId}
func (s *Server) getExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeCode(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "background exports are disabled", false)
		return
	}
	job, ok := s.deps.Jobs.Get(chi.URLParam(r, "jobId"))
	if !ok {
		writeCode(w, r, http.StatusNotFound, "NOT_FOUND", "export job not found", false)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// getExportArtifact matches GET /exports/{jobId}/artifact. Jobs that have not
// succeeded answer 409 with their current state.
func (s *Server) getExportArtifact(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeCode(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "background exports are disabled", false)
		return
	}
	art, job, err := s.deps.Jobs.Artifact(chi.URLParam(r, "jobId"))
	if err != nil {
		writeCode(w, r, http.StatusNotFound, "NOT_FOUND", "export job not found", false)
		return
	}
	if job.Status != export.JobSucceeded {
		writeJSON(w, http.StatusConflict, map[string]any{
			"code":      "NOT_READY",
			"message":   fmt.Sprintf("export job is %s", job.Status),
			"corrId":    corrIDFrom(r.Context()),
			"retryable": job.Status != export.JobFailed,
			"job":       job,
		})
		return
	}
	writeArtifact(w, art)
}
