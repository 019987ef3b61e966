package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/invoicecraft/studio/internal/apperr"
	"github.com/invoicecraft/studio/internal/dispatch"
	"github.com/invoicecraft/studio/internal/logo"
)

const maxLogoBytes = 10 << 20

// sendEmail matches POST /invoices/{id}/email
func (s *Server) sendEmail(w http.ResponseWriter, r *http.Request) {
	s.handleDispatch(w, r, true)
}

// composeEmail matches POST /invoices/{id}/compose
func (s *Server) composeEmail(w http.ResponseWriter, r *http.Request) {
	s.handleDispatch(w, r, false)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request, send bool) {
	if s.deps.Mailer == nil {
		writeCode(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "dispatch is disabled", false)
		return
	}
	ctx := r.Context()
	inv, err := s.deps.Store.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req dispatch.Request
	if err := decodeJSON(r.Body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var res dispatch.Result
	if send {
		res, err = s.deps.Mailer.Send(ctx, inv, req)
	} else {
		res, err = s.deps.Mailer.Compose(inv, req)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLogger(r).Info("invoice dispatched", "invoice", inv.InvoiceNumber, "mode", res.Mode)
	writeJSON(w, http.StatusOK, res)
}

// uploadLogo matches POST /logo. The image is either the raw body or the
// multipart field "logo".
func (s *Server) uploadLogo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLogoBytes)
	data, err := readLogo(r)
	if err != nil {
		s.writeError(w, r, apperr.NewValidation("api.uploadLogo", "unreadable upload",
			apperr.FieldError{Field: "logo", Message: err.Error()}))
		return
	}
	l, err := logo.Prepare(data, s.deps.LogoMaxDimension)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func readLogo(r *http.Request) ([]byte, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		defer r.Body.Close()
		return io.ReadAll(r.Body)
	}
	f, _, err := r.FormFile("logo")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

type removeRequest struct {
	DataURL string `json:"dataUrl"`
}

// removeBackground matches POST /logo/remove-background. A failure leaves the
// caller's logo untouched and may be retried.
func (s *Server) removeBackground(w http.ResponseWriter, r *http.Request) {
	if s.deps.Remover == nil {
		writeCode(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "background removal is disabled", false)
		return
	}
	var req removeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := logo.RemoveFromDataURL(r.Context(), s.deps.Remover, req.DataURL)
	if err != nil {
		if errors.Is(err, logo.ErrRemovalFailed) {
			s.requestLogger(r).Warn("background removal failed", "error", err)
			writeCode(w, r, http.StatusUnprocessableEntity, "REMOVAL_FAILED",
				"Failed to remove background. Please try again or use a different image.", true)
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removeRequest{DataURL: out})
}
