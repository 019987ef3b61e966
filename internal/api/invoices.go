package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/invoicecraft/studio/internal/apperr"
	"github.com/invoicecraft/studio/internal/invoice"
)

// invoiceView is a history row: the stored invoice plus its derived status.
type invoiceView struct {
	invoice.Invoice
	Status invoice.Status `json:"status"`
}

type listResponse struct {
	Invoices []invoiceView `json:"invoices"`
	Warning  string        `json:"warning,omitempty"`
}

// listInvoices matches GET /invoices?q=
func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Store.Load(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	now := s.now()
	list := invoice.SortByCreatedDesc(invoice.Search(res.Invoices, r.URL.Query().Get("q")))
	out := listResponse{Invoices: make([]invoiceView, 0, len(list))}
	for _, inv := range list {
		out.Invoices = append(out.Invoices, invoiceView{Invoice: inv, Status: invoice.StatusAt(inv, now)})
	}
	if res.Warning != nil {
		out.Warning = res.Warning.Error()
		s.requestLogger(r).Warn("listing from unreadable collection", "error", res.Warning)
	}
	writeJSON(w, http.StatusOK, out)
}

// newInvoice matches POST /invoices. The draft is not saved.
func (s *Server) newInvoice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, invoice.New(s.now()))
}

// recompute matches POST /invoices/recompute
func (s *Server) recompute(w http.ResponseWriter, r *http.Request) {
	var inv invoice.Invoice
	if err := decodeJSON(r.Body, &inv); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice.Recompute(inv))
}

// getInvoice matches GET /invoices/{id}
func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceView{Invoice: inv, Status: invoice.StatusAt(inv, s.now())})
}

// putInvoice matches PUT /invoices/{id}. The body replaces the whole record;
// derived fields are recomputed and the original creation time is kept.
func (s *Server) putInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var inv invoice.Invoice
	if err := decodeJSON(r.Body, &inv); err != nil {
		s.writeError(w, r, err)
		return
	}
	if inv.ID == "" {
		inv.ID = id
	}
	if inv.ID != id {
		s.writeError(w, r, apperr.NewValidation("api.putInvoice", "id mismatch",
			apperr.FieldError{Field: "id", Message: "body id must match the path"}))
		return
	}

	now := s.now().UTC()
	existing, err := s.deps.Store.Get(ctx, id)
	switch {
	case err == nil:
		inv.CreatedAt = existing.CreatedAt
	case errors.Is(err, apperr.NotFound):
		if inv.CreatedAt.IsZero() {
			inv.CreatedAt = now
		}
	default:
		s.writeError(w, r, err)
		return
	}
	inv.UpdatedAt = now
	inv = invoice.Recompute(inv)

	if strict, _ := strconv.ParseBool(r.URL.Query().Get("validate")); strict {
		if err := s.deps.Validator.Validate(inv); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if err := s.deps.Store.Upsert(ctx, inv); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLogger(r).Info("invoice saved", "invoiceId", inv.ID, "invoice", inv.InvoiceNumber)
	writeJSON(w, http.StatusOK, inv)
}

// patchInvoice matches PATCH /invoices/{id}
func (s *Server) patchInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inv, err := s.deps.Store.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var p invoice.Patch
	if err := decodeJSON(r.Body, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	inv.Apply(p, s.now())
	if p.AffectsTotals() {
		inv = invoice.Recompute(inv)
	}
	if err := s.deps.Store.Upsert(ctx, inv); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// deleteInvoice matches DELETE /invoices/{id}. Unknown ids succeed too.
func (s *Server) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Store.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLogger(r).Info("invoice deleted", "invoiceId", id)
	w.WriteHeader(http.StatusNoContent)
}
