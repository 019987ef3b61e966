// Package api exposes the invoice builder over HTTP: invoice CRUD on the
// persistence store, PDF and UBL exports, background export jobs, dispatch
// and logo handling.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/invoicecraft/studio/internal/dispatch"
	"github.com/invoicecraft/studio/internal/export"
	"github.com/invoicecraft/studio/internal/invoice"
	"github.com/invoicecraft/studio/internal/logo"
	"github.com/invoicecraft/studio/internal/store"
)

// InvoiceStore is the persistence surface the handlers need.
type InvoiceStore interface {
	Load(ctx context.Context) (store.LoadResult, error)
	Get(ctx context.Context, id string) (invoice.Invoice, error)
	Upsert(ctx context.Context, inv invoice.Invoice) error
	Delete(ctx context.Context, id string) error
}

// Renderer produces downloadable documents.
type Renderer interface {
	Export(ctx context.Context, inv invoice.Invoice) (export.Artifact, error)
	ExportUBL(inv invoice.Invoice) (export.Artifact, error)
}

// Mailer sends or composes an invoice message.
type Mailer interface {
	Send(ctx context.Context, inv invoice.Invoice, req dispatch.Request) (dispatch.Result, error)
	Compose(inv invoice.Invoice, req dispatch.Request) (dispatch.Result, error)
}

// Deps are the collaborators of a Server. Jobs, Mailer and Remover may be nil;
// their routes then answer 501.
type Deps struct {
	Store            InvoiceStore
	Renderer         Renderer
	Jobs             *export.JobQueue
	Mailer           Mailer
	Remover          logo.Remover
	Validator        invoice.Validator
	LogoMaxDimension int
	// SendsPerMinute caps POST /invoices/{id}/email per client; zero is unlimited.
	SendsPerMinute   int
	Logger           *slog.Logger
}

type Server struct {
	deps    Deps
	limiter *sendLimiter
	logger  *slog.Logger
	now     func() time.Time
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.LogoMaxDimension <= 0 {
		deps.LogoMaxDimension = logo.DefaultMaxDimension
	}
	return &Server{
		deps:    deps,
		limiter: newSendLimiter(deps.SendsPerMinute, time.Minute),
		logger:  logger.With("component", "api"),
		now:     time.Now,
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlation)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", s.listInvoices)
		r.Post("/", s.newInvoice)
		r.Post("/recompute", s.recompute)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getInvoice)
			r.Put("/", s.putInvoice)
			r.Patch("/", s.patchInvoice)
			r.Delete("/", s.deleteInvoice)
			r.Get("/pdf", s.downloadPDF)
			r.Get("/ubl", s.downloadUBL)
			r.Post("/exports", s.enqueueExport)
			r.Post("/email", s.limitSends(s.sendEmail))
			r.Post("/compose", s.composeEmail)
		})
	})

	r.Get("/exports/{jobId}", s.getExport)
	r.Get("/exports/{jobId}/artifact", s.getExportArtifact)

	r.Post("/logo", s.uploadLogo)
	r.Post("/logo/remove-background", s.removeBackground)

	return r
}
