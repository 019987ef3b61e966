// Package dispatch hands an exported invoice to a recipient: either through a
// remote mail service, a local fallback that saves the document instead, or
// a mailto link for the user's own mail client.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/invoicecraft/studio/internal/apperr"
	"github.com/invoicecraft/studio/internal/export"
	"github.com/invoicecraft/studio/internal/invoice"
	"github.com/invoicecraft/studio/internal/metrics"
)

const DefaultEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

type Mode string

const (
	ModeRemote   Mode = "remote"
	ModeFallback Mode = "fallback"
	ModeCompose  Mode = "compose"
)

// Request is what the user filled in. Empty Subject or Body fall back to
// DefaultSubject and DefaultMessage.
type Request struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"message"`
}

// Result reports how the request was handled.
type Result struct {
	Mode       Mode     `json:"mode"`
	Recipients []string `json:"recipients"`
	Filename   string   `json:"filename,omitempty"`
	SavedPath  string   `json:"savedPath,omitempty"`
	URL        string   `json:"url,omitempty"`
}

// RemoteConfig identifies the mail service account. Unset or placeholder
// values mean the remote path is unavailable.
type RemoteConfig struct {
	Endpoint   string `toml:"endpoint"`
	ServiceID  string `toml:"service_id"`
	TemplateID string `toml:"template_id"`
	PublicKey  string `toml:"public_key"`
}

var placeholders = map[string]bool{
	"your_service_id":  true,
	"your_template_id": true,
	"your_public_key":  true,
}

func (c RemoteConfig) Configured() bool {
	for _, v := range []string{c.ServiceID, c.TemplateID, c.PublicKey} {
		v = strings.TrimSpace(v)
		if v == "" || placeholders[strings.ToLower(v)] {
			return false
		}
	}
	return true
}

// Exporter produces the PDF attachment.
type Exporter interface {
	Export(ctx context.Context, inv invoice.Invoice) (export.Artifact, error)
}

// Opener launches a URL in the user's environment, e.g. a mail client.
type Opener interface {
	Open(url string) error
}

type Config struct {
	Remote        RemoteConfig
	DownloadDir   string
	FallbackDelay time.Duration
	Timeout       time.Duration
}

type Dispatcher struct {
	cfg        Config
	exporter   Exporter
	httpClient *http.Client
	opener     Opener
	logger     *slog.Logger
}

// New builds a dispatcher. opener may be nil, in which case Compose only
// returns the link.
func New(cfg Config, exporter Exporter, opener Opener, logger *slog.Logger) *Dispatcher {
	if cfg.Remote.Endpoint == "" {
		cfg.Remote.Endpoint = DefaultEndpoint
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "."
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:        cfg,
		exporter:   exporter,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		opener:     opener,
		logger:     logger.With("component", "dispatch"),
	}
}

// Send exports the invoice and mails it through the remote service. Without a
// usable remote configuration the PDF is saved to the download directory
// instead and, after the simulated delay, the send is reported as done.
func (d *Dispatcher) Send(ctx context.Context, inv invoice.Invoice, req Request) (Result, error) {
	recipients, err := NormalizeRecipients(req.Recipients)
	if err != nil {
		return Result{}, err
	}
	subject, body := d.resolve(inv, req)

	if !d.cfg.Remote.Configured() {
		res, err := d.fallback(ctx, inv, recipients)
		metrics.DispatchTotal.WithLabelValues(string(ModeFallback), metrics.Outcome(err)).Inc()
		return res, err
	}

	res, err := d.sendRemote(ctx, inv, recipients, subject, body)
	metrics.DispatchTotal.WithLabelValues(string(ModeRemote), metrics.Outcome(err)).Inc()
	if err != nil {
		d.logger.Error("remote send failed", "invoice", inv.InvoiceNumber, "error", err)
		return Result{}, err
	}
	d.logger.Info("invoice sent", "invoice", inv.InvoiceNumber, "recipients", len(recipients))
	return res, nil
}

func (d *Dispatcher) resolve(inv invoice.Invoice, req Request) (string, string) {
	subject, body := req.Subject, req.Body
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject(inv)
	}
	if strings.TrimSpace(body) == "" {
		body = DefaultMessage(inv)
	}
	return subject, body
}

type sendPayload struct {
	ServiceID      string         `json:"service_id"`
	TemplateID     string         `json:"template_id"`
	UserID         string         `json:"user_id"`
	TemplateParams templateParams `json:"template_params"`
}

type templateParams struct {
	ToEmail       string `json:"to_email"`
	Subject       string `json:"subject"`
	Message       string `json:"message"`
	InvoiceNumber string `json:"invoice_number"`
	InvoiceAmount string `json:"invoice_amount"`
	CompanyName   string `json:"company_name"`
	ClientName    string `json:"client_name"`
	DueDate       string `json:"due_date"`
	PDFAttachment string `json:"pdf_attachment"`
	PDFFilename   string `json:"pdf_filename"`
}

func (d *Dispatcher) sendRemote(ctx context.Context, inv invoice.Invoice, recipients []string, subject, body string) (Result, error) {
	art, err := d.exporter.Export(ctx, inv)
	if err != nil {
		return Result{}, err
	}
	payload := sendPayload{
		ServiceID:  d.cfg.Remote.ServiceID,
		TemplateID: d.cfg.Remote.TemplateID,
		UserID:     d.cfg.Remote.PublicKey,
		TemplateParams: templateParams{
			ToEmail:       strings.Join(recipients, ", "),
			Subject:       subject,
			Message:       body,
			InvoiceNumber: inv.InvoiceNumber,
			InvoiceAmount: invoice.FormatMoney(inv.Total),
			CompanyName:   inv.CompanyName,
			ClientName:    inv.BillToName,
			DueDate:       inv.DueDate.Format(displayDate),
			PDFAttachment: art.Base64(),
			PDFFilename:   art.Filename,
		},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return Result{}, apperr.NewDispatch("dispatch.Send", fmt.Errorf("marshal payload: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Remote.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return Result{}, apperr.NewDispatch("dispatch.Send", fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, apperr.NewDispatch("dispatch.Send", fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, apperr.NewDispatch("dispatch.Send",
			fmt.Errorf("mail service error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}
	return Result{Mode: ModeRemote, Recipients: recipients, Filename: art.Filename}, nil
}

func (d *Dispatcher) fallback(ctx context.Context, inv invoice.Invoice, recipients []string) (Result, error) {
	d.logger.Warn("mail service not configured, saving PDF instead", "invoice", inv.InvoiceNumber)
	art, err := d.exporter.Export(ctx, inv)
	if err != nil {
		return Result{}, err
	}
	path, err := export.SaveArtifact(art, d.cfg.DownloadDir)
	if err != nil {
		return Result{}, err
	}
	if d.cfg.FallbackDelay > 0 {
		timer := time.NewTimer(d.cfg.FallbackDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Result{}, apperr.NewDispatch("dispatch.Send", ctx.Err())
		}
	}
	d.logger.Info("fallback completed, PDF saved", "path", path)
	return Result{Mode: ModeFallback, Recipients: recipients, Filename: art.Filename, SavedPath: path}, nil
}

// Compose builds a mailto link carrying the message and an invoice summary.
// No document is attached; the user adds the PDF by hand.
func (d *Dispatcher) Compose(inv invoice.Invoice, req Request) (Result, error) {
	recipients, err := NormalizeRecipients(req.Recipients)
	if err != nil {
		return Result{}, err
	}
	subject, body := d.resolve(inv, req)
	link := mailtoURL(recipients, subject, composeBody(inv, body))

	if d.opener != nil {
		if err := d.opener.Open(link); err != nil {
			metrics.DispatchTotal.WithLabelValues(string(ModeCompose), "error").Inc()
			return Result{}, apperr.NewDispatch("dispatch.Compose", err)
		}
	}
	metrics.DispatchTotal.WithLabelValues(string(ModeCompose), "ok").Inc()
	return Result{Mode: ModeCompose, Recipients: recipients, URL: link}, nil
}
