package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/invoicecraft/studio/internal/apperr"
	"github.com/invoicecraft/studio/internal/invoice"
	"github.com/invoicecraft/studio/internal/metrics"
)

const (
	ContentTypePDF = "application/pdf"
	ContentTypeXML = "application/xml"
)

// Artifact is an exported document held in memory.
type Artifact struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Pages       int    `json:"pages,omitempty"`
	Data        []byte `json:"-"`
}

func (a Artifact) Reader() io.Reader { return bytes.NewReader(a.Data) }

// Base64 is the payload form used for remote dispatch attachments.
func (a Artifact) Base64() string { return base64.StdEncoding.EncodeToString(a.Data) }

// Exporter runs capture, pagination and encoding for one invoice at a time.
// It never retries; a failure is returned to the caller as a render error.
type Exporter struct {
	capturer Capturer
	opts     Options
	logger   *slog.Logger
}

func NewExporter(capturer Capturer, opts Options, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		capturer: capturer,
		opts:     opts.withDefaults(),
		logger:   logger.With("component", "export"),
	}
}

func (e *Exporter) Options() Options { return e.opts }

// Export captures the invoice preview and encodes it as a paginated PDF.
func (e *Exporter) Export(ctx context.Context, inv invoice.Invoice) (Artifact, error) {
	start := time.Now()
	art, err := e.export(ctx, inv)
	metrics.ExportDuration.WithLabelValues("pdf").Observe(time.Since(start).Seconds())
	metrics.ExportsTotal.WithLabelValues("pdf", metrics.Outcome(err)).Inc()
	if err != nil {
		e.logger.Error("pdf export failed", "invoice", inv.InvoiceNumber, "error", err)
		return Artifact{}, err
	}
	metrics.ExportPages.Observe(float64(art.Pages))
	e.logger.Info("pdf exported", "invoice", inv.InvoiceNumber, "pages", art.Pages, "bytes", len(art.Data))
	return art, nil
}

func (e *Exporter) export(ctx context.Context, inv invoice.Invoice) (Artifact, error) {
	raster, err := e.capturer.Capture(ctx, CaptureRequest{Invoice: inv, Options: e.opts})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Artifact{}, apperr.NewRender("export.Capture", err)
		}
		var notFound *ElementNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, ErrCanvasRender) {
			err = &CanvasRenderError{Reason: "capture", Err: err}
		}
		return Artifact{}, apperr.NewRender("export.Capture", err)
	}

	flat := flatten(raster, e.opts.Background)
	b := flat.Bounds()
	layout := Paginate(b.Dx(), b.Dy(), e.opts.Page)

	data, err := encodePDF(flat, layout)
	if err != nil {
		return Artifact{}, apperr.NewRender("export.Encode", err)
	}
	return Artifact{
		Filename:    inv.Filename("pdf"),
		ContentType: ContentTypePDF,
		Pages:       layout.Pages(),
		Data:        data,
	}, nil
}

// ExportUBL renders the UBL 2.1 XML rendition of the invoice.
func (e *Exporter) ExportUBL(inv invoice.Invoice) (Artifact, error) {
	body, err := BuildUBL(inv)
	metrics.ExportsTotal.WithLabelValues("ubl", metrics.Outcome(err)).Inc()
	if err != nil {
		return Artifact{}, apperr.NewRender("export.UBL", err)
	}
	return Artifact{
		Filename:    inv.Filename("xml"),
		ContentType: ContentTypeXML,
		Data:        []byte(body),
	}, nil
}

// Save exports the invoice and writes it under dir with its deterministic
// filename, returning the written path.
func (e *Exporter) Save(ctx context.Context, inv invoice.Invoice, dir string) (string, error) {
	art, err := e.Export(ctx, inv)
	if err != nil {
		return "", err
	}
	return SaveArtifact(art, dir)
}

// SaveArtifact writes art under dir, replacing an existing file of the same name.
func SaveArtifact(art Artifact, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.NewStorage("export.Save", fmt.Errorf("create %s: %w", dir, err))
	}
	path := filepath.Join(dir, filepath.Base(art.Filename))
	if err := os.WriteFile(path, art.Data, 0o644); err != nil {
		return "", apperr.NewStorage("export.Save", err)
	}
	return path, nil
}
