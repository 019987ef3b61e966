package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/invoicecraft/studio/internal/dispatch"
	"github.com/invoicecraft/studio/internal/export"
	"github.com/invoicecraft/studio/internal/invoice"
	"github.com/invoicecraft/studio/internal/logo"
	"github.com/invoicecraft/studio/internal/store"
)

var t0 = time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	srv      *httptest.Server
	blobs    *store.MemoryBlobStore
	jobs     *export.JobQueue
	download string
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	blobs := store.NewMemoryBlobStore()
	st := store.NewStore(blobs, store.DefaultKey, logger)
	if err := st.Open(context.Background()); err != nil {
		t.Fatalf("open store: %v", err)
	}

	exporter := export.NewExporter(export.ImageCapturer{Source: solid(210, 400, color.White)}, export.DefaultOptions(), logger)
	ctx, cancel := context.WithCancel(context.Background())
	jobs := export.NewJobQueue(ctx, exporter, 0)
	download := t.TempDir()
	mailer := dispatch.New(dispatch.Config{DownloadDir: download}, exporter, nil, logger)

	s := NewServer(Deps{
		Store:     st,
		Renderer:  exporter,
		Jobs:      jobs,
		Mailer:    mailer,
		Remover:   logo.ColorKeyRemover{Tolerance: 8},
		Validator: invoice.Validator{MaxItems: 500, MaxDescription: 1000},
		Logger:    logger,
	})
	s.now = func() time.Time { return t0 }

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &fixture{srv: srv, blobs: blobs, jobs: jobs, download: download}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func draft(id, number, company string) invoice.Invoice {
	inv := invoice.New(t0)
	inv.ID = id
	inv.InvoiceNumber = number
	inv.CompanyName = "Alpha & Co"
	inv.BillToName = company
	inv.Items = []invoice.LineItem{{ID: "l1", Description: "Dev", Quantity: 2, Rate: 50}}
	inv.TaxRate = 15
	inv.DiscountValue = 0
	return inv
}

func (f *fixture) put(t *testing.T, inv invoice.Invoice) invoice.Invoice {
	t.Helper()
	resp := f.do(t, http.MethodPut, "/invoices/"+inv.ID, inv)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put %s: status %d", inv.ID, resp.StatusCode)
	}
	return decode[invoice.Invoice](t, resp)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if got := decode[map[string]string](t, resp); got["status"] != "ok" {
		t.Fatalf("unexpected body %v", got)
	}
	if resp.Header.Get(correlationHeader) == "" {
		t.Fatalf("missing correlation header")
	}
}

func TestNewInvoiceIsNotSaved(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/invoices", nil)
	inv := decode[invoice.Invoice](t, resp)
	if inv.ID == "" || inv.PaymentTerms != "Net 30" || len(inv.Items) != 1 {
		t.Fatalf("unexpected draft %+v", inv)
	}
	list := decode[listResponse](t, f.do(t, http.MethodGet, "/invoices", nil))
	if len(list.Invoices) != 0 {
		t.Fatalf("draft should not be persisted, got %d", len(list.Invoices))
	}
}

func TestRecompute(t *testing.T) {
	f := newFixture(t)
	inv := draft("a", "INV-1", "Bravo")
	inv.Total = 0
	got := decode[invoice.Invoice](t, f.do(t, http.MethodPost, "/invoices/recompute", inv))
	if got.Subtotal != 100 || got.TaxAmount != 15 || got.Total != 115 || got.BalanceDue != 115 {
		t.Fatalf("unexpected totals %+v", got)
	}
}

func TestPutGetListDelete(t *testing.T) {
	f := newFixture(t)
	saved := f.put(t, draft("a", "INV-1", "Bravo"))
	if saved.Total != 115 {
		t.Fatalf("put should recompute, total %v", saved.Total)
	}
	f.put(t, draft("b", "INV-2", "Charlie"))

	got := decode[invoiceView](t, f.do(t, http.MethodGet, "/invoices/a", nil))
	if got.InvoiceNumber != "INV-1" || got.Status != invoice.StatusPending {
		t.Fatalf("unexpected invoice %+v", got)
	}

	list := decode[listResponse](t, f.do(t, http.MethodGet, "/invoices?q=charlie", nil))
	if len(list.Invoices) != 1 || list.Invoices[0].ID != "b" {
		t.Fatalf("search returned %+v", list.Invoices)
	}

	resp := f.do(t, http.MethodDelete, "/invoices/a", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodDelete, "/invoices/missing", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete of missing id should succeed, got %d", resp.StatusCode)
	}
	list = decode[listResponse](t, f.do(t, http.MethodGet, "/invoices", nil))
	if len(list.Invoices) != 1 {
		t.Fatalf("expected one invoice left, got %d", len(list.Invoices))
	}
}

func TestPutKeepsCreatedAt(t *testing.T) {
	f := newFixture(t)
	first := f.put(t, draft("a", "INV-1", "Bravo"))

	again := draft("a", "INV-1b", "Bravo")
	again.CreatedAt = t0.Add(72 * time.Hour)
	second := f.put(t, again)
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("createdAt changed from %v to %v", first.CreatedAt, second.CreatedAt)
	}
	if second.InvoiceNumber != "INV-1b" {
		t.Fatalf("update not applied")
	}
}

func TestPutRejectsMismatchedID(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPut, "/invoices/a", draft("b", "INV-1", "Bravo"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPutValidateOptIn(t *testing.T) {
	f := newFixture(t)
	inv := draft("a", "", "Bravo")

	resp := f.do(t, http.MethodPut, "/invoices/a?validate=true", inv)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decode[errorBody](t, resp)
	if body.Code != "VALIDATION_ERROR" || body.Retryable || len(body.Errors) == 0 || body.Errors[0].Field != "invoiceNumber" {
		t.Fatalf("unexpected body %+v", body)
	}

	resp = f.do(t, http.MethodPut, "/invoices/a", inv)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unvalidated put should be accepted, got %d", resp.StatusCode)
	}
}

func TestPatchRecomputesTotals(t *testing.T) {
	f := newFixture(t)
	f.put(t, draft("a", "INV-1", "Bravo"))

	resp := f.do(t, http.MethodPatch, "/invoices/a", map[string]any{"taxRate": 0, "amountPaid": 40})
	got := decode[invoice.Invoice](t, resp)
	if got.Total != 100 || got.BalanceDue != 60 {
		t.Fatalf("unexpected totals %+v", got)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/invoices/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body := decode[errorBody](t, resp)
	if body.Code != "NOT_FOUND" || body.Retryable || body.CorrID == "" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestBadJSON(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/invoices/recompute", []byte("{"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCorruptCollectionListsEmptyWithWarning(t *testing.T) {
	f := newFixture(t)
	if err := f.blobs.Put(context.Background(), store.DefaultKey, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	list := decode[listResponse](t, f.do(t, http.MethodGet, "/invoices", nil))
	if len(list.Invoices) != 0 || list.Warning == "" {
		t.Fatalf("expected empty list with warning, got %+v", list)
	}
}

func TestDownloadPDFAndUBL(t *testing.T) {
	f := newFixture(t)
	f.put(t, draft("a", "INV-1", "Bravo"))

	resp := f.do(t, http.MethodGet, "/invoices/a/pdf", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pdf status %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "invoice-INV-1.pdf") {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if resp.Header.Get("X-Page-Count") != "2" {
		t.Fatalf("expected 2 pages, got %q", resp.Header.Get("X-Page-Count"))
	}
	data, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("body is not a PDF")
	}

	resp = f.do(t, http.MethodGet, "/invoices/a/ubl", nil)
	if resp.Header.Get("Content-Type") != export.ContentTypeXML {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	data, _ = io.ReadAll(resp.Body)
	if !bytes.Contains(data, []byte("<cbc:ID>INV-1</cbc:ID>")) {
		t.Fatalf("ubl missing invoice number: %s", data)
	}
}

func TestExportJobLifecycle(t *testing.T) {
	f := newFixture(t)
	f.put(t, draft("a", "INV-1", "Bravo"))

	resp := f.do(t, http.MethodPost, "/invoices/a/exports", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("enqueue status %d", resp.StatusCode)
	}
	job := decode[export.Job](t, resp)
	if resp.Header.Get("Location") != "/exports/"+job.ID {
		t.Fatalf("unexpected location %q", resp.Header.Get("Location"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := f.jobs.Wait(ctx, job.ID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got := decode[export.Job](t, f.do(t, http.MethodGet, "/exports/"+job.ID, nil))
	if got.Status != export.JobSucceeded || got.Pages != 2 {
		t.Fatalf("unexpected job %+v", got)
	}
	resp = f.do(t, http.MethodGet, "/exports/"+job.ID+"/artifact", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != export.ContentTypePDF {
		t.Fatalf("artifact status %d type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp = f.do(t, http.MethodGet, "/exports/unknown", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", resp.StatusCode)
	}
}

func TestEmailFallsBackToSavedPDF(t *testing.T) {
	f := newFixture(t)
	f.put(t, draft("a", "INV-1", "Bravo"))

	resp := f.do(t, http.MethodPost, "/invoices/a/email", dispatch.Request{Recipients: []string{"bravo@example.com"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("email status %d", resp.StatusCode)
	}
	res := decode[dispatch.Result](t, resp)
	if res.Mode != dispatch.ModeFallback {
		t.Fatalf("expected fallback, got %s", res.Mode)
	}
	if _, err := os.Stat(filepath.Join(f.download, "invoice-INV-1.pdf")); err != nil {
		t.Fatalf("fallback should save the pdf: %v", err)
	}

	resp = f.do(t, http.MethodPost, "/invoices/a/email", dispatch.Request{Recipients: []string{"not-an-email"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid recipient, got %d", resp.StatusCode)
	}
}

func TestCompose(t *testing.T) {
	f := newFixture(t)
	f.put(t, draft("a", "INV-1", "Bravo"))

	res := decode[dispatch.Result](t, f.do(t, http.MethodPost, "/invoices/a/compose",
		dispatch.Request{Recipients: []string{"bravo@example.com"}}))
	if res.Mode != dispatch.ModeCompose || !strings.HasPrefix(res.URL, "mailto:bravo@example.com?") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestUploadLogo(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(8, 4, color.Black)); err != nil {
		t.Fatal(err)
	}

	resp := f.do(t, http.MethodPost, "/logo", buf.Bytes())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status %d", resp.StatusCode)
	}
	l := decode[logo.Logo](t, resp)
	if l.MIME != "image/png" || !strings.HasPrefix(l.DataURL, "data:image/png;base64,") {
		t.Fatalf("unexpected logo %+v", l)
	}

	resp = f.do(t, http.MethodPost, "/logo", []byte("plain text"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-image, got %d", resp.StatusCode)
	}
}

func TestRemoveBackground(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(4, 4, color.White)); err != nil {
		t.Fatal(err)
	}

	resp := f.do(t, http.MethodPost, "/logo/remove-background",
		removeRequest{DataURL: logo.DataURL("image/png", buf.Bytes())})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPost, "/logo/remove-background", removeRequest{DataURL: "not a data url"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	body := decode[errorBody](t, resp)
	if body.Code != "REMOVAL_FAILED" || !body.Retryable {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestSendLimiter(t *testing.T) {
	l := newSendLimiter(2, time.Minute)
	now := t0
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Fatalf("send %d should be allowed", i+1)
		}
	}
	ok, wait := l.Allow("10.0.0.1")
	if ok || wait != time.Minute {
		t.Fatalf("third send should wait a full window, got ok=%v wait=%v", ok, wait)
	}
	if ok, _ := l.Allow("10.0.0.2"); !ok {
		t.Fatalf("other clients have their own budget")
	}
	now = now.Add(time.Minute)
	if ok, _ := l.Allow("10.0.0.1"); !ok {
		t.Fatalf("budget should reset after the window")
	}
	if ok, _ := newSendLimiter(0, time.Minute).Allow("x"); !ok {
		t.Fatalf("zero limit disables limiting")
	}
}
