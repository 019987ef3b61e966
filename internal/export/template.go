package export

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/invoicecraft/studio/internal/invoice"
)

var previewTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": invoice.FormatMoney,
	"date": func(d interface{ String() string }) string {
		return d.String()
	},
	"logo": logoURL,
}).Parse(previewHTML))

// RenderHTML returns the standalone preview document for inv. The element
// with id invoice-preview is the capture target.
func RenderHTML(inv invoice.Invoice) (string, error) {
	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, inv); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// logoURL lets stored data URLs and absolute http(s) URLs through the
// template's URL filter. Anything else renders as no logo.
func logoURL(s string) template.URL {
	switch {
	case strings.HasPrefix(s, "data:image/"),
		strings.HasPrefix(s, "https://"),
		strings.HasPrefix(s, "http://"):
		return template.URL(s)
	}
	return ""
}

const previewHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <style>
    body { font-family: 'Helvetica Neue', Arial, sans-serif; margin: 0; color: #0f172a; background: #ffffff; }
    #invoice-preview { width: 794px; padding: 48px; box-sizing: border-box; background: #ffffff; }
    .head { display: flex; justify-content: space-between; align-items: flex-start; margin-bottom: 32px; }
    .head img { max-height: 80px; max-width: 200px; }
    h1 { margin: 0; font-size: 32px; letter-spacing: 2px; }
    .label { font-size: 11px; color: #64748b; text-transform: uppercase; }
    .value { font-size: 14px; margin-bottom: 6px; }
    .row { display: flex; gap: 24px; margin-bottom: 24px; }
    .col { flex: 1; }
    table { width: 100%; border-collapse: collapse; margin-bottom: 24px; }
    th, td { padding: 8px; border-bottom: 1px solid #e2e8f0; text-align: left; font-size: 13px; }
    th { background: #f1f5f9; }
    .num { text-align: right; }
    .totals { margin-left: auto; width: 280px; }
    .totals div { display: flex; justify-content: space-between; font-size: 13px; padding: 3px 0; }
    .totals .grand { font-weight: 700; border-top: 1px solid #0f172a; margin-top: 4px; padding-top: 6px; }
  </style>
</head>
<body>
<div id="invoice-preview">
  <div class="head">
    <div>
      {{with logo .CompanyLogo}}<img src="{{.}}" alt="logo" />{{end}}
      <div class="value"><strong>{{.CompanyName}}</strong></div>
    </div>
    <div style="text-align:right">
      <h1>INVOICE</h1>
      <div class="value"># {{.InvoiceNumber}}</div>
    </div>
  </div>

  <div class="row">
    <div class="col">
      <div class="label">Bill To</div>
      <div class="value">{{.BillToName}}</div>
      <div class="value">{{.BillToAddress}}</div>
      <div class="value">{{.BillToCity}}{{if .BillToState}}, {{.BillToState}}{{end}} {{.BillToZip}}</div>
    </div>
    {{if .ShipToName}}
    <div class="col">
      <div class="label">Ship To</div>
      <div class="value">{{.ShipToName}}</div>
      <div class="value">{{.ShipToAddress}}</div>
      <div class="value">{{.ShipToCity}}{{if .ShipToState}}, {{.ShipToState}}{{end}} {{.ShipToZip}}</div>
    </div>
    {{end}}
    <div class="col" style="text-align:right">
      <div class="label">Date</div>
      <div class="value">{{date .Date}}</div>
      <div class="label">Payment Terms</div>
      <div class="value">{{.PaymentTerms}}</div>
      <div class="label">Due Date</div>
      <div class="value">{{date .DueDate}}</div>
      {{if .PONumber}}<div class="label">PO Number</div><div class="value">{{.PONumber}}</div>{{end}}
    </div>
  </div>

  <table>
    <thead>
      <tr><th>Item</th><th class="num">Quantity</th><th class="num">Rate</th><th class="num">Amount</th></tr>
    </thead>
    <tbody>
    {{range .Items}}
      <tr>
        <td>{{.Description}}</td>
        <td class="num">{{.Quantity}}</td>
        <td class="num">{{money .Rate}}</td>
        <td class="num">{{money .Amount}}</td>
      </tr>
    {{end}}
    </tbody>
  </table>

  <div class="totals">
    <div><span>Subtotal</span><span>{{money .Subtotal}}</span></div>
    {{if .DiscountAmount}}<div><span>Discount</span><span>-{{money .DiscountAmount}}</span></div>{{end}}
    <div><span>Tax ({{.TaxRate}}%)</span><span>{{money .TaxAmount}}</span></div>
    {{if .ShippingAmount}}<div><span>Shipping</span><span>{{money .ShippingAmount}}</span></div>{{end}}
    <div class="grand"><span>Total</span><span>{{money .Total}}</span></div>
    <div><span>Amount Paid</span><span>{{money .AmountPaid}}</span></div>
    <div class="grand"><span>Balance Due</span><span>{{money .BalanceDue}}</span></div>
  </div>

  {{if .Notes}}<div class="label">Notes</div><div class="value">{{.Notes}}</div>{{end}}
  {{if .Terms}}<div class="label">Terms</div><div class="value">{{.Terms}}</div>{{end}}
</div>
</body>
</html>
`
