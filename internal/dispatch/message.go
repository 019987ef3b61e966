package dispatch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/invoicecraft/studio/internal/apperr"
	"github.com/invoicecraft/studio/internal/invoice"
)

// displayDate is the short month/day/year form used in message bodies.
const displayDate = "1/2/2006"

var validate = validator.New()

// DefaultSubject is the subject offered when the user has not typed one.
func DefaultSubject(inv invoice.Invoice) string {
	return fmt.Sprintf("Invoice %s from %s", inv.InvoiceNumber, inv.CompanyName)
}

// DefaultMessage is the body offered when the user has not typed one.
func DefaultMessage(inv invoice.Invoice) string {
	return fmt.Sprintf(`Dear %s,

Please find attached your invoice %s for the amount of $%s.

Payment is due by %s.

Thank you for your business!

Best regards,
%s`, inv.BillToName, inv.InvoiceNumber, invoice.FormatMoney(inv.Total), inv.DueDate.Format(displayDate), inv.CompanyName)
}

// composeBody appends the invoice summary and the manual attachment note
// to the user's message.
func composeBody(inv invoice.Invoice, message string) string {
	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n\nInvoice Details:\n")
	fmt.Fprintf(&b, "- Invoice #: %s\n", inv.InvoiceNumber)
	fmt.Fprintf(&b, "- Amount: $%s\n", invoice.FormatMoney(inv.Total))
	fmt.Fprintf(&b, "- Due Date: %s\n\n", inv.DueDate.Format(displayDate))
	b.WriteString("Please note: PDF attachment needs to be added manually.")
	return b.String()
}

// mailtoURL builds a mailto link. Components are percent-encoded with %20
// for spaces since mail clients do not decode '+'.
func mailtoURL(recipients []string, subject, body string) string {
	return "mailto:" + strings.Join(recipients, ",") +
		"?subject=" + encodeComponent(subject) +
		"&body=" + encodeComponent(body)
}

func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// NormalizeRecipients trims, validates and de-duplicates addresses, keeping
// first-seen order. Duplicates compare case-insensitively.
func NormalizeRecipients(in []string) ([]string, error) {
	var (
		out    []string
		fields []apperr.FieldError
		seen   = map[string]bool{}
	)
	for i, raw := range in {
		addr := strings.TrimSpace(raw)
		if addr == "" {
			continue
		}
		if err := validate.Var(addr, "required,email"); err != nil {
			fields = append(fields, apperr.FieldError{
				Field:   fmt.Sprintf("recipients[%d]", i),
				Message: fmt.Sprintf("%q is not a valid email address", addr),
			})
			continue
		}
		key := strings.ToLower(addr)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr)
	}
	if len(fields) > 0 {
		return nil, apperr.NewValidation("dispatch.recipients", "invalid recipients", fields...)
	}
	if len(out) == 0 {
		return nil, apperr.NewValidation("dispatch.recipients", "at least one recipient is required",
			apperr.FieldError{Field: "recipients", Message: "at least one recipient is required"})
	}
	return out, nil
}
