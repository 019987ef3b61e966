package invoice

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the payment state shown in the invoice history.
type Status string

const (
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
	StatusPending Status = "pending"
)

// StatusAt derives the payment status at the given instant.
func StatusAt(inv Invoice, now time.Time) Status {
	if inv.AmountPaid >= inv.Total {
		return StatusPaid
	}
	if !inv.DueDate.Time.IsZero() && now.After(inv.DueDate.Time) {
		return StatusOverdue
	}
	return StatusPending
}

// Search filters by invoice number, bill-to name or company name,
// case-insensitively. An empty term returns the list as is.
func Search(list []Invoice, term string) []Invoice {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return list
	}
	out := make([]Invoice, 0, len(list))
	for _, inv := range list {
		if strings.Contains(strings.ToLower(inv.InvoiceNumber), term) ||
			strings.Contains(strings.ToLower(inv.BillToName), term) ||
			strings.Contains(strings.ToLower(inv.CompanyName), term) {
			out = append(out, inv)
		}
	}
	return out
}

// SortByCreatedDesc returns a newest-first copy. Storage order is not
// chronological, so history views sort explicitly.
func SortByCreatedDesc(list []Invoice) []Invoice {
	out := make([]Invoice, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// FormatMoney renders a value with two decimals for display. The model keeps
// full precision; this is the only place rounding happens.
func FormatMoney(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NaN"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}
