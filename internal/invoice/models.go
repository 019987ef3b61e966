package invoice

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// DiscountType selects how DiscountValue is interpreted.
type DiscountType string

const (
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

// LineItem is one billable entry. Amount is derived from Quantity and Rate.
type LineItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
}

// Invoice mirrors the persisted record. Field names match the stored JSON so
// existing collections load unchanged.
type Invoice struct {
	ID            string             `json:"id"`
	InvoiceNumber string             `json:"invoiceNumber"`
	Date          openapi_types.Date `json:"date"`
	DueDate       openapi_types.Date `json:"dueDate"`
	PaymentTerms  string             `json:"paymentTerms"`
	PONumber      string             `json:"poNumber"`

	CompanyLogo string `json:"companyLogo,omitempty"`
	CompanyName string `json:"companyName"`

	BillToName    string `json:"billToName"`
	BillToAddress string `json:"billToAddress"`
	BillToCity    string `json:"billToCity"`
	BillToState   string `json:"billToState"`
	BillToZip     string `json:"billToZip"`

	ShipToName    string `json:"shipToName,omitempty"`
	ShipToAddress string `json:"shipToAddress,omitempty"`
	ShipToCity    string `json:"shipToCity,omitempty"`
	ShipToState   string `json:"shipToState,omitempty"`
	ShipToZip     string `json:"shipToZip,omitempty"`

	Items []LineItem `json:"items"`

	Subtotal       float64      `json:"subtotal"`
	TaxRate        float64      `json:"taxRate"`
	TaxAmount      float64      `json:"taxAmount"`
	DiscountType   DiscountType `json:"discountType"`
	DiscountValue  float64      `json:"discountValue"`
	DiscountAmount float64      `json:"discountAmount"`
	ShippingAmount float64      `json:"shippingAmount"`
	Total          float64      `json:"total"`
	AmountPaid     float64      `json:"amountPaid"`
	BalanceDue     float64      `json:"balanceDue"`

	Notes string `json:"notes"`
	Terms string `json:"terms"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const (
	defaultPaymentTerms = "Net 30"
	defaultCompanyName  = "Your Company Name"
	defaultTerms        = "Thank you for your business!"
	defaultDueIn        = 30 * 24 * time.Hour
)

// New returns a fresh invoice with generated identity and default field values.
// It is not persisted until the caller upserts it.
func New(now time.Time) Invoice {
	now = now.UTC()
	inv := Invoice{
		ID:            uuid.NewString(),
		InvoiceNumber: fmt.Sprintf("INV-%d", now.UnixMilli()),
		Date:          openapi_types.Date{Time: truncateDay(now)},
		DueDate:       openapi_types.Date{Time: truncateDay(now.Add(defaultDueIn))},
		PaymentTerms:  defaultPaymentTerms,
		CompanyName:   defaultCompanyName,
		Items:         []LineItem{NewLineItem()},
		DiscountType:  DiscountPercentage,
		Terms:         defaultTerms,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return Recompute(inv)
}

// NewLineItem returns an empty line with quantity one.
func NewLineItem() LineItem {
	return LineItem{ID: uuid.NewString(), Quantity: 1}
}

// Filename is the deterministic export name for the given extension.
func (inv Invoice) Filename(ext string) string {
	return fmt.Sprintf("invoice-%s.%s", inv.InvoiceNumber, ext)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
