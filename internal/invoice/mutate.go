package invoice

import (
	"fmt"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// Patch is a whole-field replacement request. Nil fields are left alone.
type Patch struct {
	InvoiceNumber *string             `json:"invoiceNumber,omitempty"`
	Date          *openapi_types.Date `json:"date,omitempty"`
	DueDate       *openapi_types.Date `json:"dueDate,omitempty"`
	PaymentTerms  *string             `json:"paymentTerms,omitempty"`
	PONumber      *string             `json:"poNumber,omitempty"`
	CompanyLogo   *string             `json:"companyLogo,omitempty"`
	CompanyName   *string             `json:"companyName,omitempty"`

	BillToName    *string `json:"billToName,omitempty"`
	BillToAddress *string `json:"billToAddress,omitempty"`
	BillToCity    *string `json:"billToCity,omitempty"`
	BillToState   *string `json:"billToState,omitempty"`
	BillToZip     *string `json:"billToZip,omitempty"`
	ShipToName    *string `json:"shipToName,omitempty"`
	ShipToAddress *string `json:"shipToAddress,omitempty"`
	ShipToCity    *string `json:"shipToCity,omitempty"`
	ShipToState   *string `json:"shipToState,omitempty"`
	ShipToZip     *string `json:"shipToZip,omitempty"`

	Items          *[]LineItem   `json:"items,omitempty"`
	TaxRate        *float64      `json:"taxRate,omitempty"`
	DiscountType   *DiscountType `json:"discountType,omitempty"`
	DiscountValue  *float64      `json:"discountValue,omitempty"`
	ShippingAmount *float64      `json:"shippingAmount,omitempty"`
	AmountPaid     *float64      `json:"amountPaid,omitempty"`

	Notes *string `json:"notes,omitempty"`
	Terms *string `json:"terms,omitempty"`
}

// AffectsTotals reports whether applying p requires a Recompute.
func (p Patch) AffectsTotals() bool {
	return p.Items != nil || p.TaxRate != nil || p.DiscountType != nil ||
		p.DiscountValue != nil || p.ShippingAmount != nil || p.AmountPaid != nil
}

// Apply replaces every field set in p and advances UpdatedAt. Derived fields
// are not touched; call Recompute afterwards.
func (inv *Invoice) Apply(p Patch, now time.Time) {
	setString(&inv.InvoiceNumber, p.InvoiceNumber)
	if p.Date != nil {
		inv.Date = *p.Date
	}
	if p.DueDate != nil {
		inv.DueDate = *p.DueDate
	}
	setString(&inv.PaymentTerms, p.PaymentTerms)
	setString(&inv.PONumber, p.PONumber)
	setString(&inv.CompanyLogo, p.CompanyLogo)
	setString(&inv.CompanyName, p.CompanyName)
	setString(&inv.BillToName, p.BillToName)
	setString(&inv.BillToAddress, p.BillToAddress)
	setString(&inv.BillToCity, p.BillToCity)
	setString(&inv.BillToState, p.BillToState)
	setString(&inv.BillToZip, p.BillToZip)
	setString(&inv.ShipToName, p.ShipToName)
	setString(&inv.ShipToAddress, p.ShipToAddress)
	setString(&inv.ShipToCity, p.ShipToCity)
	setString(&inv.ShipToState, p.ShipToState)
	setString(&inv.ShipToZip, p.ShipToZip)
	if p.Items != nil {
		items := make([]LineItem, len(*p.Items))
		copy(items, *p.Items)
		inv.Items = items
	}
	setFloat(&inv.TaxRate, p.TaxRate)
	if p.DiscountType != nil {
		inv.DiscountType = *p.DiscountType
	}
	setFloat(&inv.DiscountValue, p.DiscountValue)
	setFloat(&inv.ShippingAmount, p.ShippingAmount)
	setFloat(&inv.AmountPaid, p.AmountPaid)
	setString(&inv.Notes, p.Notes)
	setString(&inv.Terms, p.Terms)
	inv.touch(now)
}

// AddItem appends an empty line and returns it.
func (inv *Invoice) AddItem(now time.Time) LineItem {
	item := NewLineItem()
	items := make([]LineItem, 0, len(inv.Items)+1)
	items = append(items, inv.Items...)
	inv.Items = append(items, item)
	inv.touch(now)
	return item
}

// RemoveItem drops the line at index.
func (inv *Invoice) RemoveItem(index int, now time.Time) error {
	if index < 0 || index >= len(inv.Items) {
		return fmt.Errorf("item index %d out of range [0,%d)", index, len(inv.Items))
	}
	items := make([]LineItem, 0, len(inv.Items)-1)
	items = append(items, inv.Items[:index]...)
	inv.Items = append(items, inv.Items[index+1:]...)
	inv.touch(now)
	return nil
}

// UpdateItem replaces the line at index, keeping its id. The line amount is
// refreshed immediately so the line invariant holds even before Recompute.
func (inv *Invoice) UpdateItem(index int, description string, quantity, rate float64, now time.Time) error {
	if index < 0 || index >= len(inv.Items) {
		return fmt.Errorf("item index %d out of range [0,%d)", index, len(inv.Items))
	}
	items := make([]LineItem, len(inv.Items))
	copy(items, inv.Items)
	items[index] = LineItem{
		ID:          items[index].ID,
		Description: description,
		Quantity:    quantity,
		Rate:        rate,
		Amount:      quantity * rate,
	}
	inv.Items = items
	inv.touch(now)
	return nil
}

// touch advances UpdatedAt; it never moves backwards.
func (inv *Invoice) touch(now time.Time) {
	now = now.UTC()
	if now.After(inv.UpdatedAt) {
		inv.UpdatedAt = now
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
