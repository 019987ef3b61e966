package invoice

import (
	"fmt"
	"strings"

	"github.com/invoicecraft/studio/internal/apperr"
)

// Validator checks an invoice at the input boundary. Recompute never calls it:
// the totals engine stays permissive and callers decide when to validate.
type Validator struct {
	MaxItems       int
	MaxDescription int
}

func (v Validator) Validate(inv Invoice) error {
	fields := make([]apperr.FieldError, 0)

	if strings.TrimSpace(inv.InvoiceNumber) == "" {
		fields = append(fields, fieldErr("invoiceNumber", "Invoice number is required"))
	}
	if strings.TrimSpace(inv.CompanyName) == "" {
		fields = append(fields, fieldErr("companyName", "Company name is required"))
	}
	if !inv.Date.Time.IsZero() && !inv.DueDate.Time.IsZero() && inv.DueDate.Time.Before(inv.Date.Time) {
		fields = append(fields, fieldErr("dueDate", "Due date must be on or after the invoice date"))
	}

	switch inv.DiscountType {
	case DiscountPercentage:
		if inv.DiscountValue < 0 || inv.DiscountValue > 100 {
			fields = append(fields, fieldErr("discountValue", "Percentage discount must be between 0 and 100"))
		}
	case DiscountFixed:
		if inv.DiscountValue < 0 {
			fields = append(fields, fieldErr("discountValue", "Discount must be non-negative"))
		}
	default:
		fields = append(fields, fieldErr("discountType", "Discount type must be fixed or percentage"))
	}
	if inv.TaxRate < 0 {
		fields = append(fields, fieldErr("taxRate", "Tax rate must be non-negative"))
	}
	if inv.ShippingAmount < 0 {
		fields = append(fields, fieldErr("shippingAmount", "Shipping must be non-negative"))
	}
	if inv.AmountPaid < 0 {
		fields = append(fields, fieldErr("amountPaid", "Amount paid must be non-negative"))
	}

	if v.MaxItems > 0 && len(inv.Items) > v.MaxItems {
		fields = append(fields, fieldErr("items", fmt.Sprintf("Too many items (max %d)", v.MaxItems)))
	}
	for i, item := range inv.Items {
		path := fmt.Sprintf("items[%d]", i)
		if v.MaxDescription > 0 && len(item.Description) > v.MaxDescription {
			fields = append(fields, fieldErr(path+".description", "Description too long"))
		}
		if item.Quantity < 0 {
			fields = append(fields, fieldErr(path+".quantity", "Quantity must be non-negative"))
		}
		if item.Rate < 0 {
			fields = append(fields, fieldErr(path+".rate", "Rate must be non-negative"))
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return apperr.NewValidation("validate invoice", "invoice validation failed", fields...)
}

func fieldErr(field, message string) apperr.FieldError {
	return apperr.FieldError{Field: field, Message: message}
}
