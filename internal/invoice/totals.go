package invoice

// Recompute returns a copy of inv with every derived monetary field rebuilt
// from the line items and adjustment parameters. It is pure and idempotent.
//
// Values are plain float64 arithmetic: nothing is rounded here (rounding is a
// display concern, see FormatMoney) and nothing is clamped, so NaN or
// out-of-range inputs flow through to the derived fields unchanged.
func Recompute(inv Invoice) Invoice {
	out := inv
	if inv.Items != nil {
		out.Items = make([]LineItem, len(inv.Items))
	}

	var subtotal float64
	for i, item := range inv.Items {
		item.Amount = item.Quantity * item.Rate
		out.Items[i] = item
		subtotal += item.Amount
	}

	discount := inv.DiscountValue
	if inv.DiscountType == DiscountPercentage {
		discount = subtotal * inv.DiscountValue / 100
	}
	// tax is levied on the post-discount base
	afterDiscount := subtotal - discount
	tax := afterDiscount * inv.TaxRate / 100
	total := afterDiscount + tax + inv.ShippingAmount

	out.Subtotal = subtotal
	out.DiscountAmount = discount
	out.TaxAmount = tax
	out.Total = total
	out.BalanceDue = total - inv.AmountPaid
	return out
}
