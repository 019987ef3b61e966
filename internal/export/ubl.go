package export

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/invoicecraft/studio/internal/invoice"
)

// DocumentCurrency is the currency written to UBL amounts. Amounts are
// otherwise currency-agnostic.
const DocumentCurrency = "USD"

type ublInvoice struct {
	XMLName              xml.Name         `xml:"Invoice"`
	Xmlns                string           `xml:"xmlns,attr"`
	Cbc                  string           `xml:"xmlns:cbc,attr"`
	Cac                  string           `xml:"xmlns:cac,attr"`
	CustomizationID      string           `xml:"cbc:CustomizationID"`
	ID                   string           `xml:"cbc:ID"`
	IssueDate            string           `xml:"cbc:IssueDate"`
	DueDate              string           `xml:"cbc:DueDate"`
	InvoiceTypeCode      string           `xml:"cbc:InvoiceTypeCode"`
	Note                 []string         `xml:"cbc:Note,omitempty"`
	DocumentCurrencyCode string           `xml:"cbc:DocumentCurrencyCode"`
	OrderReference       *ublOrderRef     `xml:"cac:OrderReference,omitempty"`
	Supplier             ublPartyWrapper  `xml:"cac:AccountingSupplierParty"`
	Customer             ublPartyWrapper  `xml:"cac:AccountingCustomerParty"`
	Delivery             *ublDelivery     `xml:"cac:Delivery,omitempty"`
	PaymentTerms         *ublPaymentTerms `xml:"cac:PaymentTerms,omitempty"`
	AllowanceCharges     []ublAllowance   `xml:"cac:AllowanceCharge"`
	TaxTotal             ublTaxTotal      `xml:"cac:TaxTotal"`
	LegalMonetaryTotal   ublMonetaryTotal `xml:"cac:LegalMonetaryTotal"`
	InvoiceLines         []ublInvoiceLine `xml:"cac:InvoiceLine"`
}

type ublOrderRef struct {
	ID string `xml:"cbc:ID"`
}

type ublPartyWrapper struct {
	Party ublParty `xml:"cac:Party"`
}

type ublParty struct {
	PartyName     ublName     `xml:"cac:PartyName"`
	PostalAddress *ublAddress `xml:"cac:PostalAddress,omitempty"`
}

type ublName struct {
	Name string `xml:"cbc:Name"`
}

type ublAddress struct {
	StreetName       string `xml:"cbc:StreetName,omitempty"`
	CityName         string `xml:"cbc:CityName,omitempty"`
	PostalZone       string `xml:"cbc:PostalZone,omitempty"`
	CountrySubentity string `xml:"cbc:CountrySubentity,omitempty"`
}

type ublDelivery struct {
	DeliveryParty ublParty `xml:"cac:DeliveryParty"`
}

type ublPaymentTerms struct {
	Note string `xml:"cbc:Note"`
}

type ublAllowance struct {
	ChargeIndicator bool       `xml:"cbc:ChargeIndicator"`
	Reason          string     `xml:"cbc:AllowanceChargeReason"`
	Multiplier      *float64   `xml:"cbc:MultiplierFactorNumeric,omitempty"`
	Amount          ublAmount  `xml:"cbc:Amount"`
	BaseAmount      *ublAmount `xml:"cbc:BaseAmount,omitempty"`
}

type ublTaxTotal struct {
	TaxAmount   ublAmount      `xml:"cbc:TaxAmount"`
	TaxSubtotal ublTaxSubtotal `xml:"cac:TaxSubtotal"`
}

type ublTaxSubtotal struct {
	TaxableAmount ublAmount      `xml:"cbc:TaxableAmount"`
	TaxAmount     ublAmount      `xml:"cbc:TaxAmount"`
	TaxCategory   ublTaxCategory `xml:"cac:TaxCategory"`
}

type ublTaxCategory struct {
	ID        string     `xml:"cbc:ID"`
	Percent   float64    `xml:"cbc:Percent"`
	TaxScheme ublTaxInfo `xml:"cac:TaxScheme"`
}

type ublTaxInfo struct {
	ID string `xml:"cbc:ID"`
}

type ublMonetaryTotal struct {
	LineExtensionAmount  ublAmount `xml:"cbc:LineExtensionAmount"`
	TaxExclusiveAmount   ublAmount `xml:"cbc:TaxExclusiveAmount"`
	TaxInclusiveAmount   ublAmount `xml:"cbc:TaxInclusiveAmount"`
	AllowanceTotalAmount ublAmount `xml:"cbc:AllowanceTotalAmount"`
	ChargeTotalAmount    ublAmount `xml:"cbc:ChargeTotalAmount"`
	PrepaidAmount        ublAmount `xml:"cbc:PrepaidAmount"`
	PayableAmount        ublAmount `xml:"cbc:PayableAmount"`
}

type ublInvoiceLine struct {
	ID                  string      `xml:"cbc:ID"`
	InvoicedQuantity    ublQuantity `xml:"cbc:InvoicedQuantity"`
	LineExtensionAmount ublAmount   `xml:"cbc:LineExtensionAmount"`
	Item                ublItem     `xml:"cac:Item"`
	Price               ublPrice    `xml:"cac:Price"`
}

type ublQuantity struct {
	UnitCode string  `xml:"unitCode,attr"`
	Value    float64 `xml:",chardata"`
}

type ublAmount struct {
	Currency string `xml:"currencyID,attr"`
	Value    string `xml:",chardata"`
}

type ublItem struct {
	Description string `xml:"cbc:Description"`
	Name        string `xml:"cbc:Name"`
}

type ublPrice struct {
	PriceAmount ublAmount `xml:"cbc:PriceAmount"`
}

func amount(v float64) ublAmount {
	return ublAmount{Currency: DocumentCurrency, Value: invoice.FormatMoney(v)}
}

// BuildUBL marshals the invoice into a UBL 2.1 Invoice document. Discount and
// shipping become document level allowance and charge.
func BuildUBL(inv invoice.Invoice) (string, error) {
	doc := ublInvoice{
		Xmlns:                "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2",
		Cbc:                  "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2",
		Cac:                  "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2",
		CustomizationID:      "urn:cen.eu:en16931:2017",
		ID:                   inv.InvoiceNumber,
		IssueDate:            inv.Date.String(),
		DueDate:              inv.DueDate.String(),
		InvoiceTypeCode:      "380",
		DocumentCurrencyCode: DocumentCurrency,
		Supplier: ublPartyWrapper{Party: ublParty{
			PartyName: ublName{Name: inv.CompanyName},
		}},
		Customer: ublPartyWrapper{Party: ublParty{
			PartyName:     ublName{Name: inv.BillToName},
			PostalAddress: address(inv.BillToAddress, inv.BillToCity, inv.BillToZip, inv.BillToState),
		}},
		TaxTotal: ublTaxTotal{
			TaxAmount: amount(inv.TaxAmount),
			TaxSubtotal: ublTaxSubtotal{
				TaxableAmount: amount(inv.Subtotal - inv.DiscountAmount),
				TaxAmount:     amount(inv.TaxAmount),
				TaxCategory: ublTaxCategory{
					ID:        "S",
					Percent:   inv.TaxRate,
					TaxScheme: ublTaxInfo{ID: "VAT"},
				},
			},
		},
		LegalMonetaryTotal: ublMonetaryTotal{
			LineExtensionAmount:  amount(inv.Subtotal),
			TaxExclusiveAmount:   amount(inv.Subtotal - inv.DiscountAmount + inv.ShippingAmount),
			TaxInclusiveAmount:   amount(inv.Total),
			AllowanceTotalAmount: amount(inv.DiscountAmount),
			ChargeTotalAmount:    amount(inv.ShippingAmount),
			PrepaidAmount:        amount(inv.AmountPaid),
			PayableAmount:        amount(inv.BalanceDue),
		},
	}
	for _, note := range []string{inv.Notes, inv.Terms} {
		if strings.TrimSpace(note) != "" {
			doc.Note = append(doc.Note, note)
		}
	}
	if inv.PONumber != "" {
		doc.OrderReference = &ublOrderRef{ID: inv.PONumber}
	}
	if inv.PaymentTerms != "" {
		doc.PaymentTerms = &ublPaymentTerms{Note: inv.PaymentTerms}
	}
	if inv.ShipToName != "" {
		doc.Delivery = &ublDelivery{DeliveryParty: ublParty{
			PartyName:     ublName{Name: inv.ShipToName},
			PostalAddress: address(inv.ShipToAddress, inv.ShipToCity, inv.ShipToZip, inv.ShipToState),
		}}
	}
	if inv.DiscountAmount != 0 {
		discount := ublAllowance{
			ChargeIndicator: false,
			Reason:          "Discount",
			Amount:          amount(inv.DiscountAmount),
		}
		if inv.DiscountType == invoice.DiscountPercentage {
			pct := inv.DiscountValue
			base := amount(inv.Subtotal)
			discount.Multiplier = &pct
			discount.BaseAmount = &base
		}
		doc.AllowanceCharges = append(doc.AllowanceCharges, discount)
	}
	if inv.ShippingAmount != 0 {
		doc.AllowanceCharges = append(doc.AllowanceCharges, ublAllowance{
			ChargeIndicator: true,
			Reason:          "Shipping",
			Amount:          amount(inv.ShippingAmount),
		})
	}

	for i, item := range inv.Items {
		doc.InvoiceLines = append(doc.InvoiceLines, ublInvoiceLine{
			ID:                  fmt.Sprintf("%d", i+1),
			InvoicedQuantity:    ublQuantity{UnitCode: "C62", Value: item.Quantity},
			LineExtensionAmount: amount(item.Amount),
			Item:                ublItem{Description: item.Description, Name: lineName(item.Description, i)},
			Price:               ublPrice{PriceAmount: amount(item.Rate)},
		})
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal UBL: %w", err)
	}
	return xml.Header + string(output), nil
}

func address(street, city, zip, state string) *ublAddress {
	if street == "" && city == "" && zip == "" && state == "" {
		return nil
	}
	return &ublAddress{StreetName: street, CityName: city, PostalZone: zip, CountrySubentity: state}
}

func lineName(description string, index int) string {
	if line, _, _ := strings.Cut(description, "\n"); strings.TrimSpace(line) != "" {
		return strings.TrimSpace(line)
	}
	return fmt.Sprintf("Item %d", index+1)
}
