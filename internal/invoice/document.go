package invoice

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/invoicepdf"
)

const (
	DateLayout = "2006-01-02"

	AttachmentPrefix = "invoice-"
)

// Document is the data shared by the PDF and the billingInvoice email.
type Document struct {
	BaseURL        string
	OrderID        string
	InvoiceDate    string
	InvoiceCount   int
	PaymentMethod  string
	Name           string
	CustomerName   string
	AddressLine    string
	City           string
	State          string
	Country        string
	Zip            string
	Phone          string
	Email          string
	ShippingCharge decimal.Decimal
	SubTotal       decimal.Decimal
	TotalTax       decimal.Decimal
	Lines          []Line
	GSTResolvedAt  time.Time
}

// NewDocument assembles invoice data for order. user may be nil when the
// account could not be loaded; the order's own contact fields are used instead.
func NewDocument(order models.Order, user *models.User, comp Computation, baseURL string, now time.Time) Document {
	name := order.FName
	if user != nil && strings.TrimSpace(user.FName) != "" {
		name = user.FName
	}
	return Document{
		BaseURL:        baseURL,
		OrderID:        order.OrderID(),
		InvoiceDate:    now.UTC().Format(DateLayout),
		InvoiceCount:   1,
		PaymentMethod:  order.PaymentMethod,
		Name:           name,
		CustomerName:   strings.TrimSpace(order.FName + " " + order.LName),
		AddressLine:    order.StreetAddress,
		City:           order.City,
		State:          order.State,
		Country:        order.Country,
		Zip:            order.Pincode,
		Phone:          order.Mobile,
		Email:          order.Email,
		ShippingCharge: order.ShippingCharge,
		SubTotal:       comp.SubTotal,
		TotalTax:       comp.TotalTax,
		Lines:          comp.Lines,
		GSTResolvedAt:  comp.GSTResolvedAt,
	}
}

// AttachmentName is the file name of the emailed invoice.
func (d Document) AttachmentName() string {
	return AttachmentPrefix + d.OrderID + ".pdf"
}

// PDF maps the document onto the renderer's input.
func (d Document) PDF() invoicepdf.Invoice {
	rows := make([]invoicepdf.Row, 0, len(d.Lines))
	for _, l := range d.Lines {
		rows = append(rows, invoicepdf.Row{
			Name:         l.Name,
			SKU:          l.SKU,
			HSN:          l.HSN,
			Quantity:     l.Quantity,
			Price:        l.Price,
			GSTRate:      l.GSTRate,
			GSTCharge:    l.GSTCharge,
			TaxableValue: l.TaxableValue,
		})
	}
	return invoicepdf.Invoice{
		BaseURL:        d.BaseURL,
		OrderID:        d.OrderID,
		InvoiceDate:    d.InvoiceDate,
		InvoiceCount:   d.InvoiceCount,
		PaymentMethod:  d.PaymentMethod,
		CustomerName:   d.CustomerName,
		AddressLine:    d.AddressLine,
		City:           d.City,
		State:          d.State,
		Country:        d.Country,
		Zip:            d.Zip,
		Phone:          d.Phone,
		Email:          d.Email,
		ShippingCharge: d.ShippingCharge,
		SubTotal:       d.SubTotal,
		TotalTax:       d.TotalTax,
		Rows:           rows,
	}
}
