package invoicepdf

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// Row is one product line on the invoice.
type Row struct {
	Name         string
	SKU          string
	HSN          string
	Quantity     int
	Price        decimal.Decimal
	GSTRate      decimal.Decimal
	GSTCharge    decimal.Decimal
	TaxableValue decimal.Decimal
}

// Invoice carries everything printed on the billing document.
type Invoice struct {
	BaseURL        string
	OrderID        string
	InvoiceDate    string
	InvoiceCount   int
	PaymentMethod  string
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
	Rows           []Row
}

// Renderer turns an invoice into a PDF document.
type Renderer interface {
	Render(ctx context.Context, inv Invoice) ([]byte, error)
}

// FPDFRenderer draws an A4 tax invoice with go-pdf/fpdf.
type FPDFRenderer struct {
	CompanyName string
}

func NewRenderer(companyName string) *FPDFRenderer {
	if companyName == "" {
		companyName = "Molimor"
	}
	return &FPDFRenderer{CompanyName: companyName}
}

var columns = []struct {
	title string
	width float64
	align string
}{
	{"Product", 52, "L"},
	{"SKU", 24, "L"},
	{"HSN", 18, "L"},
	{"Qty", 12, "R"},
	{"Price", 22, "R"},
	{"GST %", 16, "R"},
	{"Taxable value", 32, "R"},
}

func (r *FPDFRenderer) Render(ctx context.Context, inv Invoice) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if inv.OrderID == "" {
		return nil, fmt.Errorf("invoice order id is required")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Invoice %s", inv.OrderID), true)
	pdf.SetAuthor(r.CompanyName, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(r.CompanyName), "", 1, "L", false, 0, inv.BaseURL)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "TAX INVOICE", "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, tr("Order #"+inv.OrderID), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, tr("Invoice date: "+inv.InvoiceDate), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, "Invoice no: "+strconv.Itoa(max(inv.InvoiceCount, 1)), "", 1, "R", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, "Bill to", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range []string{
		inv.CustomerName,
		inv.AddressLine,
		joinNonEmpty(", ", inv.City, inv.State, inv.Country, inv.Zip),
		joinNonEmpty(" | ", inv.Phone, inv.Email),
		"Payment: " + inv.PaymentMethod,
	} {
		pdf.CellFormat(0, 5, tr(line), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(235, 235, 235)
	for _, col := range columns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, col.align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range inv.Rows {
		values := []string{
			row.Name,
			row.SKU,
			row.HSN,
			strconv.Itoa(row.Quantity),
			money(row.Price),
			row.GSTRate.String(),
			money(row.TaxableValue),
		}
		for i, col := range columns {
			pdf.CellFormat(col.width, 6, tr(values[i]), "1", 0, col.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(3)

	labelWidth := 0.0
	for _, col := range columns[:len(columns)-1] {
		labelWidth += col.width
	}
	totals := [][2]string{
		{"CGST + SGST", money(inv.TotalTax)},
		{"Sub total", money(inv.SubTotal)},
	}
	if inv.ShippingCharge.IsPositive() {
		totals = append(totals, [2]string{"Shipping", money(inv.ShippingCharge)})
	}
	pdf.SetFont("Helvetica", "B", 10)
	for _, t := range totals {
		pdf.CellFormat(labelWidth, 6, t[0], "", 0, "R", false, 0, "")
		pdf.CellFormat(columns[len(columns)-1].width, 6, t[1], "", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func money(d decimal.Decimal) string {
	return "Rs. " + d.StringFixed(2)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += sep
		}
		out += p
	}
	return out
}
