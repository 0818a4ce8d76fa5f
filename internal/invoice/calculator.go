package invoice

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/molimor/molimor-backend/pkg/db/models"
)

var hundred = decimal.NewFromInt(100)

// Line is an order item enriched with catalog data for one invoice run. It is
// built fresh per computation and never written back to the order.
type Line struct {
	ProductID    uuid.UUID
	Name         string
	SKU          string
	HSN          string
	Quantity     int
	Price        decimal.Decimal
	GSTRate      decimal.Decimal
	GSTCharge    decimal.Decimal
	TaxableValue decimal.Decimal
}

// Computation holds the derived invoice figures.
type Computation struct {
	Lines []Line
	// SubTotal is the sum of line taxable values, tax included.
	SubTotal decimal.Decimal
	TotalTax decimal.Decimal
	// Skipped lists ordered products that no longer exist in the catalog.
	Skipped []uuid.UUID
	// GSTResolvedAt records when catalog GST rates were read.
	GSTResolvedAt time.Time
}

// ParseGSTRate reads catalog labels like "18%" or " 5 ". Anything unparseable
// or negative counts as 0.
func ParseGSTRate(raw string) decimal.Decimal {
	cleaned := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if cleaned == "" {
		return decimal.Zero
	}
	rate, err := decimal.NewFromString(cleaned)
	if err != nil || rate.IsNegative() {
		return decimal.Zero
	}
	return rate
}

// Calculate prices every item against the current catalog. Items whose product
// is missing are skipped.
func Calculate(items models.OrderItems, catalog map[uuid.UUID]models.Product, resolvedAt time.Time) Computation {
	comp := Computation{
		Lines:         make([]Line, 0, len(items)),
		SubTotal:      decimal.Zero,
		TotalTax:      decimal.Zero,
		GSTResolvedAt: resolvedAt,
	}
	for _, item := range items {
		product, ok := catalog[item.ProductID]
		if !ok {
			comp.Skipped = append(comp.Skipped, item.ProductID)
			continue
		}

		rate := ParseGSTRate(product.GST)
		base := item.LineAmount()
		gstCharge := base.Mul(rate).Div(hundred)
		lineTotal := base.Add(gstCharge)

		comp.Lines = append(comp.Lines, Line{
			ProductID:    item.ProductID,
			Name:         product.Title,
			SKU:          product.SKU,
			HSN:          product.HSNCode,
			Quantity:     item.Quantity,
			Price:        item.Price,
			GSTRate:      rate,
			GSTCharge:    gstCharge,
			TaxableValue: lineTotal,
		})
		comp.SubTotal = comp.SubTotal.Add(lineTotal)
		comp.TotalTax = comp.TotalTax.Add(gstCharge)
	}
	return comp
}

// PreTaxTotal sums price × quantity over resolved lines.
func (c Computation) PreTaxTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}
