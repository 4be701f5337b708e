package finance

import (
	"strings"

	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// VATCategory maps an invoice line to a fixed VAT rate
type VATCategory string

const (
	VATCategoryStandard VATCategory = "standard"
	VATCategoryReduced  VATCategory = "reduced"
	VATCategoryMinimal  VATCategory = "minimal"
	VATCategoryZero     VATCategory = "zero"
	VATCategoryExempt   VATCategory = "exempt"
)

var vatRates = map[VATCategory]decimal.Decimal{
	VATCategoryStandard: decimal.RequireFromString("0.15"),
	VATCategoryReduced:  decimal.RequireFromString("0.10"),
	VATCategoryMinimal:  decimal.RequireFromString("0.02"),
	VATCategoryZero:     decimal.Zero,
	VATCategoryExempt:   decimal.Zero,
}

// ParseVATCategory accepts a category name in any case
func ParseVATCategory(s string) (VATCategory, error) {
	c := VATCategory(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", ErrInvalidVATCategory.WithDetail("category", s)
	}
	return c, nil
}

// IsValid checks if the category is known
func (c VATCategory) IsValid() bool {
	_, ok := vatRates[c]
	return ok
}

// Rate returns the fixed VAT rate as a fraction
func (c VATCategory) Rate() decimal.Decimal {
	return vatRates[c]
}

// IsExempt reports whether the supply is outside the VAT system.
// Zero-rated supplies are taxable at 0%; exempt supplies are not taxable at all.
func (c VATCategory) IsExempt() bool {
	return c == VATCategoryExempt
}

// CalculateVAT returns amount × rate rounded to minor units
func CalculateVAT(amount valueobject.Money, category VATCategory) valueobject.Money {
	return amount.Multiply(category.Rate()).RoundMinor()
}
