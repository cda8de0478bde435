package catalog

import "github.com/shopspring/decimal"

const monetaryPrecision = 2

var hundred = decimal.NewFromInt(100)

// OriginalPrice 原价：compareAtPrice 有值时取之，否则取当前价。
func OriginalPrice(price, compareAt decimal.Decimal) decimal.Decimal {
	if compareAt.IsPositive() {
		return compareAt
	}
	return price
}

// DiscountedPrice = round2(original * (100 - percent) / 100)，四舍五入。
func DiscountedPrice(original, percent decimal.Decimal) decimal.Decimal {
	if percent.LessThan(decimal.Zero) {
		percent = decimal.Zero
	}
	if percent.GreaterThan(hundred) {
		percent = hundred
	}
	return original.Mul(hundred.Sub(percent)).Div(hundred).Round(monetaryPrecision)
}

// FormatPrice renders a price the way the catalog API expects it.
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(monetaryPrecision)
}
