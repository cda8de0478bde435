package catalog

import (
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func TestDiscountedPrice(t *testing.T) {
	cases := []struct {
		name     string
		original string
		percent  string
		want     string
	}{
		{"ten percent", "100.00", "10", "90.00"},
		{"rounds half up", "19.99", "15", "16.99"},
		{"half cent up", "0.05", "50", "0.03"},
		{"fractional percent", "49.90", "12.5", "43.66"},
		{"zero percent", "12.34", "0", "12.34"},
		{"full discount", "12.34", "100", "0.00"},
		{"clamped above 100", "10.00", "120", "0.00"},
		{"clamped below 0", "10.00", "-5", "10.00"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := DiscountedPrice(decimal.RequireFromString(tc.original), decimal.RequireFromString(tc.percent))
			check.Equal(t, tc.want, FormatPrice(got))
		})
	}
}

func TestOriginalPrice(t *testing.T) {
	price := decimal.RequireFromString("80.00")
	check.Equal(t, "100.00", FormatPrice(OriginalPrice(price, decimal.RequireFromString("100"))))
	check.Equal(t, "80.00", FormatPrice(OriginalPrice(price, decimal.Zero)))
}

func TestNormalize(t *testing.T) {
	qty := 3
	ca := "25.00"
	empty := ""
	p, err := Normalize(RawProduct{
		ID:     "gid://shopify/Product/1",
		Title:  "Lamp",
		Status: "active",
		Variants: []RawVariant{
			{ID: "gid://shopify/ProductVariant/11", Price: "20.00", CompareAtPrice: &ca, InventoryQuantity: &qty},
			{ID: "gid://shopify/ProductVariant/12", Price: "18.50", CompareAtPrice: &empty},
			{ID: "gid://shopify/ProductVariant/13", Price: "9"},
		},
	})
	assert.NoError(t, err)
	check.Equal(t, "gid://shopify/Product/1", p.ID)
	check.Equal(t, StatusActive, p.Status)
	assert.Equal(t, 3, len(p.Variants))

	check.Equal(t, "25.00", FormatPrice(p.Variants[0].OriginalPrice))
	check.Equal(t, 3, p.Variants[0].InventoryQuantity)
	check.True(t, p.Variants[1].CompareAtPrice.IsZero())
	check.Equal(t, "18.50", FormatPrice(p.Variants[1].OriginalPrice))
	check.Equal(t, 0, p.Variants[2].InventoryQuantity)
	check.True(t, p.Eligible())

	_, err = Normalize(RawProduct{ID: "x", Variants: []RawVariant{{ID: "v", Price: "abc"}}})
	check.Error(t, err)

	_, err = Normalize(RawProduct{})
	check.Error(t, err)
}

func TestEligibility(t *testing.T) {
	inStock := Variant{ID: "a", InventoryQuantity: 2}
	outOfStock := Variant{ID: "b", InventoryQuantity: 0}

	check.True(t, Product{Status: StatusActive, Variants: []Variant{outOfStock, inStock}}.Eligible())
	check.True(t, Product{Status: StatusArchived, Variants: []Variant{inStock}}.Eligible())
	check.False(t, Product{Status: StatusDraft, Variants: []Variant{inStock}}.Eligible())
	check.False(t, Product{Status: StatusActive, Variants: []Variant{outOfStock}}.Eligible())
	check.False(t, Product{Status: StatusActive}.Eligible())
}

func TestApplyWritesBack(t *testing.T) {
	products := []Product{{ID: "p", Variants: []Variant{
		{ID: "v1", Price: decimal.RequireFromString("10")},
		{ID: "v2", Price: decimal.RequireFromString("20")},
	}}}
	Apply(products, []PriceUpdate{{VariantID: "v2", Price: decimal.RequireFromString("15"), CompareAtPrice: decimal.RequireFromString("20")}})

	check.Equal(t, "10.00", FormatPrice(products[0].Variants[0].Price))
	check.Equal(t, "15.00", FormatPrice(products[0].Variants[1].Price))
	check.Equal(t, "20.00", FormatPrice(products[0].Variants[1].CompareAtPrice))
}

func TestBackoffDelays(t *testing.T) {
	b := DefaultBackoff
	check.Equal(t, "2s", b.Delay(0).String())
	check.Equal(t, "4s", b.Delay(1).String())
	check.Equal(t, "8s", b.Delay(2).String())
	check.Equal(t, "15s", b.Delay(3).String())
	check.Equal(t, "15s", b.Delay(7).String())
}
