package catalog

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ProductStatus mirrors the storefront product status.
type ProductStatus string

const (
	StatusActive   ProductStatus = "ACTIVE"
	StatusDraft    ProductStatus = "DRAFT"
	StatusArchived ProductStatus = "ARCHIVED"
)

// Variant is the canonical variant snapshot. OriginalPrice is captured once at
// normalisation and is the base every discount is computed from.
type Variant struct {
	ID                string          `json:"id"`
	Price             decimal.Decimal `json:"price"`
	CompareAtPrice    decimal.Decimal `json:"compare_at_price"`
	InventoryQuantity int             `json:"inventory_quantity"`
	OriginalPrice     decimal.Decimal `json:"original_price"`
}

// Product is the canonical product snapshot.
type Product struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Tags     []string      `json:"tags"`
	Status   ProductStatus `json:"status"`
	Variants []Variant     `json:"variants"`
}

// Eligible: non-draft with at least one variant in stock.
func (p Product) Eligible() bool {
	if p.Status == StatusDraft {
		return false
	}
	for _, v := range p.Variants {
		if v.InventoryQuantity > 0 {
			return true
		}
	}
	return false
}

// RawVariant / RawProduct are the shapes the API adapter hands back before
// normalisation. Absent fields stay nil.
type RawVariant struct {
	ID                string  `json:"id"`
	Price             string  `json:"price"`
	CompareAtPrice    *string `json:"compareAtPrice"`
	InventoryQuantity *int    `json:"inventoryQuantity"`
}

type RawProduct struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Tags     []string     `json:"tags"`
	Status   string       `json:"status"`
	Variants []RawVariant `json:"variants"`
}

// Page is one page of the product listing.
type Page struct {
	Products    []RawProduct
	HasNextPage bool
	EndCursor   string
}

// PriceUpdate is a single variant write.
type PriceUpdate struct {
	ProductID      string
	VariantID      string
	Price          decimal.Decimal
	CompareAtPrice decimal.Decimal
}

// Normalize converts an adapter record into the canonical snapshot.
func Normalize(raw RawProduct) (Product, error) {
	if raw.ID == "" {
		return Product{}, errors.New("product without id")
	}
	status := ProductStatus(strings.ToUpper(strings.TrimSpace(raw.Status)))
	if status == "" {
		status = StatusActive
	}
	p := Product{
		ID:       raw.ID,
		Title:    raw.Title,
		Tags:     append([]string(nil), raw.Tags...),
		Status:   status,
		Variants: make([]Variant, 0, len(raw.Variants)),
	}
	for _, rv := range raw.Variants {
		price, err := decimal.NewFromString(strings.TrimSpace(rv.Price))
		if err != nil {
			return Product{}, errors.Wrapf(err, "variant %s price %q", rv.ID, rv.Price)
		}
		compareAt := decimal.Zero
		if rv.CompareAtPrice != nil && strings.TrimSpace(*rv.CompareAtPrice) != "" {
			compareAt, err = decimal.NewFromString(strings.TrimSpace(*rv.CompareAtPrice))
			if err != nil {
				return Product{}, errors.Wrapf(err, "variant %s compareAtPrice %q", rv.ID, *rv.CompareAtPrice)
			}
		}
		qty := 0
		if rv.InventoryQuantity != nil {
			qty = *rv.InventoryQuantity
		}
		p.Variants = append(p.Variants, Variant{
			ID:                rv.ID,
			Price:             price,
			CompareAtPrice:    compareAt,
			InventoryQuantity: qty,
			OriginalPrice:     OriginalPrice(price, compareAt),
		})
	}
	return p, nil
}

// EligibleProducts returns the products that take part in a discount step.
func EligibleProducts(products []Product) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if p.Eligible() {
			out = append(out, p)
		}
	}
	return out
}

// Apply writes successful updates back into the snapshot so the cache
// reflects what the storefront now shows.
func Apply(products []Product, updates []PriceUpdate) {
	if len(updates) == 0 {
		return
	}
	byVariant := make(map[string]PriceUpdate, len(updates))
	for _, u := range updates {
		byVariant[u.VariantID] = u
	}
	for i := range products {
		for j := range products[i].Variants {
			v := &products[i].Variants[j]
			if u, ok := byVariant[v.ID]; ok {
				v.Price = u.Price
				v.CompareAtPrice = u.CompareAtPrice
			}
		}
	}
}

// CountVariants returns the number of variants across products.
func CountVariants(products []Product) int {
	n := 0
	for _, p := range products {
		n += len(p.Variants)
	}
	return n
}
