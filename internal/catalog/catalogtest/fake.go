// Package catalogtest provides an in-memory catalog API for tests.
package catalogtest

import (
	"context"
	"strconv"
	"sync"
	"time"

	"reverse_auction/internal/catalog"
)

// FakeAPI keeps storefront state in memory and applies writes to it.
type FakeAPI struct {
	mu       sync.Mutex
	products []catalog.RawProduct

	// FailPages fails ProductsPage for the given page index on every call.
	FailPages map[int]error
	// BulkErrors are returned by successive bulk calls before any write happens.
	BulkErrors []error
	// FailVariants are rejected by both bulk and per-item writes.
	FailVariants map[string]error
	// Latency is added to every write call.
	Latency time.Duration

	PageCalls   int
	BulkCalls   int
	ItemCalls   int
	inFlight    int
	MaxInFlight int
}

func NewFakeAPI(products ...catalog.RawProduct) *FakeAPI {
	return &FakeAPI{
		products:     products,
		FailPages:    map[int]error{},
		FailVariants: map[string]error{},
	}
}

// Product builds a raw product record.
func Product(id, status string, variants ...catalog.RawVariant) catalog.RawProduct {
	return catalog.RawProduct{ID: id, Title: id, Status: status, Variants: variants}
}

// Variant builds a raw variant; an empty compareAt means unset.
func Variant(id, price, compareAt string, qty int) catalog.RawVariant {
	v := catalog.RawVariant{ID: id, Price: price, InventoryQuantity: &qty}
	if compareAt != "" {
		v.CompareAtPrice = &compareAt
	}
	return v
}

func (f *FakeAPI) ProductsPage(ctx context.Context, first int, cursor string) (catalog.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PageCalls++

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return catalog.Page{}, &catalog.APIError{Op: "getProducts", Message: "bad cursor"}
		}
		start = n
	}
	if first <= 0 {
		first = 50
	}
	if err, ok := f.FailPages[start/first]; ok {
		return catalog.Page{}, err
	}
	end := start + first
	if end > len(f.products) {
		end = len(f.products)
	}
	page := catalog.Page{HasNextPage: end < len(f.products)}
	if page.HasNextPage {
		page.EndCursor = strconv.Itoa(end)
	}
	for _, p := range f.products[start:end] {
		page.Products = append(page.Products, copyProduct(p))
	}
	return page, nil
}

func (f *FakeAPI) BulkUpdateVariants(ctx context.Context, updates []catalog.PriceUpdate) error {
	f.enter()
	defer f.leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.BulkCalls++
	if len(f.BulkErrors) > 0 {
		err := f.BulkErrors[0]
		f.BulkErrors = f.BulkErrors[1:]
		return err
	}
	var userErrs []catalog.UserError
	for _, u := range updates {
		if err, ok := f.FailVariants[u.VariantID]; ok {
			userErrs = append(userErrs, catalog.UserError{Field: []string{"variants", u.VariantID}, Message: err.Error()})
		}
	}
	if len(userErrs) > 0 {
		return &catalog.APIError{Op: "bulkPrices", UserErrors: userErrs}
	}
	for _, u := range updates {
		f.write(u)
	}
	return nil
}

func (f *FakeAPI) UpdateVariant(ctx context.Context, u catalog.PriceUpdate) error {
	f.enter()
	defer f.leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ItemCalls++
	if err, ok := f.FailVariants[u.VariantID]; ok {
		return err
	}
	f.write(u)
	return nil
}

// Price returns the storefront price of a variant, formatted.
func (f *FakeAPI) Price(variantID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v := f.find(variantID); v != nil {
		return v.Price
	}
	return ""
}

// CompareAt returns the storefront compareAtPrice, or "" when unset.
func (f *FakeAPI) CompareAt(variantID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v := f.find(variantID); v != nil && v.CompareAtPrice != nil {
		return *v.CompareAtPrice
	}
	return ""
}

// Writes returns the number of write calls so far.
func (f *FakeAPI) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.BulkCalls + f.ItemCalls
}

func (f *FakeAPI) write(u catalog.PriceUpdate) {
	v := f.find(u.VariantID)
	if v == nil {
		return
	}
	v.Price = catalog.FormatPrice(u.Price)
	ca := catalog.FormatPrice(u.CompareAtPrice)
	v.CompareAtPrice = &ca
}

func (f *FakeAPI) find(variantID string) *catalog.RawVariant {
	for i := range f.products {
		for j := range f.products[i].Variants {
			if f.products[i].Variants[j].ID == variantID {
				return &f.products[i].Variants[j]
			}
		}
	}
	return nil
}

func (f *FakeAPI) enter() {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.MaxInFlight {
		f.MaxInFlight = f.inFlight
	}
	lat := f.Latency
	f.mu.Unlock()
	if lat > 0 {
		time.Sleep(lat)
	}
}

func (f *FakeAPI) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func copyProduct(p catalog.RawProduct) catalog.RawProduct {
	out := p
	out.Tags = append([]string(nil), p.Tags...)
	out.Variants = make([]catalog.RawVariant, len(p.Variants))
	for i, v := range p.Variants {
		cv := v
		if v.CompareAtPrice != nil {
			ca := *v.CompareAtPrice
			cv.CompareAtPrice = &ca
		}
		if v.InventoryQuantity != nil {
			q := *v.InventoryQuantity
			cv.InventoryQuantity = &q
		}
		out.Variants[i] = cv
	}
	return out
}

// Sleeper records requested waits without blocking.
type Sleeper struct {
	mu     sync.Mutex
	Delays []time.Duration
}

func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.Delays = append(s.Delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Recorded returns a copy of the recorded waits.
func (s *Sleeper) Recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.Delays...)
}
