package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func newShopifyServer(t *testing.T, handler func(w http.ResponseWriter, req gqlRequest)) *ShopifyAPI {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Access-Token") != "shpat_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req gqlRequest
		if err := json.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return NewShopifyAPI(srv.URL, "shpat_test", srv.Client())
}

func TestShopifyProductsPage(t *testing.T) {
	api := newShopifyServer(t, func(w http.ResponseWriter, req gqlRequest) {
		check.True(t, strings.Contains(req.Query, "products(first: $first, after: $after)"))
		check.Equal(t, "abc", req.Variables["after"])
		_, _ = io.WriteString(w, `{"data":{"products":{
			"pageInfo":{"hasNextPage":true,"endCursor":"def"},
			"edges":[{"node":{"id":"gid://shopify/Product/1","title":"Mug","tags":["sale"],"status":"ACTIVE",
				"variants":{"edges":[{"node":{"id":"gid://shopify/ProductVariant/9","price":"12.50","compareAtPrice":null,"inventoryQuantity":4}}]}}}]}}}`)
	})

	page, err := api.ProductsPage(context.Background(), 50, "abc")
	assert.NoError(t, err)
	check.True(t, page.HasNextPage)
	check.Equal(t, "def", page.EndCursor)
	assert.Equal(t, 1, len(page.Products))
	p := page.Products[0]
	check.Equal(t, "gid://shopify/Product/1", p.ID)
	assert.Equal(t, 1, len(p.Variants))
	check.Equal(t, "12.50", p.Variants[0].Price)
	check.True(t, p.Variants[0].CompareAtPrice == nil)
	check.Equal(t, 4, *p.Variants[0].InventoryQuantity)
}

func TestShopifyBulkUpdateGroupsByProduct(t *testing.T) {
	var seen gqlRequest
	api := newShopifyServer(t, func(w http.ResponseWriter, req gqlRequest) {
		seen = req
		_, _ = io.WriteString(w, `{"data":{"p0":{"userErrors":[]},"p1":{"userErrors":[]}}}`)
	})

	err := api.BulkUpdateVariants(context.Background(), []PriceUpdate{
		{ProductID: "P1", VariantID: "V1", Price: decimal.RequireFromString("9"), CompareAtPrice: decimal.RequireFromString("10")},
		{ProductID: "P2", VariantID: "V2", Price: decimal.RequireFromString("4.5"), CompareAtPrice: decimal.RequireFromString("5")},
		{ProductID: "P1", VariantID: "V3", Price: decimal.RequireFromString("18"), CompareAtPrice: decimal.RequireFromString("20")},
	})
	assert.NoError(t, err)
	check.True(t, strings.Contains(seen.Query, "p0: productVariantsBulkUpdate(productId: $p0, variants: $v0)"))
	check.True(t, strings.Contains(seen.Query, "p1: productVariantsBulkUpdate(productId: $p1, variants: $v1)"))
	check.Equal(t, "P1", seen.Variables["p0"])
	v0, ok := seen.Variables["v0"].([]any)
	assert.True(t, ok)
	check.Equal(t, 2, len(v0))
	first := v0[0].(map[string]any)
	check.Equal(t, "9.00", first["price"])
	check.Equal(t, "10.00", first["compareAtPrice"])
}

func TestShopifyErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		throttled bool
		retryable bool
		userErrs  int
	}{
		{"http 429", http.StatusTooManyRequests, ``, true, false, 0},
		{"graphql throttled", http.StatusOK, `{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}]}`, true, false, 0},
		{"server error", http.StatusBadGateway, `bad gateway`, false, true, 0},
		{"bad request", http.StatusBadRequest, `nope`, false, false, 0},
		{"user errors", http.StatusOK, `{"data":{"p0":{"userErrors":[{"field":["price"],"message":"invalid"}]}}}`, false, false, 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			api := newShopifyServer(t, func(w http.ResponseWriter, req gqlRequest) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			err := api.BulkUpdateVariants(context.Background(), []PriceUpdate{{ProductID: "P", VariantID: "V"}})
			assert.NotNil(t, err)
			apiErr, ok := err.(*APIError)
			assert.True(t, ok)
			check.Equal(t, tc.throttled, apiErr.Throttled)
			check.Equal(t, tc.retryable, apiErr.Retryable)
			check.Equal(t, tc.userErrs, len(apiErr.UserErrors))
			check.Equal(t, tc.throttled || tc.retryable, IsRetryable(err))
		})
	}
}
