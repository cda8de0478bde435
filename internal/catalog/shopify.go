package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const productsQuery = `
query getProducts($first: Int!, $after: String) {
  products(first: $first, after: $after) {
    pageInfo {
      hasNextPage
      endCursor
    }
    edges {
      node {
        id
        title
        tags
        status
        variants(first: 100) {
          edges {
            node {
              id
              price
              compareAtPrice
              inventoryQuantity
            }
          }
        }
      }
    }
  }
}`

const variantUpdateMutation = `
mutation variantPrice($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkUpdate(productId: $productId, variants: $variants) {
    userErrors {
      field
      message
    }
  }
}`

// ShopifyEndpoint builds the Admin GraphQL URL for a shop domain.
func ShopifyEndpoint(shop, apiVersion string) string {
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shop, apiVersion)
}

// ShopifyAPI 通过 Admin GraphQL 读写商品价格，每次请求一个 client span。
type ShopifyAPI struct {
	endpoint string
	token    string
	http     *http.Client
	tracer   trace.Tracer
}

func NewShopifyAPI(endpoint, token string, httpClient *http.Client) *ShopifyAPI {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 32,
			},
		}
	}
	return &ShopifyAPI{
		endpoint: endpoint,
		token:    token,
		http:     httpClient,
		tracer:   otel.Tracer("reverse_auction/catalog"),
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

type productsData struct {
	Products struct {
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
		Edges []struct {
			Node struct {
				ID       string   `json:"id"`
				Title    string   `json:"title"`
				Tags     []string `json:"tags"`
				Status   string   `json:"status"`
				Variants struct {
					Edges []struct {
						Node RawVariant `json:"node"`
					} `json:"edges"`
				} `json:"variants"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"products"`
}

type bulkPayload struct {
	UserErrors []UserError `json:"userErrors"`
}

type variantInput struct {
	ID             string `json:"id"`
	Price          string `json:"price"`
	CompareAtPrice string `json:"compareAtPrice"`
}

// ProductsPage 拉取一页商品（游标分页）。
func (s *ShopifyAPI) ProductsPage(ctx context.Context, first int, cursor string) (Page, error) {
	vars := map[string]any{"first": first}
	if cursor != "" {
		vars["after"] = cursor
	}
	var data productsData
	if err := s.do(ctx, "getProducts", productsQuery, vars, &data); err != nil {
		return Page{}, err
	}

	page := Page{
		HasNextPage: data.Products.PageInfo.HasNextPage,
		EndCursor:   data.Products.PageInfo.EndCursor,
		Products:    make([]RawProduct, 0, len(data.Products.Edges)),
	}
	for _, e := range data.Products.Edges {
		rp := RawProduct{
			ID:     e.Node.ID,
			Title:  e.Node.Title,
			Tags:   e.Node.Tags,
			Status: e.Node.Status,
		}
		for _, ve := range e.Node.Variants.Edges {
			rp.Variants = append(rp.Variants, ve.Node)
		}
		page.Products = append(page.Products, rp)
	}
	return page, nil
}

// BulkUpdateVariants 把一批变体按商品分组，在同一个 GraphQL 文档里用别名发出多个
// productVariantsBulkUpdate。任一商品返回 userErrors 即整体视为失败，由调用方逐条回退。
func (s *ShopifyAPI) BulkUpdateVariants(ctx context.Context, updates []PriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	var order []string
	grouped := make(map[string][]variantInput)
	for _, u := range updates {
		if _, ok := grouped[u.ProductID]; !ok {
			order = append(order, u.ProductID)
		}
		grouped[u.ProductID] = append(grouped[u.ProductID], toVariantInput(u))
	}

	var (
		params []string
		fields []string
		vars   = make(map[string]any, 2*len(order))
	)
	for i, pid := range order {
		params = append(params, fmt.Sprintf("$p%d: ID!, $v%d: [ProductVariantsBulkInput!]!", i, i))
		fields = append(fields, fmt.Sprintf(
			"  p%d: productVariantsBulkUpdate(productId: $p%d, variants: $v%d) { userErrors { field message } }", i, i, i))
		vars[fmt.Sprintf("p%d", i)] = pid
		vars[fmt.Sprintf("v%d", i)] = grouped[pid]
	}
	query := fmt.Sprintf("mutation bulkPrices(%s) {\n%s\n}", strings.Join(params, ", "), strings.Join(fields, "\n"))

	var data map[string]bulkPayload
	if err := s.do(ctx, "bulkPrices", query, vars, &data); err != nil {
		return err
	}
	var userErrs []UserError
	for _, payload := range data {
		userErrs = append(userErrs, payload.UserErrors...)
	}
	if len(userErrs) > 0 {
		return &APIError{Op: "bulkPrices", UserErrors: userErrs}
	}
	return nil
}

// UpdateVariant 单个变体写入，用于批量失败后的逐条回退。
func (s *ShopifyAPI) UpdateVariant(ctx context.Context, u PriceUpdate) error {
	vars := map[string]any{
		"productId": u.ProductID,
		"variants":  []variantInput{toVariantInput(u)},
	}
	var data struct {
		ProductVariantsBulkUpdate bulkPayload `json:"productVariantsBulkUpdate"`
	}
	if err := s.do(ctx, "variantPrice", variantUpdateMutation, vars, &data); err != nil {
		return err
	}
	if ue := data.ProductVariantsBulkUpdate.UserErrors; len(ue) > 0 {
		return &APIError{Op: "variantPrice", UserErrors: ue}
	}
	return nil
}

func toVariantInput(u PriceUpdate) variantInput {
	return variantInput{
		ID:             u.VariantID,
		Price:          FormatPrice(u.Price),
		CompareAtPrice: FormatPrice(u.CompareAtPrice),
	}
}

func (s *ShopifyAPI) do(ctx context.Context, op, query string, vars map[string]any, out any) error {
	ctx, span := s.tracer.Start(ctx, "shopify."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("graphql.operation", op),
		attribute.String("http.url", s.endpoint),
	)

	err := s.exchange(ctx, op, query, vars, out, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *ShopifyAPI) exchange(ctx context.Context, op, query string, vars map[string]any, out any, span trace.Span) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return &APIError{Op: op, Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return &APIError{Op: op, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", s.token)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &APIError{Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Retryable: true, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &APIError{Op: op, StatusCode: resp.StatusCode, Throttled: true}
	case resp.StatusCode >= 500:
		return &APIError{Op: op, StatusCode: resp.StatusCode, Retryable: true, Message: snippet(raw)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: snippet(raw)}
	}

	var envelope gqlResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}
	if len(envelope.Errors) > 0 {
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode}
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			if e.Extensions.Code == "THROTTLED" {
				apiErr.Throttled = true
			}
			msgs = append(msgs, e.Message)
		}
		apiErr.Message = strings.Join(msgs, "; ")
		return apiErr
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: "decode data", Err: err}
	}
	return nil
}

func snippet(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max]
	}
	return s
}
