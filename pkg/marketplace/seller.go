package marketplace

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
)

const (
	defaultSellerBaseURL = "https://api-seller.ozon.ru"
	sellerPageSize       = 1000
	visibilityAll        = "ALL"
)

var errSellerCredentials = errors.New("seller client id and api key are required")

// SellerClient calls the seller API on behalf of one credential.
type SellerClient struct {
	transport
	clientID string
	apiKey   string
}

// NewSellerClient builds a seller API client for clientID/apiKey.
func NewSellerClient(clientID, apiKey string, opts ...Option) (*SellerClient, error) {
	clientID = strings.TrimSpace(clientID)
	apiKey = strings.TrimSpace(apiKey)
	if clientID == "" || apiKey == "" {
		return nil, errSellerCredentials
	}
	o := buildOptions(defaultSellerBaseURL, opts)
	return &SellerClient{
		transport: newTransport(o),
		clientID:  clientID,
		apiKey:    apiKey,
	}, nil
}

func (c *SellerClient) post(ctx context.Context, path string, body any, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "seller client not configured")
	}
	headers := http.Header{}
	headers.Set("Client-Id", c.clientID)
	headers.Set("Api-Key", c.apiKey)
	return c.do(ctx, request{method: http.MethodPost, path: path, body: body, headers: headers}, out)
}

// ProductIDs lists every product id of the seller.
func (c *SellerClient) ProductIDs(ctx context.Context) ([]int64, error) {
	var (
		ids    []int64
		lastID string
	)
	for {
		var resp struct {
			Result struct {
				Items []struct {
					ProductID int64 `json:"product_id"`
				} `json:"items"`
				LastID string `json:"last_id"`
			} `json:"result"`
		}
		body := map[string]any{
			"filter":  map[string]any{"visibility": visibilityAll},
			"last_id": lastID,
			"limit":   sellerPageSize,
		}
		if err := c.post(ctx, "/v3/product/list", body, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Result.Items {
			ids = append(ids, item.ProductID)
		}
		if len(resp.Result.Items) < sellerPageSize || resp.Result.LastID == "" {
			return ids, nil
		}
		lastID = resp.Result.LastID
	}
}

// ProductInfo returns the product cards for ids.
func (c *SellerClient) ProductInfo(ctx context.Context, ids []int64) ([]Item, error) {
	var resp struct {
		Items []Item `json:"items"`
	}
	if err := c.post(ctx, "/v3/product/info/list", map[string]any{"product_id": stringIDs(ids)}, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// ProductPrices returns current prices for ids.
func (c *SellerClient) ProductPrices(ctx context.Context, ids []int64) ([]Item, error) {
	var (
		items  []Item
		cursor string
	)
	for {
		var resp struct {
			Items  []Item `json:"items"`
			Cursor string `json:"cursor"`
		}
		body := map[string]any{
			"cursor": cursor,
			"filter": map[string]any{"product_id": stringIDs(ids), "visibility": visibilityAll},
			"limit":  sellerPageSize,
		}
		if err := c.post(ctx, "/v5/product/info/prices", body, &resp); err != nil {
			return nil, err
		}
		items = append(items, resp.Items...)
		if len(resp.Items) < sellerPageSize || resp.Cursor == "" {
			return items, nil
		}
		cursor = resp.Cursor
	}
}

// ProductAttributes returns the attribute sets for ids.
func (c *SellerClient) ProductAttributes(ctx context.Context, ids []int64) ([]Item, error) {
	var (
		items  []Item
		lastID string
	)
	for {
		var resp struct {
			Result []Item `json:"result"`
			LastID string `json:"last_id"`
		}
		body := map[string]any{
			"filter":  map[string]any{"product_id": stringIDs(ids), "visibility": visibilityAll},
			"last_id": lastID,
			"limit":   sellerPageSize,
		}
		if err := c.post(ctx, "/v4/product/info/attributes", body, &resp); err != nil {
			return nil, err
		}
		items = append(items, resp.Result...)
		if len(resp.Result) < sellerPageSize || resp.LastID == "" {
			return items, nil
		}
		lastID = resp.LastID
	}
}

// ProductStocks returns per-scheme stock levels for ids.
func (c *SellerClient) ProductStocks(ctx context.Context, ids []int64) ([]Item, error) {
	var (
		items  []Item
		cursor string
	)
	for {
		var resp struct {
			Items  []Item `json:"items"`
			Cursor string `json:"cursor"`
		}
		body := map[string]any{
			"cursor": cursor,
			"filter": map[string]any{"product_id": stringIDs(ids), "visibility": visibilityAll},
			"limit":  sellerPageSize,
		}
		if err := c.post(ctx, "/v4/product/info/stocks", body, &resp); err != nil {
			return nil, err
		}
		items = append(items, resp.Items...)
		if len(resp.Items) < sellerPageSize || resp.Cursor == "" {
			return items, nil
		}
		cursor = resp.Cursor
	}
}

// WarehouseStocks returns stock rows per sku and fulfillment warehouse.
func (c *SellerClient) WarehouseStocks(ctx context.Context) ([]Item, error) {
	var rows []Item
	for offset := 0; ; offset += sellerPageSize {
		var resp struct {
			Result struct {
				Rows []Item `json:"rows"`
			} `json:"result"`
		}
		body := map[string]any{"limit": sellerPageSize, "offset": offset, "warehouse_type": visibilityAll}
		if err := c.post(ctx, "/v2/analytics/stock_on_warehouses", body, &resp); err != nil {
			return nil, err
		}
		rows = append(rows, resp.Result.Rows...)
		if len(resp.Result.Rows) < sellerPageSize {
			return rows, nil
		}
	}
}

// AnalyticsRow is one (sku, day) line of the analytics report with metric
// values in request order.
type AnalyticsRow struct {
	SKU     string
	Name    string
	Date    string
	Metrics []float64
}

// Analytics returns daily per-sku metrics between from and to inclusive.
func (c *SellerClient) Analytics(ctx context.Context, from, to time.Time, metrics []string) ([]AnalyticsRow, error) {
	var rows []AnalyticsRow
	for offset := 0; ; offset += sellerPageSize {
		var resp struct {
			Result struct {
				Data []struct {
					Dimensions []struct {
						ID   string `json:"id"`
						Name string `json:"name"`
					} `json:"dimensions"`
					Metrics []float64 `json:"metrics"`
				} `json:"data"`
			} `json:"result"`
		}
		body := map[string]any{
			"date_from": dateString(from),
			"date_to":   dateString(to),
			"metrics":   metrics,
			"dimension": []string{"sku", "day"},
			"limit":     sellerPageSize,
			"offset":    offset,
		}
		if err := c.post(ctx, "/v1/analytics/data", body, &resp); err != nil {
			return nil, err
		}
		for _, d := range resp.Result.Data {
			if len(d.Dimensions) < 2 {
				return nil, pkgerrors.New(pkgerrors.CodeMalformedPayload, "analytics row without sku and day dimensions")
			}
			rows = append(rows, AnalyticsRow{
				SKU:     d.Dimensions[0].ID,
				Name:    d.Dimensions[0].Name,
				Date:    d.Dimensions[1].ID,
				Metrics: d.Metrics,
			})
		}
		if len(resp.Result.Data) < sellerPageSize {
			return rows, nil
		}
	}
}

// Transactions returns finance operations between from and to.
func (c *SellerClient) Transactions(ctx context.Context, from, to time.Time) ([]Item, error) {
	var operations []Item
	for page := 1; ; page++ {
		var resp struct {
			Result struct {
				Operations []Item `json:"operations"`
				PageCount  int    `json:"page_count"`
			} `json:"result"`
		}
		body := map[string]any{
			"filter": map[string]any{
				"date": map[string]any{
					"from": from.UTC().Format(time.RFC3339),
					"to":   to.UTC().Format(time.RFC3339),
				},
				"transaction_type": "all",
			},
			"page":      page,
			"page_size": sellerPageSize,
		}
		if err := c.post(ctx, "/v3/finance/transaction/list", body, &resp); err != nil {
			return nil, err
		}
		operations = append(operations, resp.Result.Operations...)
		if page >= resp.Result.PageCount {
			return operations, nil
		}
	}
}

func postingBody(since, to time.Time, offset int) map[string]any {
	return map[string]any{
		"dir": "ASC",
		"filter": map[string]any{
			"since": since.UTC().Format(time.RFC3339),
			"to":    to.UTC().Format(time.RFC3339),
		},
		"limit":  sellerPageSize,
		"offset": offset,
		"with":   map[string]any{"analytics_data": true, "financial_data": true},
	}
}

// FBOPostings returns marketplace-fulfilled postings created between since and to.
func (c *SellerClient) FBOPostings(ctx context.Context, since, to time.Time) ([]Item, error) {
	var postings []Item
	for offset := 0; ; offset += sellerPageSize {
		var resp struct {
			Result []Item `json:"result"`
		}
		if err := c.post(ctx, "/v2/posting/fbo/list", postingBody(since, to, offset), &resp); err != nil {
			return nil, err
		}
		postings = append(postings, resp.Result...)
		if len(resp.Result) < sellerPageSize {
			return postings, nil
		}
	}
}

// FBSPostings returns seller-fulfilled postings created between since and to.
func (c *SellerClient) FBSPostings(ctx context.Context, since, to time.Time) ([]Item, error) {
	var postings []Item
	for offset := 0; ; offset += sellerPageSize {
		var resp struct {
			Result struct {
				Postings []Item `json:"postings"`
				HasNext  bool   `json:"has_next"`
			} `json:"result"`
		}
		if err := c.post(ctx, "/v3/posting/fbs/list", postingBody(since, to, offset), &resp); err != nil {
			return nil, err
		}
		postings = append(postings, resp.Result.Postings...)
		if !resp.Result.HasNext {
			return postings, nil
		}
	}
}
