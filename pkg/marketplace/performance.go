package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
)

const (
	defaultPerformanceBaseURL = "https://api-performance.ozon.ru"
	campaignProductsPageSize  = 100
	tokenRefreshMargin        = time.Minute
)

var errPerformanceCredentials = errors.New("performance client id and secret are required")

// PerformanceClient calls the advertising API on behalf of one credential.
// Access tokens are fetched lazily and reused until shortly before expiry.
type PerformanceClient struct {
	transport
	clientID     string
	clientSecret string
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewPerformanceClient builds an advertising API client.
func NewPerformanceClient(clientID, clientSecret string, opts ...Option) (*PerformanceClient, error) {
	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, errPerformanceCredentials
	}
	o := buildOptions(defaultPerformanceBaseURL, opts)
	return &PerformanceClient{
		transport:    newTransport(o),
		clientID:     clientID,
		clientSecret: clientSecret,
		now:          o.now,
	}, nil
}

func (c *PerformanceClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	body := map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"grant_type":    "client_credentials",
	}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/client/token", body: body}, &resp); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return "", pkgerrors.Wrap(pkgerrors.CodeBadCredential, err, "token endpoint rejected credential")
		}
		return "", err
	}
	if resp.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeBadCredential, "empty access token")
	}
	c.token = resp.AccessToken
	c.expiresAt = c.now().Add(time.Duration(resp.ExpiresIn)*time.Second - tokenRefreshMargin)
	return c.token, nil
}

func (c *PerformanceClient) call(ctx context.Context, req request, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "performance client not configured")
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	if req.headers == nil {
		req.headers = http.Header{}
	}
	req.headers.Set("Authorization", "Bearer "+token)
	return c.do(ctx, req, out)
}

// Campaigns lists every advertising campaign of the credential.
func (c *PerformanceClient) Campaigns(ctx context.Context) ([]Item, error) {
	var resp struct {
		List []Item `json:"list"`
	}
	if err := c.call(ctx, request{method: http.MethodGet, path: "/api/client/campaign"}, &resp); err != nil {
		return nil, err
	}
	return resp.List, nil
}

// CampaignProducts lists the products promoted by one campaign.
func (c *PerformanceClient) CampaignProducts(ctx context.Context, campaignID int64) ([]Item, error) {
	var products []Item
	for page := 1; ; page++ {
		var resp struct {
			Products []Item `json:"products"`
		}
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("pageSize", strconv.Itoa(campaignProductsPageSize))
		req := request{
			method: http.MethodGet,
			path:   fmt.Sprintf("/api/client/campaign/%d/v2/products", campaignID),
			query:  query,
		}
		if err := c.call(ctx, req, &resp); err != nil {
			return nil, err
		}
		products = append(products, resp.Products...)
		if len(resp.Products) < campaignProductsPageSize {
			return products, nil
		}
	}
}

// DailyStatistics returns per-day totals for the given campaigns.
func (c *PerformanceClient) DailyStatistics(ctx context.Context, campaignIDs []int64, from, to time.Time) ([]Item, error) {
	var resp struct {
		Rows []Item `json:"rows"`
	}
	query := url.Values{}
	for _, id := range stringIDs(campaignIDs) {
		query.Add("campaignIds", id)
	}
	query.Set("dateFrom", dateString(from))
	query.Set("dateTo", dateString(to))
	if err := c.call(ctx, request{method: http.MethodGet, path: "/api/client/statistics/daily/json", query: query}, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// CreateReport requests an asynchronous statistics report and returns its UUID.
func (c *PerformanceClient) CreateReport(ctx context.Context, campaignIDs []int64, from, to time.Time) (string, error) {
	var resp struct {
		UUID string `json:"UUID"`
	}
	body := map[string]any{
		"campaigns": stringIDs(campaignIDs),
		"dateFrom":  dateString(from),
		"dateTo":    dateString(to),
		"groupBy":   "DATE",
	}
	if err := c.call(ctx, request{method: http.MethodPost, path: "/api/client/statistics/json", body: body}, &resp); err != nil {
		return "", err
	}
	if resp.UUID == "" {
		return "", pkgerrors.New(pkgerrors.CodeMalformedPayload, "report request returned no UUID")
	}
	return resp.UUID, nil
}

// ReportStatus is the processing state of a requested report.
type ReportStatus struct {
	UUID  string `json:"UUID"`
	State string `json:"state"`
	Error string `json:"error"`
}

// ReportState polls a requested report.
func (c *PerformanceClient) ReportState(ctx context.Context, uuid string) (ReportStatus, error) {
	var status ReportStatus
	req := request{
		method:   http.MethodGet,
		path:     "/api/client/statistics/" + url.PathEscape(uuid),
		notFound: pkgerrors.CodeReportNotFound,
	}
	err := c.call(ctx, req, &status)
	return status, err
}

// DownloadReport fetches a finished report keyed by campaign id.
func (c *PerformanceClient) DownloadReport(ctx context.Context, uuid string) (map[string]Item, error) {
	out := map[string]Item{}
	query := url.Values{}
	query.Set("UUID", uuid)
	req := request{
		method:   http.MethodGet,
		path:     "/api/client/statistics/report/json",
		query:    query,
		notFound: pkgerrors.CodeReportNotFound,
	}
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}
