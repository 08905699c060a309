package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
)

const (
	defaultTimeout       = 300 * time.Second
	responseMessageLimit = 1024
	userAgent            = "mpsync/1.0"
)

// Item is one upstream object decoded into a field map.
type Item = map[string]any

// Option configures optional client behavior.
type Option func(*options)

type options struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	debug      bool
	now        func() time.Time
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			o.baseURL = trimmed
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithDebug dumps requests and responses to the client log.
func WithDebug(debug bool) Option {
	return func(o *options) {
		o.debug = debug
	}
}

func buildOptions(defaultBaseURL string, opts []Option) options {
	o := options{baseURL: defaultBaseURL, timeout: defaultTimeout, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

type transport struct {
	rest *resty.Client
}

func newTransport(o options) transport {
	rest := resty.New()
	if o.httpClient != nil {
		rest = resty.NewWithClient(o.httpClient)
	}
	rest.SetBaseURL(strings.TrimRight(o.baseURL, "/")).
		SetTimeout(o.timeout).
		SetDebug(o.debug).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
	return transport{rest: rest}
}

type request struct {
	method   string
	path     string
	query    url.Values
	body     any
	headers  http.Header
	notFound pkgerrors.Code
}

func (t *transport) do(ctx context.Context, req request, out any) error {
	r := t.rest.R().SetContext(ctx)
	if len(req.query) > 0 {
		r.SetQueryParamsFromValues(req.query)
	}
	if len(req.headers) > 0 {
		r.SetHeaderMultiValues(req.headers)
	}
	if req.body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.body)
	}
	if out != nil {
		r.SetResult(out).ForceContentType("application/json")
	}

	resp, err := r.Execute(req.method, req.path)
	if err != nil {
		if resp != nil && resp.RawResponse != nil && resp.IsSuccess() {
			return pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "decode response "+req.path)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute request "+req.path)
	}
	if !resp.IsSuccess() {
		return statusError(resp, req)
	}
	return nil
}

// statusError maps upstream status codes onto the sync error taxonomy.
func statusError(resp *resty.Response, req request) error {
	msg := strings.TrimSpace(string(resp.Body()))
	if len(msg) > responseMessageLimit {
		msg = msg[:responseMessageLimit]
	}
	cause := fmt.Errorf("status %d: %s", resp.StatusCode(), msg)
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.Wrap(pkgerrors.CodeBadCredential, cause, "credential rejected by "+req.path)
	case http.StatusTooManyRequests:
		details := map[string]any{"path": req.path}
		if retry, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil && retry > 0 {
			details["retry_after_seconds"] = retry
		}
		return pkgerrors.Wrap(pkgerrors.CodeRateLimited, cause, "rate limited on "+req.path).WithDetails(details)
	case http.StatusNotFound:
		code := req.notFound
		if code == "" {
			code = pkgerrors.CodeNotFound
		}
		return pkgerrors.Wrap(code, cause, "not found "+req.path)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "request failed "+req.path)
	}
}

func dateString(t time.Time) string {
	return t.Format(time.DateOnly)
}

func stringIDs(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}
