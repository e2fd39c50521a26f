package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/leadengine/instance-sync/internal/httpclient"
)

const (
	// DefaultTimeout is applied to every broker request unless overridden
	DefaultTimeout = 20 * time.Second

	headerAPIKey    = "X-API-Key"
	headerRequestID = "X-Request-Id"
	headerTenantID  = "X-Tenant-Id"
)

// Option configures the HTTP broker client
type Option func(*httpClient)

// WithTimeout overrides the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *httpClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient overrides the underlying transport
func WithHTTPClient(client httpclient.Client) Option {
	return func(c *httpClient) {
		c.http = client
	}
}

// httpClient talks to the broker REST API
type httpClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    httpclient.Client
}

// NewClient creates a broker client. When baseURL or apiKey is empty the
// returned client answers every call with ErrNotConfigured.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.NewDefaultClient(c.timeout)
	}
	return c
}

func (c *httpClient) configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// ListInstances returns the tenant's broker snapshots
func (c *httpClient) ListInstances(ctx context.Context, tenantID string) ([]Snapshot, error) {
	q := url.Values{}
	q.Set("tenantId", tenantID)
	resp, err := c.do(ctx, "list instances", http.MethodGet, "/instances?"+q.Encode(), tenantID, nil)
	if err != nil {
		return nil, err
	}
	snapshots, err := ParseSnapshots(resp.Body)
	if err != nil {
		return nil, &Error{Operation: "list instances", StatusCode: resp.StatusCode, Err: err}
	}
	return snapshots, nil
}

// CreateInstance provisions a new broker session
func (c *httpClient) CreateInstance(ctx context.Context, req CreateRequest) (*Snapshot, error) {
	resp, err := c.do(ctx, "create instance", http.MethodPost, "/instances", req.TenantID, req)
	if err != nil {
		return nil, err
	}
	snapshot, err := ParseSnapshot(resp.Body)
	if err != nil {
		return nil, &Error{Operation: "create instance", StatusCode: resp.StatusCode, Err: err}
	}
	if snapshot.Instance.ID == "" {
		snapshot.Instance.ID = req.InstanceID
	}
	return snapshot, nil
}

// ConnectInstance starts pairing for a session
func (c *httpClient) ConnectInstance(ctx context.Context, brokerID string, opts ConnectOptions) (*Status, error) {
	resp, err := c.do(ctx, "connect instance", http.MethodPost, instancePath(brokerID, "connect"), "", opts)
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return &Status{}, nil
	}
	st, err := ParseStatus(resp.Body)
	if err != nil {
		return nil, &Error{Operation: "connect instance", StatusCode: resp.StatusCode, Err: err}
	}
	return st, nil
}

// DisconnectInstance logs a session out
func (c *httpClient) DisconnectInstance(ctx context.Context, brokerID string, opts DisconnectOptions) error {
	_, err := c.do(ctx, "disconnect instance", http.MethodPost, instancePath(brokerID, "disconnect"), "", opts)
	return err
}

// DeleteInstance removes a session
func (c *httpClient) DeleteInstance(ctx context.Context, brokerID string, opts DisconnectOptions) error {
	path := instancePath(brokerID, "")
	if opts.Wipe {
		path += "?wipe=true"
	}
	_, err := c.do(ctx, "delete instance", http.MethodDelete, path, "", nil)
	return err
}

// GetQRCode returns the pairing QR code
func (c *httpClient) GetQRCode(ctx context.Context, brokerID string) (*QRCode, error) {
	resp, err := c.do(ctx, "get qr code", http.MethodGet, instancePath(brokerID, "qr"), "", nil)
	if err != nil {
		return nil, err
	}
	qr, err := ParseQRCode(resp.Body)
	if err != nil {
		return nil, &Error{Operation: "get qr code", StatusCode: resp.StatusCode, Err: err}
	}
	return qr, nil
}

// GetStatus returns the live status of a session
func (c *httpClient) GetStatus(ctx context.Context, brokerID string) (*Status, error) {
	resp, err := c.do(ctx, "get status", http.MethodGet, instancePath(brokerID, "status"), "", nil)
	if err != nil {
		return nil, err
	}
	st, err := ParseStatus(resp.Body)
	if err != nil {
		return nil, &Error{Operation: "get status", StatusCode: resp.StatusCode, Err: err}
	}
	return st, nil
}

func instancePath(brokerID, action string) string {
	p := "/instances/" + url.PathEscape(brokerID)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *httpClient) do(
	ctx context.Context,
	operation, method, path, tenantID string,
	body any,
) (*httpclient.Response, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}

	requestID := uuid.NewString()
	header := http.Header{}
	header.Set(headerAPIKey, c.apiKey)
	header.Set(headerRequestID, requestID)
	if tenantID != "" {
		header.Set(headerTenantID, tenantID)
	}

	resp, err := c.http.Do(ctx, httpclient.Request{
		Method:  method,
		URL:     c.baseURL + path,
		Header:  header,
		Body:    body,
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, c.classify(operation, requestID, err)
	}
	return resp, nil
}

// classify maps transport failures onto the broker error taxonomy
func (c *httpClient) classify(operation, requestID string, err error) error {
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		if id := httpErr.Header.Get(headerRequestID); id != "" {
			requestID = id
		}
		switch {
		case httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden:
			return &AuthRejectedError{Operation: operation, StatusCode: httpErr.StatusCode, RequestID: requestID}
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return &RateLimitedError{
				Operation:  operation,
				RetryAfter: parseRetryAfter(httpErr.Header.Get("Retry-After")),
				RequestID:  requestID,
			}
		}
		brokerErr := &Error{
			Operation:  operation,
			StatusCode: httpErr.StatusCode,
			RequestID:  requestID,
			Err:        err,
		}
		if gjson.ValidBytes(httpErr.Body) {
			body := gjson.ParseBytes(httpErr.Body)
			brokerErr.Code = firstString(body, []string{"error.code", "code"})
			brokerErr.Message = firstString(body, []string{"error.message", "message", "error"})
			if id := firstString(body, []string{"requestId", "request_id", "error.requestId"}); id != "" {
				brokerErr.RequestID = id
			}
		}
		return brokerErr
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{Operation: operation, Timeout: c.timeout, Err: err}
	}

	return &Error{Operation: operation, RequestID: requestID, Err: err}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		return time.Until(at).Round(time.Second)
	}
	return 0
}

var _ Client = (*httpClient)(nil)

// String implements fmt.Stringer without leaking the API key
func (c *httpClient) String() string {
	return fmt.Sprintf("broker(%s)", c.baseURL)
}
