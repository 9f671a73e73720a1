package envapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

const (
	// DefaultBaseURL is the hub serving the team environment API
	DefaultBaseURL = "https://hub.hackload.kz"

	apiKeyHeader    = "X-API-Key"
	requestIDHeader = "X-Request-ID"

	defaultTimeout      = 10 * time.Second
	defaultRetryWaitMin = 500 * time.Millisecond
	defaultRetryWaitMax = 5 * time.Second
)

// ErrMissingAPIKey is returned when the client is built without a service key
var ErrMissingAPIKey = errors.New("service API key is required")

// Options configures the service API client
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RetryMax retries 429 and 5xx responses and transient network errors. Zero disables retries.
	RetryMax int
	// HTTPClient overrides the underlying client. Its Timeout is kept as is.
	HTTPClient *http.Client
	Logger     logr.Logger
	// HTTPLogger receives retryablehttp request tracing
	HTTPLogger retryablehttp.LeveledLogger
}

// Client talks to the team environment service API
type Client struct {
	client  *retryablehttp.Client
	baseURL *url.URL
	apiKey  string
	logger  logr.Logger
}

// NewClient returns a client for the service API at opts.BaseURL
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	baseURL, err := url.ParseRequestURI(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service base URL %s: %w", base, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Transport: cleanhttp.DefaultPooledTransport(),
			Timeout:   timeout,
		}
	}

	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	c := &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(opts.APIKey),
		logger:  logger,
	}

	c.client = &retryablehttp.Client{
		HTTPClient:   httpClient,
		Logger:       opts.HTTPLogger,
		RetryWaitMin: defaultRetryWaitMin,
		RetryWaitMax: defaultRetryWaitMax,
		RetryMax:     opts.RetryMax,
		CheckRetry:   retryHTTPCheck,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	return c, nil
}

// BaseURL returns the service root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// retryHTTPCheck retries rate limits, server errors and transient network failures
func retryHTTPCheck(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "connection refused") ||
			strings.Contains(msg, "connection reset") ||
			strings.Contains(msg, "i/o timeout") ||
			strings.Contains(msg, "unexpected EOF") ||
			strings.Contains(msg, "TLS handshake timeout") {
			return true, nil
		}
		return false, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true, nil
	}

	return false, nil
}

// newRequest builds a request for path relative to the service root.
// Path segments must already be escaped.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*retryablehttp.Request, error) {
	u := *c.baseURL
	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return nil, err
	}
	u.RawPath = c.baseURL.Path + path
	u.Path = c.baseURL.Path + unescaped
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s %s: %w", method, u.String(), err)
	}

	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set(requestIDHeader, uuid.NewString())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// do sends req and decodes a JSON response into out when out is not nil.
// Any non-2xx status is returned as an *APIError.
func (c *Client) do(req *retryablehttp.Request, out any) error {
	c.logger.V(2).Info("request", "method", req.Method, "url", req.URL.String(), "request_id", req.Header.Get(requestIDHeader))

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response of %s %s: %w", req.Method, req.URL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response of %s %s: %w", req.Method, req.URL, err)
	}
	return nil
}
