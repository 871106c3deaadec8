package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const maxErrorBody = 64 << 10

// Client calls the invoicing REST API with the session's bearer token.
type Client struct {
	baseURL     *url.URL
	tokens      TokenGetter
	tokenSource oauth2.TokenSource
	base        http.RoundTripper
	timeout     time.Duration
	userAgent   string
	logger      zerolog.Logger
	httpClient  *http.Client
}

type Option func(*Client)

// WithTransport sets the round tripper underneath the bearer handling.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithTokenSource makes the client require a token: requests are authorised through
// oauth2.Transport and fail when ts has no token, instead of being sent anonymously.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.tokenSource = ts
	}
}

// NewClient returns a client for the API rooted at baseURL. tokens may be nil when
// WithTokenSource is given.
func NewClient(baseURL string, tokens TokenGetter, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[apiclient.NewClient] base url is required")
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "[apiclient.NewClient] invalid base url")
	}

	c := &Client{
		baseURL:   u,
		tokens:    tokens,
		base:      http.DefaultTransport,
		timeout:   30 * time.Second,
		userAgent: "go-invoice-session/1.0",
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}

	var transport http.RoundTripper
	switch {
	case c.tokenSource != nil:
		transport = &oauth2.Transport{Source: c.tokenSource, Base: c.base}
	case c.tokens != nil:
		transport = &BearerTransport{Tokens: c.tokens, Base: c.base}
	default:
		return nil, errors.New("[apiclient.NewClient] a token getter or token source is required")
	}
	c.httpClient = &http.Client{Transport: transport, Timeout: c.timeout}
	return c, nil
}

func (c *Client) GetBusiness(ctx context.Context) (*Business, error) {
	var b Business
	if err := c.Do(ctx, http.MethodGet, "business", nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) ListCustomers(ctx context.Context) ([]Customer, error) {
	var customers []Customer
	if err := c.Do(ctx, http.MethodGet, "customers", nil, &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

func (c *Client) ListInvoices(ctx context.Context) ([]Invoice, error) {
	var invoices []Invoice
	if err := c.Do(ctx, http.MethodGet, "invoices", nil, &invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (c *Client) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	if id == "" {
		return nil, errors.New("[Client.GetInvoice] invoice id is required")
	}
	var inv Invoice
	if err := c.Do(ctx, http.MethodGet, "invoices/"+url.PathEscape(id), nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Do sends body as JSON to path, relative to the base URL, and decodes the response into out
// when out is not nil. A non-2xx response is returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "Client.Do json.Marshal")
		}
		reqBody = bytes.NewReader(payload)
	}

	target := c.baseURL.JoinPath(strings.TrimPrefix(path, "/"))
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return errors.Wrapf(err, "error creating request %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "error invoking API")
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", target.Path).
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(respBody, apiErr)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "error unmarshaling response body")
	}
	return nil
}
