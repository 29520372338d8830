// Package shopify is a small Admin GraphQL API client covering order export
// and metaobject persistence.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/upsell-cli/internal/resilience"
)

const (
	defaultAPIVersion = "2025-07"

	// Query cost points below which the client pauses until the bucket
	// refills to throttleTarget.
	throttleFloor  = 20.0
	throttleTarget = 50.0
)

// Option configures the client.
type Option func(*Client)

// WithAPIVersion overrides the Admin API version.
func WithAPIVersion(v string) Option {
	return func(c *Client) {
		if v != "" {
			c.apiVersion = v
		}
	}
}

// WithBaseURL replaces https://{shop} as the endpoint origin.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit paces requests to rps requests per second. Zero disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// Client talks to one shop's Admin GraphQL endpoint.
type Client struct {
	shop       string
	token      string
	apiVersion string
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewClient creates a client for shop (e.g. "acme.myshopify.com").
func NewClient(shop, token string, opts ...Option) *Client {
	c := &Client{
		shop:       shop,
		token:      token,
		apiVersion: defaultAPIVersion,
		baseURL:    "https://" + shop,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("shopify", "graphql")
	}
	return c
}

// Shop returns the shop domain the client is bound to.
func (c *Client) Shop() string {
	return c.shop
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/admin/api/%s/graphql.json", c.baseURL, c.apiVersion)
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     []graphQLError  `json:"errors"`
	Extensions *extensions     `json:"extensions"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type extensions struct {
	Cost struct {
		RequestedQueryCost float64 `json:"requestedQueryCost"`
		ActualQueryCost    float64 `json:"actualQueryCost"`
		ThrottleStatus     struct {
			MaximumAvailable   float64 `json:"maximumAvailable"`
			CurrentlyAvailable float64 `json:"currentlyAvailable"`
			RestoreRate        float64 `json:"restoreRate"`
		} `json:"throttleStatus"`
	} `json:"cost"`
}

// Do executes a GraphQL document and decodes the data object into out. HTTP
// 429/5xx responses and THROTTLED errors are retried; other GraphQL errors
// are returned as *GraphQLError.
func (c *Client) Do(ctx context.Context, query string, vars map[string]any, out any) error {
	resp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*graphQLResponse, error) {
		return c.post(ctx, query, vars)
	})
	if err != nil {
		return err
	}

	if wait := throttleWait(resp.Extensions); wait > 0 {
		zap.L().Debug("shopify: throttle wait",
			zap.String("shop", c.shop),
			zap.Duration("wait", wait),
		)
		if err := sleepCtx(ctx, wait); err != nil {
			return eris.Wrap(err, "shopify: throttle wait")
		}
	}

	if len(resp.Errors) > 0 {
		return newGraphQLError(resp.Errors)
	}
	if out == nil {
		return nil
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return eris.New("shopify: response has no data")
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return eris.Wrap(err, "shopify: decode data")
	}
	return nil
}

func (c *Client) post(ctx context.Context, query string, vars map[string]any) (*graphQLResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "shopify: rate limit wait")
		}
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, eris.Wrap(err, "shopify: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "shopify: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "shopify: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "shopify: read response")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("shopify: unexpected status %d: %s", resp.StatusCode, truncate(string(respBody), 512))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode).
				WithRetryAfter(resilience.ParseRetryAfter(resp.Header.Get("Retry-After")))
		}
		return nil, statusErr
	}

	var out graphQLResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, eris.Wrap(err, "shopify: unmarshal response")
	}
	for _, e := range out.Errors {
		if e.Extensions.Code == "THROTTLED" {
			return nil, resilience.NewTransientError(newGraphQLError(out.Errors), http.StatusTooManyRequests)
		}
	}
	return &out, nil
}

// throttleWait returns how long to pause so the cost bucket refills to
// throttleTarget points. Zero when the bucket is healthy or no hints are present.
func throttleWait(ext *extensions) time.Duration {
	if ext == nil {
		return 0
	}
	status := ext.Cost.ThrottleStatus
	if status.RestoreRate <= 0 || status.CurrentlyAvailable >= throttleFloor {
		return 0
	}
	secs := (throttleTarget - status.CurrentlyAvailable) / status.RestoreRate
	return time.Duration(secs * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
