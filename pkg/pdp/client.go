// Package pdp is the HTTP client for the local policy decision point
// sidecar. The PDP is an opaque oracle: the client serializes a decision
// query, posts it to /allowed and returns the boolean verdict verbatim,
// performing no policy interpretation of its own.
package pdp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

//go:generate mockgen -destination=mocks/mock_decider.go -package=mocks -source=client.go Decider

// ErrUnavailable wraps any transport-level failure talking to the PDP:
// connection errors, timeouts, unexpected status codes and malformed
// responses. Callers translate it into their fail policy.
var ErrUnavailable = errors.New("pdp unavailable")

// Decider answers decision queries. It is the seam between enforcement and
// the PDP transport, mockable in tests.
type Decider interface {
	// Allowed reports the PDP's verdict for the query.
	Allowed(ctx context.Context, query *Query) (bool, error)
}

const (
	defaultTimeout       = 5 * time.Second
	defaultRetryInterval = 100 * time.Millisecond
)

// Client talks to a PDP sidecar over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxTries   uint
	retryWait  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout sets the per-request timeout. Zero keeps the default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetry enables a single retry on transient failures, waiting the given
// interval between attempts. Zero keeps the default interval. Retries stay
// bounded: there is never more than one.
func WithRetry(interval time.Duration) Option {
	return func(c *Client) {
		c.maxTries = 2
		if interval > 0 {
			c.retryWait = interval
		}
	}
}

// NewClient creates a PDP client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxTries:   1,
		retryWait:  defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Allowed posts the query to the PDP decision endpoint and returns its
// verdict verbatim. A 5xx response or connection error is retried once when
// retry is enabled; 4xx responses and malformed bodies are not retried.
// All failures are reported wrapped in ErrUnavailable.
func (c *Client) Allowed(ctx context.Context, query *Query) (bool, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return false, fmt.Errorf("failed to encode decision query: %w", err)
	}

	url := c.baseURL + "/allowed"
	operation := func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return false, backoff.Permanent(err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return false, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			httpErr := NewHTTPError(resp.StatusCode, url, "decision endpoint returned an error")
			if resp.StatusCode >= http.StatusInternalServerError {
				return false, httpErr
			}
			return false, backoff.Permanent(httpErr)
		}

		var decoded allowedResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return false, backoff.Permanent(fmt.Errorf("failed to decode decision response: %w", err))
		}
		return decoded.Allow, nil
	}

	allowed, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryWait)),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return allowed, nil
}

// UpdatePolicy asks the PDP to refetch its policy from the cloud.
func (c *Client) UpdatePolicy(ctx context.Context) error {
	return c.post(ctx, "/update_policy")
}

// UpdatePolicyData asks the PDP to refetch its policy data from the cloud.
func (c *Client) UpdatePolicyData(ctx context.Context) error {
	return c.post(ctx, "/update_policy_data")
}

func (c *Client) post(ctx context.Context, path string) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %w", ErrUnavailable, NewHTTPError(resp.StatusCode, url, "unexpected status"))
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
