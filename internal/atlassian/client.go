// Package atlassian drives the vendor backup jobs for Confluence and Jira.
package atlassian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"atlasbackup/internal/apperr"
)

// Client is an authenticated session against one Atlassian site
type Client struct {
	host      string
	email     string
	token     string
	userAgent string
	client    *http.Client
}

// ClientOption is a function that modifies a Client
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithUserAgent sets the User-Agent header for requests
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// NewClient creates a session for host (e.g. "acme.atlassian.net") using HTTP Basic auth
func NewClient(host, email, token string, opts ...ClientOption) *Client {
	c := &Client{
		host:      host,
		email:     email,
		token:     token,
		userAgent: "atlasbackup",
		client:    http.DefaultClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Host returns the site host name
func (c *Client) Host() string {
	return c.host
}

// URL builds an absolute https URL on the site
func (c *Client) URL(path string) string {
	return fmt.Sprintf("https://%s%s", c.host, path)
}

// do sends an authenticated request. Transport failures come back as
// KindTransport; the response is returned as-is for the caller to check.
func (c *Client) do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.New(apperr.KindCanceled, method+" "+url, ctx.Err())
		}
		return nil, apperr.New(apperr.KindTransport, method+" "+url, err)
	}

	return resp, nil
}

// doJSON sends a request and decodes a 2xx JSON body into v (when v is non-nil).
// Non-2xx responses become an *apperr.Error of the given kind.
func (c *Client) doJSON(ctx context.Context, kind apperr.Kind, op, method, url string, body, v any) error {
	resp, err := c.do(ctx, method, url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.FromResponse(kind, op, resp)
	}

	if v == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.New(apperr.KindTransport, op, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &apperr.Error{
			Kind:       apperr.KindMalformedStatus,
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       data,
			Err:        err,
		}
	}

	return nil
}
