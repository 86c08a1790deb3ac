// Package serper provides a client for the Serper.dev Google News search API.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Serper news search operations.
type Client interface {
	// SearchNews runs a news search restricted to a date range and returns
	// the raw results in provider order.
	SearchNews(ctx context.Context, query, dateFrom, dateTo string) ([]NewsResult, error)
}

// NewsResult is a single entry from the Serper news endpoint.
type NewsResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Date    string `json:"date"`
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// newsResponse is the parsed Serper API response.
type newsResponse struct {
	News []NewsResult `json:"news"`
}

// searchPayload is the request body for the news endpoint.
type searchPayload struct {
	Q   string `json:"q"`
	GL  string `json:"gl,omitempty"`
	Num int    `json:"num,omitempty"`
}

// Option configures the Serper client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithCountry sets the gl country code sent with every search.
func WithCountry(code string) Option {
	return func(c *httpClient) {
		c.country = code
	}
}

// WithNumResults sets the number of results requested per query.
func WithNumResults(n int) Option {
	return func(c *httpClient) {
		c.numResults = n
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey     string
	baseURL    string
	country    string
	numResults int
	http       *http.Client
}

// NewClient creates a new Serper news search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:     apiKey,
		baseURL:    "https://google.serper.dev",
		country:    "gh",
		numResults: 20,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503). Returns the response body and
// status code on success, or the last error after exhausting retries.
func (c *httpClient) retryDo(ctx context.Context, method, url string, payload []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return nil, 0, eris.Wrap(err, "serper: create request")
		}
		req.Header.Set("X-API-KEY", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "serper: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("serper: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) SearchNews(ctx context.Context, query, dateFrom, dateTo string) ([]NewsResult, error) {
	payload, err := json.Marshal(searchPayload{
		Q:   fmt.Sprintf("%s after:%s before:%s", query, dateFrom, dateTo),
		GL:  c.country,
		Num: c.numResults,
	})
	if err != nil {
		return nil, eris.Wrap(err, "serper: marshal payload")
	}

	body, statusCode, err := c.retryDo(ctx, http.MethodPost, c.baseURL+"/news", payload)
	if err != nil {
		return nil, eris.Wrap(err, "serper: news request failed")
	}

	if statusCode != http.StatusOK {
		return nil, eris.Errorf("serper: unexpected status %d: %s", statusCode, string(body))
	}

	var result newsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "serper: unmarshal response")
	}

	return result.News, nil
}
