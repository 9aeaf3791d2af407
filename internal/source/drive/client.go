package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/pollwatch/internal/source"
)

// resyncRequired is the API error code signalling that a stored delta
// cursor can no longer be replayed.
const resyncRequired = "resyncRequired"

// Client is a thin HTTP client for a Graph-style drive API. It handles
// Bearer token authentication, JSON decoding, retry with backoff on
// HTTP 429, and classification into the shared provider error taxonomy.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a new drive HTTP client. The baseURL is the API root
// (e.g. https://graph.example.com/v1.0); the token is used for Bearer
// authentication.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
	}
}

// Get performs an HTTP GET against a path under the API root and
// unmarshals the JSON response.
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	return c.getURL(ctx, c.baseURL+path, result)
}

// getURL performs an HTTP GET against an absolute URL (listing
// continuation links are absolute) and unmarshals the JSON response.
func (c *Client) getURL(ctx context.Context, url string, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &source.TransientError{Op: "GET " + url, Err: err}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return &source.TransientError{Op: "GET " + url, Err: readErr}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429) on GET %s", url)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return &source.AuthError{
				Provider: "drive",
				Message:  fmt.Sprintf("authentication failed (401) for %s", c.baseURL),
			}

		case resp.StatusCode == http.StatusGone:
			// The provider tells us the delta cursor is no longer
			// replayable; some deployments use the error code instead.
			return fmt.Errorf("delta listing expired: %w", source.ErrCursorInvalid)

		case resp.StatusCode >= 500:
			return &source.TransientError{
				Op:  "GET " + url,
				Err: fmt.Errorf("server error (%d)", resp.StatusCode),
			}

		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			var apiErr errorResponse
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Code != "" {
				if apiErr.Error.Code == resyncRequired {
					return fmt.Errorf(
						"%s: %w", apiErr.Error.Message, source.ErrCursorInvalid,
					)
				}
				return fmt.Errorf(
					"drive API error (%d) on GET %s: %s %s",
					resp.StatusCode, url, apiErr.Error.Code, apiErr.Error.Message,
				)
			}
			return fmt.Errorf(
				"unexpected status %d on GET %s: %s",
				resp.StatusCode, url, string(respBody),
			)
		}

		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from GET %s: %w", url, err)
		}

		return nil
	}

	return &source.TransientError{
		Op:  "GET " + url,
		Err: fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr),
	}
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
