package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	liberrors "github.com/lepinkainen/libsearch/internal/errors"
)

func (c *Client) get(ctx context.Context, op, endpoint string) ([]byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, liberrors.NewNetworkError(op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, liberrors.NewNetworkError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(body))
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, liberrors.NewStatusError(op, resp.StatusCode,
				liberrors.NewRateLimitErrorWithRetry("aggregator rate limit exceeded", retryAfter(resp.Header.Get("Retry-After"))))
		}
		var cause error
		if msg != "" {
			cause = errors.New(msg)
		}
		return nil, liberrors.NewStatusError(op, resp.StatusCode, cause)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, liberrors.NewNetworkError(op, err)
	}
	return body, nil
}

// retryAfter parses the delta-seconds form of Retry-After.
func retryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
