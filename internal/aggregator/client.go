// Package aggregator is the typed HTTP boundary to the Unitrad search
// aggregator, which fans a search out to many library catalogs and hands
// back partial results plus a polling session.
package aggregator

import (
	"net/http"
	"strings"
	"time"

	"github.com/lepinkainen/libsearch/internal/ratelimit"
)

const (
	defaultBaseURL       = "https://unitrad.calil.jp/v1"
	defaultRegion        = "gk-2004103-auf08"
	defaultRatePerSecond = 4
	defaultTimeout       = 15 * time.Second
	maxBodyBytes         = 8 << 20
)

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to the aggregator's /search and /polling endpoints. It does
// not retry and does not merge; each call is exactly one request.
type Client struct {
	baseURL     string
	region      string
	httpClient  HTTPDoer
	rateLimiter *ratelimit.Limiter
}

// NewClient creates a new aggregator client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:     defaultBaseURL,
		region:      defaultRegion,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		rateLimiter: ratelimit.New("Unitrad", defaultRatePerSecond),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithBaseURL sets a custom base URL for the aggregator API.
func WithBaseURL(base string) Option {
	return func(client *Client) {
		if base != "" {
			client.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithRegion sets the catalog region sent with every search.
func WithRegion(region string) Option {
	return func(client *Client) {
		if region != "" {
			client.region = region
		}
	}
}

// WithRateLimiter sets the rate limiter. A nil limiter disables limiting.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(client *Client) {
		client.rateLimiter = limiter
	}
}

// Region returns the catalog region searches are scoped to.
func (c *Client) Region() string {
	return c.region
}
