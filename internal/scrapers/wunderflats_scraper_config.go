package scrapers

import (
	"net/url"
	"strconv"
	"time"
)

// WunderflatsConfig holds Wunderflats scraper configuration.
type WunderflatsConfig struct {
	BaseURL  string      // search endpoint, page number is appended as a path segment
	Query    SearchQuery // fixed query parameters of the search
	MaxPages int         // upper limit for pages
	Retry    RetryConfig // retry config
}

// SearchQuery is the fixed filter set sent with every page request.
type SearchQuery struct {
	From         string // e.g. "2025-05-06"
	To           string
	ScoreVariant string
	BBox         string // "lon1,lat1,lon2,lat2"
	MinSize      int    // square meters, 0 disables the filter
}

// RetryConfig holds options for retry logic.
type RetryConfig struct {
	Attempts       int           // number of retry attempts
	InitialBackoff time.Duration // initial backoff duration between retries
}

// Values encodes the query the way the site expects it.
func (q SearchQuery) Values() url.Values {
	v := url.Values{}
	if q.From != "" {
		v.Set("from", q.From)
	}
	if q.To != "" {
		v.Set("to", q.To)
	}
	if q.ScoreVariant != "" {
		v.Set("scoreVariant", q.ScoreVariant)
	}
	if q.BBox != "" {
		v.Set("bbox", q.BBox)
	}
	if q.MinSize > 0 {
		v.Set("minSize", strconv.Itoa(q.MinSize))
	}
	return v
}

// DefaultWunderflatsConfig returns a WunderflatsConfig with sensible defaults
func DefaultWunderflatsConfig() WunderflatsConfig {
	return WunderflatsConfig{
		BaseURL: "https://wunderflats.com/en/furnished-apartments/berlin",
		Query: SearchQuery{
			ScoreVariant: "A",
			MinSize:      80,
		},
		MaxPages: 50, // a Berlin search rarely goes past 20 pages
		Retry: RetryConfig{
			Attempts:       3,
			InitialBackoff: 2 * time.Second,
		},
	}
}

// WithBaseURL sets the search endpoint and returns the config for chaining
func (c WunderflatsConfig) WithBaseURL(baseURL string) WunderflatsConfig {
	c.BaseURL = baseURL
	return c
}

// WithQuery sets the search filters and returns the config for chaining
func (c WunderflatsConfig) WithQuery(q SearchQuery) WunderflatsConfig {
	c.Query = q
	return c
}

// WithMaxPages sets the maximum number of pages to scrape
func (c WunderflatsConfig) WithMaxPages(pages int) WunderflatsConfig {
	c.MaxPages = pages
	return c
}

// WithRetry sets the retry configuration
func (c WunderflatsConfig) WithRetry(attempts int, initialBackoff time.Duration) WunderflatsConfig {
	c.Retry = RetryConfig{
		Attempts:       attempts,
		InitialBackoff: initialBackoff,
	}
	return c
}
