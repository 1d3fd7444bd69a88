package scrapers

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"flatwatch/internal/logger"
	"flatwatch/internal/model"

	"github.com/andybalholm/brotli"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36"

// maxPageBytes caps how much of a response body is read.
const maxPageBytes = 16 << 20

// PageSource returns the HTML of one search results page.
type PageSource interface {
	FetchPage(ctx context.Context, pageURL string) ([]byte, error)
}

// HTTPSource fetches pages with a plain HTTP client.
type HTTPSource struct {
	client *http.Client
	logger logger.Logger
}

// NewHTTPSource builds an HTTPSource whose requests time out after timeout.
func NewHTTPSource(timeout time.Duration, logger logger.Logger) *HTTPSource {
	return &HTTPSource{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:              http.ProxyFromEnvironment,
				DisableCompression: true, // Accept-Encoding is set and decoded by hand
			},
		},
		logger: logger,
	}
}

// FetchPage performs a GET and returns the decoded body.
// Transport failures and any non-2xx status come back as *model.TransportError.
func (s *HTTPSource) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &model.TransportError{URL: pageURL, Err: fmt.Errorf("build request: %w", err)}
	}

	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Accept-Language", "en-US,en;q=0.7")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &model.TransportError{URL: pageURL, Err: err}
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			s.logger.Errorf("Failed to close response body: %v", err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.TransportError{
			URL:        pageURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var reader io.Reader
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, &model.TransportError{URL: pageURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("gzip reader: %w", err)}
		}
		defer gzReader.Close()
		reader = gzReader
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		flateReader := flate.NewReader(resp.Body)
		defer flateReader.Close()
		reader = flateReader
	default:
		reader = resp.Body
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxPageBytes))
	if err != nil {
		return nil, &model.TransportError{URL: pageURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	s.logger.Debugf("GET %s: %d, %d bytes", pageURL, resp.StatusCode, len(data))
	return data, nil
}
