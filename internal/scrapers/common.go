package scrapers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"flatwatch/internal/model"
)

// ErrNoMoreListings signals that a page had no listing cards and pagination is over.
var ErrNoMoreListings = errors.New("no more listings")

// ErrPageLimit is returned when MaxPages pages were read without reaching an empty one.
var ErrPageLimit = errors.New("page limit reached")

// Retry calls fn up to cfg.Attempts times with exponential backoff.
// Errors for which retryable returns false are returned immediately.
func Retry(ctx context.Context, cfg RetryConfig, retryable func(error) bool, fn func() error) error {
	backoff := cfg.InitialBackoff
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt == cfg.Attempts || (retryable != nil && !retryable(err)) {
			return err
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// isRetryable reports whether a failed page request is worth repeating:
// transport failures without a response, 429 and 5xx.
func isRetryable(err error) bool {
	var te *model.TransportError
	if !errors.As(err, &te) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return te.StatusCode == 0 || te.StatusCode == 429 || te.StatusCode >= 500
}

var numberCleaner = strings.NewReplacer("€", "", ",", "")

// parseNumber strips currency symbols and thousands separators and converts the
// first whitespace-delimited token: "€1,250" -> 1250, "85 m²" -> 85.
func parseNumber(field, raw string) (int, error) {
	tokens := strings.Fields(numberCleaner.Replace(raw))
	if len(tokens) == 0 {
		return 0, &model.ParseError{Field: field, Err: fmt.Errorf("no number in %q", raw)}
	}
	n, err := strconv.Atoi(tokens[0])
	if err != nil {
		return 0, &model.ParseError{Field: field, Err: fmt.Errorf("convert %q: %w", raw, err)}
	}
	if n < 0 {
		return 0, &model.ParseError{Field: field, Err: fmt.Errorf("negative value in %q", raw)}
	}
	return n, nil
}
