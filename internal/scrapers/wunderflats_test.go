package scrapers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"flatwatch/internal/logger"
	"flatwatch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cardHTML(id, title, price string) string {
	return fmt.Sprintf(`
<div class="ListingsList-item">
  <a data-listing="%s" href="/en/furnished-apartment/%s">
    <img src="https://img.example.test/%s.jpg">
    <h3>%s</h3>
  </a>
  <div class="ListingPrice">
    <span class="ListingPrice-price">%s</span>
    <small class="ListingPrice-time">from 01.06.2025</small>
  </div>
  <div class="ListingInfo">
    <span class="info">3 rooms</span>
    <span class="info">2 people</span>
    <span class="info">85 m²</span>
  </div>
</div>`, id, id, id, title, price)
}

func pageHTML(cards ...string) string {
	return `<html><body><div class="ListingsList">` + strings.Join(cards, "\n") + `</div></body></html>`
}

// fakeSource serves canned pages by URL and records every request.
type fakeSource struct {
	pages map[string]string
	errs  map[string][]error
	calls []string
}

func (f *fakeSource) FetchPage(_ context.Context, pageURL string) ([]byte, error) {
	f.calls = append(f.calls, pageURL)
	if queue := f.errs[pageURL]; len(queue) > 0 {
		err := queue[0]
		f.errs[pageURL] = queue[1:]
		return nil, err
	}
	body, ok := f.pages[pageURL]
	if !ok {
		return []byte(pageHTML()), nil
	}
	return []byte(body), nil
}

func testConfig(maxPages int) WunderflatsConfig {
	return DefaultWunderflatsConfig().
		WithBaseURL("https://flats.example.test/en/furnished-apartments/berlin").
		WithQuery(SearchQuery{From: "2025-05-06", To: "2026-04-03", ScoreVariant: "A", BBox: "13.4,52.5,13.5,52.4", MinSize: 80}).
		WithMaxPages(maxPages).
		WithRetry(2, time.Millisecond)
}

func TestParseListings_Card(t *testing.T) {
	listings, err := ParseListings(strings.NewReader(pageHTML(cardHTML("abc123", "Sunny loft", "€1,250"))))
	require.NoError(t, err)
	require.Len(t, listings, 1)

	assert.Equal(t, model.Listing{
		ID:       "abc123",
		Title:    "Sunny loft",
		Price:    1250,
		Calendar: "01.06.2025",
		Rooms:    3,
		People:   2,
		Img:      "https://img.example.test/abc123.jpg",
		URL:      "/en/furnished-apartment/abc123",
		Size:     85,
	}, listings[0])
}

func TestParseListings_EmptyPage(t *testing.T) {
	listings, err := ParseListings(strings.NewReader(pageHTML()))
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestParseListings_MissingPrice(t *testing.T) {
	card := strings.Replace(cardHTML("x1", "No price", "€900"), `<span class="ListingPrice-price">€900</span>`, "", 1)

	_, err := ParseListings(strings.NewReader(pageHTML(card)))
	var pe *model.ParseError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "price", pe.Field)
}

func TestParseListings_WrongInfoCount(t *testing.T) {
	card := strings.Replace(cardHTML("x2", "Tiny", "€900"), `<span class="info">2 people</span>`, "", 1)

	_, err := ParseListings(strings.NewReader(pageHTML(card)))
	var pe *model.ParseError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "info", pe.Field)
}

func TestParseListings_BadPrice(t *testing.T) {
	_, err := ParseListings(strings.NewReader(pageHTML(cardHTML("x3", "Ask", "on request"))))
	var pe *model.ParseError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "price", pe.Field)
}

func TestParseNumber(t *testing.T) {
	cases := map[string]int{
		"€1,250":         1250,
		"€ 2,100 /month": 2100,
		"3 rooms":        3,
		"2 people":       2,
		"85 m²":          85,
	}
	for in, want := range cases {
		got, err := parseNumber("n", in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseNumber("n", "")
	assert.Error(t, err)
	_, err = parseNumber("n", "-4 rooms")
	assert.Error(t, err)
}

func TestPageURL(t *testing.T) {
	s := NewWunderflatsScraper(testConfig(5), &fakeSource{}, logger.NewMockLogger())

	u, err := url.Parse(s.PageURL(3))
	require.NoError(t, err)
	assert.Equal(t, "/en/furnished-apartments/berlin/3", u.Path)
	assert.Equal(t, "2025-05-06", u.Query().Get("from"))
	assert.Equal(t, "2026-04-03", u.Query().Get("to"))
	assert.Equal(t, "A", u.Query().Get("scoreVariant"))
	assert.Equal(t, "13.4,52.5,13.5,52.4", u.Query().Get("bbox"))
	assert.Equal(t, "80", u.Query().Get("minSize"))
}

func TestFetchAll_StopsAtFirstEmptyPage(t *testing.T) {
	src := &fakeSource{pages: map[string]string{}}
	s := NewWunderflatsScraper(testConfig(10), src, logger.NewMockLogger())
	src.pages[s.PageURL(1)] = pageHTML(cardHTML("a", "A", "€1,000"), cardHTML("b", "B", "€1,100"))
	src.pages[s.PageURL(2)] = pageHTML(cardHTML("c", "C", "€1,200"))
	src.pages[s.PageURL(3)] = pageHTML()
	src.pages[s.PageURL(4)] = pageHTML(cardHTML("d", "D", "€1,300"))

	snapshot, err := s.FetchAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, snapshot.IDs())
	assert.Equal(t, []string{s.PageURL(1), s.PageURL(2), s.PageURL(3)}, src.calls)
}

func TestFetchAll_PageLimit(t *testing.T) {
	src := &fakeSource{pages: map[string]string{}}
	s := NewWunderflatsScraper(testConfig(2), src, logger.NewMockLogger())
	for page := 1; page <= 5; page++ {
		src.pages[s.PageURL(page)] = pageHTML(cardHTML(fmt.Sprintf("id%d", page), "T", "€1"))
	}

	snapshot, err := s.FetchAll(context.Background())
	assert.Nil(t, snapshot)
	assert.ErrorIs(t, err, ErrPageLimit)
	assert.Equal(t, "parse", model.ErrorKind(err))
	assert.Len(t, src.calls, 2)
}

func TestFetchAll_RetriesServerErrors(t *testing.T) {
	src := &fakeSource{pages: map[string]string{}, errs: map[string][]error{}}
	s := NewWunderflatsScraper(testConfig(5), src, logger.NewMockLogger())
	src.pages[s.PageURL(1)] = pageHTML(cardHTML("a", "A", "€1,000"))
	src.errs[s.PageURL(1)] = []error{&model.TransportError{URL: s.PageURL(1), StatusCode: 503, Err: errors.New("unavailable")}}

	snapshot, err := s.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshot, 1)
	assert.Equal(t, []string{s.PageURL(1), s.PageURL(1), s.PageURL(2)}, src.calls)
}

func TestFetchAll_TransportErrorAborts(t *testing.T) {
	src := &fakeSource{pages: map[string]string{}, errs: map[string][]error{}}
	s := NewWunderflatsScraper(testConfig(5), src, logger.NewMockLogger())
	src.pages[s.PageURL(1)] = pageHTML(cardHTML("a", "A", "€1,000"))
	notFound := &model.TransportError{URL: s.PageURL(2), StatusCode: 404, Err: errors.New("not found")}
	src.errs[s.PageURL(2)] = []error{notFound, notFound}

	snapshot, err := s.FetchAll(context.Background())
	assert.Nil(t, snapshot)

	var te *model.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 404, te.StatusCode)
	// 4xx is not retried
	assert.Equal(t, []string{s.PageURL(1), s.PageURL(2)}, src.calls)
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryConfig{Attempts: 5, InitialBackoff: time.Hour}, nil, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetry_GivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{Attempts: 3, InitialBackoff: time.Millisecond}, nil, func() error {
		calls++
		return errors.New("fail")
	})
	assert.EqualError(t, err, "fail")
	assert.Equal(t, 3, calls)
}
