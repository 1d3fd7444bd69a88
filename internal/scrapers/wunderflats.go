package scrapers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"flatwatch/internal/logger"
	"flatwatch/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the search results markup.
const (
	cardSelector     = "div.ListingsList-item"
	anchorSelector   = "a[data-listing]"
	titleSelector    = "h3"
	priceSelector    = "span.ListingPrice-price"
	calendarSelector = "small.ListingPrice-time"
	imageSelector    = "img"
	infoSelector     = "span.info"
)

// WunderflatsScraper walks the paginated search and collects every listing card.
type WunderflatsScraper struct {
	cfg    WunderflatsConfig
	source PageSource
	logger logger.Logger
}

// NewWunderflatsScraper constructs a new WunderflatsScraper.
func NewWunderflatsScraper(cfg WunderflatsConfig, source PageSource, logger logger.Logger) *WunderflatsScraper {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultWunderflatsConfig().MaxPages
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = 1
	}
	return &WunderflatsScraper{
		cfg:    cfg,
		source: source,
		logger: logger,
	}
}

// FetchAll requests pages 1, 2, 3, ... one at a time until a page has no
// listing cards, and returns every parsed listing keyed by ID.
// Hitting MaxPages first is an error, so a changed page layout never yields a
// silently truncated snapshot.
func (s *WunderflatsScraper) FetchAll(ctx context.Context) (model.Snapshot, error) {
	s.logger.Infof("Starting Wunderflats scraping (max %d pages)...", s.cfg.MaxPages)

	snapshot := make(model.Snapshot)
	for page := 1; page <= s.cfg.MaxPages; page++ {
		listings, err := s.fetchPage(ctx, page)
		if errors.Is(err, ErrNoMoreListings) {
			s.logger.Infof("No listings on page %d, stopping. Total listings: %d", page, len(snapshot))
			return snapshot, nil
		}
		if err != nil {
			s.logger.Errorf("Page %d failed: %v", page, err)
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		for _, l := range listings {
			if _, dup := snapshot[l.ID]; dup {
				s.logger.Debugf("Listing %s seen again on page %d", l.ID, page)
			}
			snapshot[l.ID] = l
		}
		s.logger.Infof("Successfully processed page %d, listings: %d", page, len(listings))
	}

	return nil, &model.ParseError{
		Field: "pagination",
		Err:   fmt.Errorf("%w: %d pages without an empty page", ErrPageLimit, s.cfg.MaxPages),
	}
}

// PageURL builds the URL of one results page: {BaseURL}/{page}?{query}.
func (s *WunderflatsScraper) PageURL(page int) string {
	u := strings.TrimRight(s.cfg.BaseURL, "/") + "/" + strconv.Itoa(page)
	if q := s.cfg.Query.Values().Encode(); q != "" {
		u += "?" + q
	}
	return u
}

func (s *WunderflatsScraper) fetchPage(ctx context.Context, page int) ([]model.Listing, error) {
	pageURL := s.PageURL(page)
	s.logger.Debugf("Fetching page %d: %s", page, pageURL)

	var body []byte
	err := Retry(ctx, s.cfg.Retry, isRetryable, func() error {
		b, err := s.source.FetchPage(ctx, pageURL)
		if err != nil {
			s.logger.Warnf("Fetch failed for page %d: %v", page, err)
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	listings, err := ParseListings(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 {
		return nil, ErrNoMoreListings
	}
	return listings, nil
}

// ParseListings extracts every listing card from a results page.
// A card that lacks an expected element fails the whole page with *model.ParseError.
func ParseListings(r io.Reader) ([]model.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &model.ParseError{Field: "document", Err: err}
	}

	cards := doc.Find(cardSelector)
	listings := make([]model.Listing, 0, cards.Length())
	var parseErr error
	cards.EachWithBreak(func(i int, card *goquery.Selection) bool {
		l, err := parseCard(card)
		if err != nil {
			parseErr = fmt.Errorf("card %d: %w", i+1, err)
			return false
		}
		listings = append(listings, l)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return listings, nil
}

func parseCard(card *goquery.Selection) (model.Listing, error) {
	anchor := card.Find(anchorSelector).First()
	if anchor.Length() == 0 {
		return model.Listing{}, missing("id", anchorSelector)
	}
	id := strings.TrimSpace(anchor.AttrOr("data-listing", ""))
	href, ok := anchor.Attr("href")
	if !ok {
		return model.Listing{}, &model.ParseError{Field: "url", Err: fmt.Errorf("listing %s anchor has no href", id)}
	}

	title, err := requiredText(card, titleSelector, "title")
	if err != nil {
		return model.Listing{}, err
	}
	priceText, err := requiredText(card, priceSelector, "price")
	if err != nil {
		return model.Listing{}, err
	}
	price, err := parseNumber("price", priceText)
	if err != nil {
		return model.Listing{}, err
	}
	calendarText, err := requiredText(card, calendarSelector, "calendar")
	if err != nil {
		return model.Listing{}, err
	}
	calendar, err := calendarToken(calendarText)
	if err != nil {
		return model.Listing{}, err
	}

	img := card.Find(imageSelector).First()
	if img.Length() == 0 {
		return model.Listing{}, missing("img", imageSelector)
	}
	src, _ := img.Attr("src")

	info := card.Find(infoSelector)
	if info.Length() != 3 {
		return model.Listing{}, &model.ParseError{Field: "info", Err: fmt.Errorf("expected 3 %q elements, found %d", infoSelector, info.Length())}
	}
	rooms, err := parseNumber("rooms", info.Eq(0).Text())
	if err != nil {
		return model.Listing{}, err
	}
	people, err := parseNumber("people", info.Eq(1).Text())
	if err != nil {
		return model.Listing{}, err
	}
	size, err := parseNumber("size", info.Eq(2).Text())
	if err != nil {
		return model.Listing{}, err
	}

	l := model.Listing{
		ID:       id,
		Title:    title,
		Price:    price,
		Calendar: calendar,
		Rooms:    rooms,
		People:   people,
		Img:      strings.TrimSpace(src),
		URL:      strings.TrimSpace(href),
		Size:     size,
	}
	if err := l.Validate(); err != nil {
		return model.Listing{}, err
	}
	return l, nil
}

func requiredText(card *goquery.Selection, selector, field string) (string, error) {
	sel := card.Find(selector).First()
	if sel.Length() == 0 {
		return "", missing(field, selector)
	}
	return strings.TrimSpace(sel.Text()), nil
}

// calendarToken picks the date out of texts like "from 01.06.2025".
func calendarToken(text string) (string, error) {
	tokens := strings.Fields(text)
	switch len(tokens) {
	case 0:
		return "", &model.ParseError{Field: "calendar", Err: errors.New("empty availability text")}
	case 1:
		return tokens[0], nil
	default:
		return tokens[1], nil
	}
}

func missing(field, selector string) error {
	return &model.ParseError{Field: field, Err: fmt.Errorf("no element matches %q", selector)}
}
