package scrapers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"flatwatch/internal/logger"
	"flatwatch/internal/model"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BrowserSource renders pages in headless Chrome, for when the listing grid is
// only filled in client-side.
type BrowserSource struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
	logger      logger.Logger
}

// NewBrowserSource starts a Chrome allocator. Close must be called to stop it.
func NewBrowserSource(headless bool, timeout time.Duration, logger logger.Logger) *BrowserSource {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &BrowserSource{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		timeout:     timeout,
		logger:      logger,
	}
}

// FetchPage navigates a fresh tab to pageURL and returns the rendered document.
// The document's HTTP status is checked the same way HTTPSource checks it.
func (b *BrowserSource) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.allocCtx)
	defer tabCancel()

	runCtx, cancel := context.WithTimeout(tabCtx, b.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var status atomic.Int64
	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Type == network.ResourceTypeDocument {
			status.Store(resp.Response.Status)
		}
	})

	var html string
	err := chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}
		return nil, &model.TransportError{URL: pageURL, StatusCode: int(status.Load()), Err: fmt.Errorf("chromedp: %w", err)}
	}

	code := int(status.Load())
	if err := checkDocumentStatus(pageURL, code); err != nil {
		return nil, err
	}

	b.logger.Debugf("Rendered %s: status %d, %d bytes", pageURL, code, len(html))
	return []byte(html), nil
}

// checkDocumentStatus applies the 2xx policy to the status captured from the
// document response. No captured status at all is a failure too.
func checkDocumentStatus(pageURL string, code int) error {
	if code == 0 {
		return &model.TransportError{URL: pageURL, Err: errors.New("no document response status")}
	}
	if code < 200 || code > 299 {
		return &model.TransportError{URL: pageURL, StatusCode: code, Err: errors.New("unexpected document status")}
	}
	return nil
}

// Close shuts the browser down.
func (b *BrowserSource) Close() {
	b.allocCancel()
}
