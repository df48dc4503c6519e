package fetch

import (
	"context"
	"fmt"
	"time"

	"nsemarket-backend/internal/components/telemetry"

	"github.com/chromedp/chromedp"
)

const report_browser_fetch = "browser.fetch"

type BrowserOptions struct {
	UserAgent string
	Timeout   time.Duration
	// ExecPath overrides the chrome binary chromedp looks for.
	ExecPath string
}

// BrowserFetcher renders pages in headless chrome and returns the final
// markup, it is what the visible table parser needs when the listing only
// exists after client side rendering.
type BrowserFetcher struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
	tel         telemetry.API
}

func NewBrowserFetcher(opts BrowserOptions, tel telemetry.API) *BrowserFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 45
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	return &BrowserFetcher{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		timeout:     opts.Timeout,
		tel:         telemetry.NewScopedAPI("fetch", tel),
	}
}

func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		b.tel.ReportDebug(fmt.Sprintf("chromedp: "+format, args...))
	}))
	defer cancelTab()

	timeoutCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var html string
	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		b.tel.ReportBroken(report_browser_fetch, err, url)
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	b.allocCancel()
}
