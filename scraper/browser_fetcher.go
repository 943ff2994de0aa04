package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"

	"rental_scrooper/config"
	"rental_scrooper/httputil"
	"rental_scrooper/logging"
	"rental_scrooper/models"
)

// BrowserFetcher renders listing pages in headless Chromium for sites that
// only serve the list markup to a real browser.
type BrowserFetcher struct {
	site  *config.SiteConfig
	http  config.HTTPConfig
	retry RetryPolicy

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

func NewBrowserFetcher(site *config.SiteConfig, httpCfg config.HTTPConfig, retry RetryPolicy) *BrowserFetcher {
	return &BrowserFetcher{
		site:  site,
		http:  httpCfg,
		retry: retry,
	}
}

func (f *BrowserFetcher) start() error {
	if f.page != nil {
		return nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	}
	if f.http.ProxyURL != "" {
		launch.Proxy = &playwright.Proxy{Server: f.http.ProxyURL}
	}
	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		pw.Stop()
		return fmt.Errorf("launch chromium: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(f.http.UserAgent),
		Locale:    playwright.String("zh-CN"),
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return fmt.Errorf("new context: %w", err)
	}

	if cookies := f.cookies(); len(cookies) > 0 {
		if err := bctx.AddCookies(cookies); err != nil {
			logging.Warnf("%s: could not set browser cookies: %v", f.site.ID, err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		pw.Stop()
		return fmt.Errorf("new page: %w", err)
	}

	f.pw, f.browser, f.context, f.page = pw, browser, bctx, page
	return nil
}

func (f *BrowserFetcher) cookies() []playwright.OptionalCookie {
	if f.http.CookieString == "" {
		return nil
	}
	u, err := url.Parse(f.site.PageURL(1))
	if err != nil {
		return nil
	}

	// Share cookies with every subdomain of the portal
	domain := u.Hostname()
	if parts := strings.Split(domain, "."); len(parts) > 2 {
		domain = "." + strings.Join(parts[len(parts)-2:], ".")
	}

	var out []playwright.OptionalCookie
	for _, c := range httputil.ParseCookies(f.http.CookieString) {
		out = append(out, playwright.OptionalCookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: playwright.String(domain),
			Path:   playwright.String("/"),
		})
	}
	return out
}

func (f *BrowserFetcher) FetchPage(ctx context.Context, pageNum int) (models.PageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	failed := models.PageResult{Page: pageNum, Status: models.PageStatusFetchFailed}
	if err := f.start(); err != nil {
		return failed, err
	}

	target := f.site.PageURL(pageNum)
	logging.Infof("%s: rendering page %d (%s)", f.site.ID, pageNum, target)

	var content string
	err := f.retry.run(ctx, pageNum, func() error {
		resp, err := f.page.Goto(target, playwright.PageGotoOptions{
			Timeout:   playwright.Float(float64(f.http.Timeout.Milliseconds())),
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		})
		if err != nil {
			return err
		}
		if resp != nil {
			if err := classifyStatus(resp.Status()); err != nil {
				return err
			}
		}
		content, err = f.page.Content()
		return err
	})
	if err != nil {
		return failed, fmt.Errorf("render page %d: %w", pageNum, err)
	}

	return ParsePage(pageNum, strings.NewReader(content))
}

func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pw == nil {
		return nil
	}
	if f.context != nil {
		f.context.Close()
	}
	if f.browser != nil {
		f.browser.Close()
	}
	err := f.pw.Stop()
	f.pw, f.browser, f.context, f.page = nil, nil, nil, nil
	return err
}
